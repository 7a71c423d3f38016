// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package envdir manages the Environment Directory: the persistent location
// artifacts are installed into, together with the manifest recording what is
// already there.
//
// Layout:
//
//	<root>/
//	  bin/                 installed binaries
//	  src/                 checkouts used by build scripts
//	  manifest.lock.hcl    installed (name, version) pairs
//
// A Dir is exclusively owned by one installation run. Nothing guards against
// two processes installing into the same root at once.
package envdir

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/vk/moveboot/internal/apperrors"
)

const (
	binDir       = "bin"
	srcDir       = "src"
	manifestFile = "manifest.lock.hcl"

	// DefaultDirName is the directory created under the user's home.
	DefaultDirName = ".movement"

	// EnvVar overrides the default root.
	EnvVar = "MOVEMENT_DIR"
)

// Dir is an Environment Directory rooted at a filesystem path.
type Dir struct {
	root string

	mu       sync.Mutex
	manifest *Manifest
}

// New returns a Dir for root. Nothing is touched on disk until Sync.
func New(root string) *Dir {
	return &Dir{root: filepath.Clean(root)}
}

// Default returns the Dir named by $MOVEMENT_DIR, or the one under the
// current user's home directory when it is unset.
func Default() (*Dir, error) {
	if root := os.Getenv(EnvVar); root != "" {
		return New(root), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to locate home directory: %w", err)
	}
	return New(filepath.Join(home, DefaultDirName)), nil
}

// Root returns the directory root.
func (d *Dir) Root() string { return d.root }

// Bin returns the directory installed binaries are placed in.
func (d *Dir) Bin() string { return filepath.Join(d.root, binDir) }

// Src returns the directory build scripts check sources out into.
func (d *Dir) Src() string { return filepath.Join(d.root, srcDir) }

// ManifestPath returns the path of the manifest lock file.
func (d *Dir) ManifestPath() string { return filepath.Join(d.root, manifestFile) }

// Manifest returns the manifest loaded by the first Sync, or nil before it.
func (d *Dir) Manifest() *Manifest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.manifest
}

// Sync brings the directory to a valid baseline and loads its manifest. It is
// idempotent: missing structure is created, an empty manifest is written only
// when none exists, and existing manifest state is never discarded. Once
// loaded, the in-memory manifest stays authoritative for the Dir's lifetime.
func (d *Dir) Sync() (*Dir, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, dir := range []string{d.root, d.Bin(), d.Src()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperrors.DirectorySyncFailed(dir, err)
		}
	}

	if d.manifest != nil {
		return d, nil
	}

	path := d.ManifestPath()
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := writeManifest(path, nil); err != nil {
			return nil, apperrors.DirectorySyncFailed(path, err)
		}
	} else if err != nil {
		return nil, apperrors.DirectorySyncFailed(path, err)
	}

	m, err := loadManifest(path)
	if err != nil {
		return nil, apperrors.DirectorySyncFailed(path, err)
	}
	d.manifest = m
	return d, nil
}

// Resolve joins a path relative to the root, rejecting paths that escape it.
func (d *Dir) Resolve(rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("path '%s' must be relative to the environment root", rel)
	}
	joined := filepath.Join(d.root, rel)
	inside, err := filepath.Rel(d.root, joined)
	if err != nil || inside == ".." || strings.HasPrefix(inside, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path '%s' escapes the environment root", rel)
	}
	return joined, nil
}
