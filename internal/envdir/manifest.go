// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package envdir

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/vk/moveboot/internal/artifact"
	"github.com/zclconf/go-cty/cty"
)

// manifestFormat is written to every lock file so later layouts can migrate.
const manifestFormat = 1

// Entry records one installed artifact.
type Entry struct {
	Name        string
	Version     artifact.Version
	Strategy    string
	Path        string
	InstalledAt time.Time
}

type entryKey struct {
	name    string
	version artifact.Version
}

// fileLocks serialises read-merge-write cycles on one lock file across every
// Manifest in the process, so two Dirs sharing a root never drop each
// other's entries.
var fileLocks sync.Map // path -> *sync.Mutex

func fileLock(path string) *sync.Mutex {
	mu, _ := fileLocks.LoadOrStore(path, new(sync.Mutex))
	return mu.(*sync.Mutex)
}

// Manifest is the authoritative record of installed artifacts, keyed by
// (name, version). Every read and write holds the same lock, so concurrent
// installer tasks never observe a half-applied update.
type Manifest struct {
	mu      sync.Mutex
	path    string
	entries map[entryKey]Entry
}

// Get returns the entry for an exact (name, version) pair.
func (m *Manifest) Get(name string, version artifact.Version) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[entryKey{name, version}]
	return e, ok
}

// Lookup returns every entry recorded for name, sorted by version.
func (m *Manifest) Lookup(name string) []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Entry
	for k, e := range m.entries {
		if k.name == name {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out
}

// Entries returns every entry sorted by name, then version.
func (m *Manifest) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedLocked()
}

// Len returns the number of entries.
func (m *Manifest) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Record adds or replaces the entry for (e.Name, e.Version) and persists the
// manifest. Entries written to the file by another Manifest since it was
// loaded are kept. The in-memory state only changes once the file was
// replaced.
func (m *Manifest) Record(e Entry) error {
	if e.Name == "" {
		return fmt.Errorf("manifest entry requires a name")
	}

	fl := fileLock(m.path)
	fl.Lock()
	defer fl.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := m.mergedLocked()
	if err != nil {
		return err
	}
	next[entryKey{e.Name, e.Version}] = e

	if err := writeManifest(m.path, sortEntries(next)); err != nil {
		return fmt.Errorf("failed to persist manifest: %w", err)
	}
	m.entries = next
	return nil
}

// Reload merges entries another Manifest persisted to the same file.
func (m *Manifest) Reload() error {
	fl := fileLock(m.path)
	fl.Lock()
	defer fl.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := m.mergedLocked()
	if err != nil {
		return err
	}
	m.entries = next
	return nil
}

// mergedLocked returns the in-memory entries overlaid with the file's.
// A missing file contributes nothing.
func (m *Manifest) mergedLocked() (map[entryKey]Entry, error) {
	next := make(map[entryKey]Entry, len(m.entries)+1)
	for k, v := range m.entries {
		next[k] = v
	}
	onDisk, err := loadManifest(m.path)
	if errors.Is(err, fs.ErrNotExist) {
		return next, nil
	}
	if err != nil {
		return nil, err
	}
	for k, v := range onDisk.entries {
		next[k] = v
	}
	return next, nil
}

func (m *Manifest) sortedLocked() []Entry {
	return sortEntries(m.entries)
}

func sortEntries(entries map[entryKey]Entry) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Version < out[j].Version
	})
	return out
}

// manifestSchema is the decoding target of a lock file.
type manifestSchema struct {
	Format    int           `hcl:"manifest_version,optional"`
	Artifacts []*entryBlock `hcl:"artifact,block"`
}

type entryBlock struct {
	Name        string `hcl:"name,label"`
	Version     string `hcl:"version,optional"`
	Strategy    string `hcl:"strategy,optional"`
	Path        string `hcl:"path,optional"`
	InstalledAt string `hcl:"installed_at"`
}

func loadManifest(path string) (*Manifest, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, diags)
	}

	var schema manifestSchema
	if diags := gohcl.DecodeBody(file.Body, nil, &schema); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode manifest %s: %w", path, diags)
	}
	if schema.Format > manifestFormat {
		return nil, fmt.Errorf("manifest %s has format %d, newest understood is %d", path, schema.Format, manifestFormat)
	}

	m := &Manifest{path: path, entries: make(map[entryKey]Entry, len(schema.Artifacts))}
	for _, blk := range schema.Artifacts {
		installedAt, err := time.Parse(time.RFC3339Nano, blk.InstalledAt)
		if err != nil {
			return nil, fmt.Errorf("manifest entry '%s': invalid installed_at: %w", blk.Name, err)
		}
		e := Entry{
			Name:        blk.Name,
			Version:     artifact.Version(blk.Version),
			Strategy:    blk.Strategy,
			Path:        blk.Path,
			InstalledAt: installedAt,
		}
		m.entries[entryKey{e.Name, e.Version}] = e
	}
	return m, nil
}

// writeManifest replaces the lock file atomically: the content goes to a
// temporary file in the same directory, is synced, then renamed over path.
func writeManifest(path string, entries []Entry) error {
	f := hclwrite.NewEmptyFile()
	body := f.Body()
	body.SetAttributeValue("manifest_version", cty.NumberIntVal(manifestFormat))
	for _, e := range entries {
		body.AppendNewline()
		blk := body.AppendNewBlock("artifact", []string{e.Name}).Body()
		blk.SetAttributeValue("version", cty.StringVal(string(e.Version)))
		blk.SetAttributeValue("strategy", cty.StringVal(e.Strategy))
		blk.SetAttributeValue("path", cty.StringVal(e.Path))
		blk.SetAttributeValue("installed_at", cty.StringVal(e.InstalledAt.UTC().Format(time.RFC3339Nano)))
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".manifest-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(f.Bytes()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
