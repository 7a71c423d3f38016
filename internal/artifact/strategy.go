// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package artifact

import (
	"slices"

	"github.com/vk/moveboot/internal/platform"
)

// Strategy is the mechanism an artifact is materialised with. The set of
// implementations is closed: BinaryRelease, Script and UnsupportedStrategy.
type Strategy interface {
	strategyName() string
}

// BinaryRelease locates a prebuilt binary on a release host.
type BinaryRelease struct {
	Owner   string
	Repo    string
	Product string
	// Suffix is appended to the asset name after the platform qualifier,
	// e.g. ".exe".
	Suffix string
	// Platforms restricts the platforms the release host publishes for.
	// Empty means every platform.
	Platforms []platform.Platform
}

// GitHubPlatformRelease describes a release asset named
// "<product>-<os>-<arch><suffix>" in owner/repo.
func GitHubPlatformRelease(owner, repo, product, suffix string) BinaryRelease {
	return BinaryRelease{Owner: owner, Repo: repo, Product: product, Suffix: suffix}
}

// AssetName returns the file name of the asset built for p.
func (r BinaryRelease) AssetName(p platform.Platform) string {
	return r.Product + "-" + p.Qualifier() + r.Suffix
}

// Publishes reports whether the release host carries an asset for p.
func (r BinaryRelease) Publishes(p platform.Platform) bool {
	return len(r.Platforms) == 0 || slices.Contains(r.Platforms, p)
}

func (BinaryRelease) strategyName() string { return "release" }

// Script is a self-contained build procedure. It may rely only on its
// declared dependencies and the environment directory it runs in.
type Script struct {
	Body string
	// Outputs are paths relative to the environment root that must exist
	// once the procedure finished.
	Outputs []string
	// Env holds extra variables exported to the procedure.
	Env map[string]string
}

func (Script) strategyName() string { return "script" }

// UnsupportedStrategy marks an artifact with no way to be obtained on the
// resolved platform. Installing it is always a failure.
type UnsupportedStrategy struct {
	Reason string
}

func (UnsupportedStrategy) strategyName() string { return "unsupported" }
