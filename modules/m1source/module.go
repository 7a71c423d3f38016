// Package m1source provides a checkout of the m1 repository with its
// submodules, used by artifacts built from source.
package m1source

import (
	"fmt"

	"github.com/vk/moveboot/internal/artifact"
	"github.com/vk/moveboot/internal/platform"
	"github.com/vk/moveboot/internal/registry"
)

const (
	// Name is the registry name of the artifact.
	Name = "m1-source"
	// Repository is cloned into CheckoutDir.
	Repository = "https://github.com/movemntdev/m1.git"
	// CheckoutDir is relative to the environment root.
	CheckoutDir = "src/m1"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the constructor with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.Register(Name, Constructor{})
}

// Constructor describes the checkout. The version is a git ref.
type Constructor struct{}

// Dependency returns an unversioned reference to the artifact.
func Dependency() artifact.Dependency {
	return artifact.Dependency{Name: Name}
}

func checkout(ref artifact.Version) artifact.Artifact {
	checkoutRef := ""
	if ref != artifact.Latest {
		checkoutRef = fmt.Sprintf("git -C \"$dest\" checkout %q\n", string(ref))
	}
	body := fmt.Sprintf(`set -e
dest="$MOVEMENT_DIR/%s"
if [ -d "$dest/.git" ]; then
  git -C "$dest" fetch --tags origin
else
  git clone --recurse-submodules %s "$dest"
fi
%sgit -C "$dest" submodule update --init --recursive
`, CheckoutDir, Repository, checkoutRef)
	return artifact.SelfContainedScript(Name, body, CheckoutDir).WithVersion(ref)
}

// Default implements registry.Constructor.
func (c Constructor) Default(p platform.Platform) artifact.Artifact {
	return c.DefaultWithVersion(p, artifact.Latest)
}

// DefaultWithVersion checks out ref after cloning.
func (Constructor) DefaultWithVersion(p platform.Platform, ref artifact.Version) artifact.Artifact {
	if p.OS == "windows" {
		return artifact.Unsupported(Name, "checkout script requires a POSIX shell").WithVersion(ref)
	}
	return checkout(ref)
}

// FromConfig implements registry.Constructor. A checkout is always built.
func (c Constructor) FromConfig(cfg registry.Config) artifact.Artifact {
	return c.DefaultWithVersion(cfg.Platform, cfg.Version)
}
