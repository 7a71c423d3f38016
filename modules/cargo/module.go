// Package cargo provides the Rust toolchain artifact.
package cargo

import (
	"fmt"

	"github.com/vk/moveboot/internal/artifact"
	"github.com/vk/moveboot/internal/platform"
	"github.com/vk/moveboot/internal/registry"
)

// Name is the registry name of the artifact.
const Name = "cargo"

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the constructor with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.Register(Name, Constructor{})
}

// Constructor describes the rustup-managed toolchain. The toolchain lives
// under the user's home, so the procedure declares no outputs.
type Constructor struct{}

// Dependency returns an unversioned reference to the artifact.
func Dependency() artifact.Dependency {
	return artifact.Dependency{Name: Name}
}

func install(toolchain artifact.Version) artifact.Artifact {
	tc := "stable"
	if toolchain != artifact.Latest {
		tc = string(toolchain)
	}
	body := fmt.Sprintf(`set -e
if command -v rustup >/dev/null 2>&1; then
  rustup toolchain install %[1]s
else
  curl --proto '=https' --tlsv1.2 -sSf https://sh.rustup.rs | sh -s -- -y --default-toolchain %[1]s
fi
`, tc)
	return artifact.SelfContainedScript(Name, body).WithVersion(toolchain)
}

// Default implements registry.Constructor.
func (c Constructor) Default(p platform.Platform) artifact.Artifact {
	return c.DefaultWithVersion(p, artifact.Latest)
}

// DefaultWithVersion installs the given toolchain, e.g. "1.75.0" or "nightly".
func (Constructor) DefaultWithVersion(p platform.Platform, v artifact.Version) artifact.Artifact {
	if p.OS == "windows" {
		return artifact.Unsupported(Name, "rustup-init.exe is not automated").WithVersion(v)
	}
	return install(v)
}

// FromConfig implements registry.Constructor. There is no prebuilt download,
// so the preference does not change the strategy.
func (c Constructor) FromConfig(cfg registry.Config) artifact.Artifact {
	return c.DefaultWithVersion(cfg.Platform, cfg.Version)
}
