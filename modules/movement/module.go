// Package movement provides the movement CLI artifact.
//
// Linux hosts download the prebuilt release. Darwin hosts build it from the
// m1 sources with cargo. Windows has no supported strategy.
package movement

import (
	"github.com/vk/moveboot/internal/artifact"
	"github.com/vk/moveboot/internal/platform"
	"github.com/vk/moveboot/internal/registry"
	"github.com/vk/moveboot/modules/cargo"
	"github.com/vk/moveboot/modules/m1source"
)

// Name is the registry name of the artifact.
const Name = "movement"

const buildScript = `set -e
. "$HOME/.cargo/env"
cd "$MOVEMENT_DIR/` + m1source.CheckoutDir + `/movement-sdk"
cargo build -p movement
# debug build until release profiles are published
cp target/debug/movement "$MOVEMENT_DIR/bin/movement"
`

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the constructor with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.Register(Name, Constructor{})
}

// Constructor describes the movement CLI.
type Constructor struct{}

// Download returns the release-download variant.
func Download() artifact.Artifact {
	return artifact.BinRelease(Name, artifact.GitHubPlatformRelease("movemntdev", "m1", "movement", ""))
}

// Build returns the build-from-source variant.
func Build() artifact.Artifact {
	return artifact.SelfContainedScript(Name, buildScript, "bin/movement").
		WithDependencies(cargo.Dependency(), m1source.Dependency())
}

// Default implements registry.Constructor.
func (Constructor) Default(p platform.Platform) artifact.Artifact {
	switch p.OS {
	case "linux":
		return Download()
	case "darwin":
		return Build()
	default:
		return artifact.Unsupported(Name, "no release or build procedure for "+p.String())
	}
}

// DefaultWithVersion implements registry.Constructor.
func (c Constructor) DefaultWithVersion(p platform.Platform, v artifact.Version) artifact.Artifact {
	return c.Default(p).WithVersion(v)
}

// FromConfig implements registry.Constructor.
func (Constructor) FromConfig(cfg registry.Config) artifact.Artifact {
	if cfg.Build {
		return Build().WithVersion(cfg.Version)
	}
	return Download().WithVersion(cfg.Version)
}
