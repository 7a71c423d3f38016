package registry

import (
	"github.com/vk/moveboot/internal/artifact"
	"github.com/vk/moveboot/internal/platform"
)

// Config is the explicit caller override passed to FromConfig.
type Config struct {
	// Build forces the build-from-source strategy when true and the
	// download strategy when false, regardless of platform.
	Build    bool
	Platform platform.Platform
	// Version is the requested version, Latest when unpinned. It reaches
	// anything rendered from the version, such as a build script.
	Version artifact.Version
}

// Constructor produces the Artifact for one product. Implementations perform
// no I/O and never fail; an impossible combination yields an artifact with
// the Unsupported strategy, which fails at install time.
type Constructor interface {
	// Default chooses a strategy for p.
	Default(p platform.Platform) artifact.Artifact
	// DefaultWithVersion is Default stamped with v.
	DefaultWithVersion(p platform.Platform, v artifact.Version) artifact.Artifact
	// FromConfig honours the caller's explicit strategy choice.
	FromConfig(cfg Config) artifact.Artifact
}

// Options carries the run-time resolution inputs shared by a whole run.
type Options struct {
	Platform platform.Platform
	// FromSource, when set, is the caller's build-vs-download preference for
	// the top-level requests. Transitive dependencies always use Default.
	FromSource *bool
}

// Construct is the single resolution function that turns a reference into an
// artifact. An explicit preference routes through FromConfig; otherwise a
// pinned version routes through DefaultWithVersion and anything else through
// Default.
func Construct(c Constructor, dep artifact.Dependency, opts Options, topLevel bool) artifact.Artifact {
	var a artifact.Artifact
	switch {
	case topLevel && opts.FromSource != nil:
		a = c.FromConfig(Config{Build: *opts.FromSource, Platform: opts.Platform, Version: dep.Version})
		if dep.Version != artifact.Latest {
			a = a.WithVersion(dep.Version)
		}
	case dep.Version != artifact.Latest:
		a = c.DefaultWithVersion(opts.Platform, dep.Version)
	default:
		a = c.Default(opts.Platform)
	}
	if a.Name == "" {
		a.Name = dep.Name
	}
	return a
}

// Static is a constructor that always describes the same artifact. It suits
// tests and products whose strategy does not depend on platform.
type Static struct {
	Artifact artifact.Artifact
}

// Default returns the fixed artifact.
func (s Static) Default(platform.Platform) artifact.Artifact {
	return s.Artifact
}

// DefaultWithVersion returns the fixed artifact stamped with v.
func (s Static) DefaultWithVersion(_ platform.Platform, v artifact.Version) artifact.Artifact {
	return s.Artifact.WithVersion(v)
}

// FromConfig returns the fixed artifact.
func (s Static) FromConfig(Config) artifact.Artifact {
	return s.Artifact
}
