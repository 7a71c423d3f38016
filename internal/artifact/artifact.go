// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package artifact describes how one named piece of software is obtained.
//
// An Artifact is an immutable value: constructing one performs no I/O, it only
// records intent. The acquisition Strategy is a closed set of three cases that
// the installer dispatches on with a type switch.
package artifact

import (
	"fmt"
	"sort"
	"strings"
)

// Version is a release tag. The empty Version means latest/unspecified.
type Version string

// Latest is the unspecified version.
const Latest Version = ""

// String returns the tag, or "latest" for the unspecified version.
func (v Version) String() string {
	if v == Latest {
		return "latest"
	}
	return string(v)
}

// Dependency is a reference to another artifact by name and optional version.
// It lets the graph be built before the referenced artifact is constructed.
type Dependency struct {
	Name    string
	Version Version
}

// ParseDependency reads "name" or "name@version".
func ParseDependency(s string) (Dependency, error) {
	name, version, _ := strings.Cut(strings.TrimSpace(s), "@")
	if name == "" {
		return Dependency{}, fmt.Errorf("invalid artifact reference '%s': empty name", s)
	}
	return Dependency{Name: name, Version: Version(version)}, nil
}

// Satisfies reports whether an artifact resolved at v meets this reference.
// A reference without a version accepts any resolved version.
func (d Dependency) Satisfies(v Version) bool {
	return d.Version == Latest || d.Version == v
}

// String returns the "name@version" form accepted by ParseDependency.
func (d Dependency) String() string {
	if d.Version == Latest {
		return d.Name
	}
	return d.Name + "@" + string(d.Version)
}

// Artifact is an immutable description of how to obtain one named product.
type Artifact struct {
	Name     string
	Version  Version
	Strategy Strategy

	dependencies map[string]Dependency
}

// BinRelease describes an artifact downloaded as a prebuilt binary.
func BinRelease(name string, release BinaryRelease) Artifact {
	return Artifact{Name: name, Strategy: release}
}

// SelfContainedScript describes an artifact built by an embedded procedure.
func SelfContainedScript(name, body string, outputs ...string) Artifact {
	return Artifact{Name: name, Strategy: Script{Body: body, Outputs: outputs}}
}

// Unsupported describes an artifact that cannot be obtained on this platform.
func Unsupported(name, reason string) Artifact {
	return Artifact{Name: name, Strategy: UnsupportedStrategy{Reason: reason}}
}

// WithVersion returns a copy stamped with v.
func (a Artifact) WithVersion(v Version) Artifact {
	a.dependencies = a.cloneDeps()
	a.Version = v
	return a
}

// WithDependencies returns a copy whose dependency set also contains deps.
// Entries are keyed by name, so a later entry replaces an earlier one with the
// same name. A reference to the artifact itself is dropped.
func (a Artifact) WithDependencies(deps ...Dependency) Artifact {
	a.dependencies = a.cloneDeps()
	if a.dependencies == nil {
		a.dependencies = make(map[string]Dependency, len(deps))
	}
	for _, d := range deps {
		if d.Name == "" || d.Name == a.Name {
			continue
		}
		a.dependencies[d.Name] = d
	}
	return a
}

// Dependencies returns the dependency set sorted by name.
func (a Artifact) Dependencies() []Dependency {
	deps := make([]Dependency, 0, len(a.dependencies))
	for _, d := range a.dependencies {
		deps = append(deps, d)
	}
	sort.Slice(deps, func(i, j int) bool { return deps[i].Name < deps[j].Name })
	return deps
}

// Ref returns a reference pinned to this artifact's version.
func (a Artifact) Ref() Dependency {
	return Dependency{Name: a.Name, Version: a.Version}
}

// StrategyName returns the short name of the acquisition strategy.
func (a Artifact) StrategyName() string {
	if a.Strategy == nil {
		return UnsupportedStrategy{}.strategyName()
	}
	return a.Strategy.strategyName()
}

// String identifies the artifact in logs.
func (a Artifact) String() string {
	return fmt.Sprintf("%s@%s (%s)", a.Name, a.Version, a.StrategyName())
}

func (a Artifact) cloneDeps() map[string]Dependency {
	if a.dependencies == nil {
		return nil
	}
	out := make(map[string]Dependency, len(a.dependencies))
	for k, v := range a.dependencies {
		out[k] = v
	}
	return out
}
