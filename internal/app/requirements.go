package app

import (
	"fmt"
	"os"

	"github.com/vk/moveboot/internal/artifact"
	"gopkg.in/yaml.v3"
)

// requirementsFile is the YAML document listing artifacts to install:
//
//	requires:
//	  - movement
//	  - name: cargo
//	    version: "1.75.0"
type requirementsFile struct {
	Requires []requirement `yaml:"requires"`
}

type requirement struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// UnmarshalYAML accepts either a mapping or a "name[@version]" scalar.
func (r *requirement) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		dep, err := artifact.ParseDependency(node.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		r.Name, r.Version = dep.Name, string(dep.Version)
		return nil
	}
	type plain requirement
	return node.Decode((*plain)(r))
}

// LoadRequirements reads the artifact references listed in a YAML file.
func LoadRequirements(path string) ([]artifact.Dependency, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read requirements file: %w", err)
	}

	var file requirementsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse requirements file %s: %w", path, err)
	}

	deps := make([]artifact.Dependency, 0, len(file.Requires))
	for i, r := range file.Requires {
		if r.Name == "" {
			return nil, fmt.Errorf("requirements file %s: entry %d has no name", path, i+1)
		}
		deps = append(deps, artifact.Dependency{Name: r.Name, Version: artifact.Version(r.Version)})
	}
	return deps, nil
}
