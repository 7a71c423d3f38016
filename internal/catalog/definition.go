package catalog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/moveboot/internal/artifact"
	"github.com/vk/moveboot/internal/platform"
	"github.com/vk/moveboot/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// Definition is one artifact block. It implements registry.Constructor.
type Definition struct {
	Name      string
	Version   artifact.Version
	DependsOn []artifact.Dependency
	Release   *artifact.BinaryRelease

	defaultExpr hcl.Expression
	script      *scriptDef
	declared    hcl.Range
}

type scriptDef struct {
	body    hcl.Expression
	outputs []string
	env     map[string]string
}

// Default implements registry.Constructor.
func (d *Definition) Default(p platform.Platform) artifact.Artifact {
	return d.DefaultWithVersion(p, d.Version)
}

// DefaultWithVersion implements registry.Constructor.
func (d *Definition) DefaultWithVersion(p platform.Platform, v artifact.Version) artifact.Artifact {
	choice, err := d.choose(p, v)
	if err != nil {
		return d.finish(artifact.Unsupported(d.Name, err.Error()), v)
	}
	return d.build(choice, p, v)
}

// FromConfig implements registry.Constructor.
func (d *Definition) FromConfig(cfg registry.Config) artifact.Artifact {
	choice := choiceRelease
	if cfg.Build {
		choice = choiceScript
	}
	v := d.Version
	if cfg.Version != artifact.Latest {
		v = cfg.Version
	}
	return d.build(choice, cfg.Platform, v)
}

func (d *Definition) build(choice string, p platform.Platform, v artifact.Version) artifact.Artifact {
	var a artifact.Artifact
	switch choice {
	case choiceRelease:
		if d.Release == nil {
			a = artifact.Unsupported(d.Name, "no release block")
			break
		}
		a = artifact.BinRelease(d.Name, *d.Release)
	case choiceScript:
		if d.script == nil {
			a = artifact.Unsupported(d.Name, "no script block")
			break
		}
		body, err := d.renderBody(p, v)
		if err != nil {
			a = artifact.Unsupported(d.Name, err.Error())
			break
		}
		a = artifact.Artifact{
			Name:     d.Name,
			Strategy: artifact.Script{Body: body, Outputs: d.script.outputs, Env: d.script.env},
		}
	default:
		a = artifact.Unsupported(d.Name, fmt.Sprintf("not available on %s", p))
	}
	return d.finish(a, v)
}

func (d *Definition) finish(a artifact.Artifact, v artifact.Version) artifact.Artifact {
	return a.WithVersion(v).WithDependencies(d.DependsOn...)
}

// choose evaluates the default expression for p.
func (d *Definition) choose(p platform.Platform, v artifact.Version) (string, error) {
	if d.defaultExpr == nil {
		return d.implicitChoice(), nil
	}
	val, diags := d.defaultExpr.Value(evalContext(p, v))
	if diags.HasErrors() {
		return "", fmt.Errorf("failed to evaluate default for '%s': %w", d.Name, diags)
	}
	if val.IsNull() {
		return d.implicitChoice(), nil
	}
	if !val.IsKnown() || val.Type() != cty.String {
		return "", fmt.Errorf("default for '%s' must be a string, got %s", d.Name, val.Type().FriendlyName())
	}
	choice := strings.ToLower(val.AsString())
	switch choice {
	case choiceRelease, choiceScript, choiceUnsupported:
		return choice, nil
	default:
		return "", fmt.Errorf("default for '%s' must be one of release, script, unsupported; got '%s'", d.Name, choice)
	}
}

func (d *Definition) implicitChoice() string {
	switch {
	case d.Release != nil:
		return choiceRelease
	case d.script != nil:
		return choiceScript
	default:
		return choiceUnsupported
	}
}

func (d *Definition) renderBody(p platform.Platform, v artifact.Version) (string, error) {
	val, diags := d.script.body.Value(evalContext(p, v))
	if diags.HasErrors() {
		return "", fmt.Errorf("failed to render script for '%s': %w", d.Name, diags)
	}
	if val.IsNull() || !val.IsKnown() || val.Type() != cty.String {
		return "", fmt.Errorf("script body for '%s' must be a string", d.Name)
	}
	return val.AsString(), nil
}

// validate checks that every supported platform resolves to a usable
// strategy without evaluation errors.
func (d *Definition) validate() error {
	var errs []error
	for _, p := range platform.Supported() {
		choice, err := d.choose(p, d.Version)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %s: %w", d.declared, p, err))
			continue
		}
		switch choice {
		case choiceRelease:
			if d.Release == nil {
				errs = append(errs, fmt.Errorf("%s: %s: artifact '%s' defaults to release but has no release block", d.declared, p, d.Name))
			}
		case choiceScript:
			if d.script == nil {
				errs = append(errs, fmt.Errorf("%s: %s: artifact '%s' defaults to script but has no script block", d.declared, p, d.Name))
				continue
			}
			if _, err := d.renderBody(p, d.Version); err != nil {
				errs = append(errs, fmt.Errorf("%s: %s: %w", d.declared, p, err))
			}
		}
	}
	return errors.Join(errs...)
}

func evalContext(p platform.Platform, v artifact.Version) *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"platform": cty.ObjectVal(map[string]cty.Value{
				"os":   cty.StringVal(p.OS),
				"arch": cty.StringVal(p.Arch),
			}),
			"version": cty.StringVal(string(v)),
		},
	}
}
