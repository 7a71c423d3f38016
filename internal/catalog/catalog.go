package catalog

import (
	"context"
	"fmt"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/moveboot/internal/artifact"
	"github.com/vk/moveboot/internal/ctxlog"
	"github.com/vk/moveboot/internal/fsutil"
	"github.com/vk/moveboot/internal/platform"
	"github.com/vk/moveboot/internal/registry"
)

// Strategy choices accepted by the default expression.
const (
	choiceRelease     = "release"
	choiceScript      = "script"
	choiceUnsupported = "unsupported"
)

// Catalog is a set of loaded artifact definitions. It is a registry.Module.
type Catalog struct {
	defs map[string]*Definition
}

// Load reads every .hcl file under paths and validates each artifact block
// against every supported platform.
func Load(ctx context.Context, paths ...string) (*Catalog, error) {
	logger := ctxlog.FromContext(ctx)

	files, err := fsutil.FindFilesByExtension(".hcl", paths...)
	if err != nil {
		return nil, fmt.Errorf("failed to discover catalog files: %w", err)
	}
	logger.Debug("Discovered catalog files.", "count", len(files))

	c := &Catalog{defs: make(map[string]*Definition)}
	parser := hclparse.NewParser()
	defined := make(map[string]hcl.Range)

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse catalog file %s: %w", file, diags)
		}

		var root fileRoot
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode catalog file %s: %w", file, diags)
		}

		for _, blk := range root.Artifacts {
			if prev, ok := defined[blk.Name]; ok {
				return nil, fmt.Errorf("%s: artifact '%s' already defined at %s", blk.DefRange, blk.Name, prev)
			}
			defined[blk.Name] = blk.DefRange

			def, err := translate(blk)
			if err != nil {
				return nil, err
			}
			if err := def.validate(); err != nil {
				return nil, err
			}
			c.defs[def.Name] = def
		}
	}

	logger.Debug("Catalog loaded.", "artifacts", len(c.defs))
	return c, nil
}

// Names returns the defined artifact names, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.defs))
	for name := range c.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definition returns the named definition.
func (c *Catalog) Definition(name string) (*Definition, bool) {
	d, ok := c.defs[name]
	return d, ok
}

// Len returns the number of definitions.
func (c *Catalog) Len() int { return len(c.defs) }

// Register implements registry.Module.
func (c *Catalog) Register(r *registry.Registry) {
	for _, name := range c.Names() {
		r.Register(name, c.defs[name])
	}
}

func translate(blk *artifactBlock) (*Definition, error) {
	def := &Definition{
		Name:        blk.Name,
		Version:     artifact.Version(blk.Version),
		defaultExpr: blk.Default,
		declared:    blk.DefRange,
	}

	for _, raw := range blk.DependsOn {
		dep, err := artifact.ParseDependency(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: artifact '%s': %w", blk.DefRange, blk.Name, err)
		}
		def.DependsOn = append(def.DependsOn, dep)
	}

	if r := blk.Release; r != nil {
		product := r.Product
		if product == "" {
			product = blk.Name
		}
		rel := artifact.GitHubPlatformRelease(r.Owner, r.Repo, product, r.Suffix)
		for _, raw := range r.Platforms {
			p, err := platform.Parse(raw)
			if err != nil {
				return nil, fmt.Errorf("%s: artifact '%s': %w", blk.DefRange, blk.Name, err)
			}
			rel.Platforms = append(rel.Platforms, p)
		}
		def.Release = &rel
	}

	if s := blk.Script; s != nil {
		def.script = &scriptDef{body: s.Body, outputs: s.Outputs, env: s.Env}
	}
	return def, nil
}
