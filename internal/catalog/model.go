package catalog

import (
	"github.com/hashicorp/hcl/v2"
)

// fileRoot decodes every top-level block of a catalog file.
type fileRoot struct {
	Artifacts []*artifactBlock `hcl:"artifact,block"`
}

type artifactBlock struct {
	Name      string         `hcl:"name,label"`
	Version   string         `hcl:"version,optional"`
	DependsOn []string       `hcl:"depends_on,optional"`
	Default   hcl.Expression `hcl:"default,optional"`
	Release   *releaseBlock  `hcl:"release,block"`
	Script    *scriptBlock   `hcl:"script,block"`
	DefRange  hcl.Range      `hcl:",def_range"`
}

type releaseBlock struct {
	Owner     string   `hcl:"owner"`
	Repo      string   `hcl:"repo"`
	Product   string   `hcl:"product,optional"`
	Suffix    string   `hcl:"suffix,optional"`
	Platforms []string `hcl:"platforms,optional"`
}

type scriptBlock struct {
	Body    hcl.Expression    `hcl:"body"`
	Outputs []string          `hcl:"outputs,optional"`
	Env     map[string]string `hcl:"env,optional"`
}
