package builder

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/moveboot/internal/apperrors"
	"github.com/vk/moveboot/internal/artifact"
	"github.com/vk/moveboot/internal/ctxlog"
	"github.com/vk/moveboot/internal/dag"
	"github.com/vk/moveboot/internal/registry"
)

// Build constructs a complete, validated dependency graph for the requested
// references.
func Build(ctx context.Context, reg *registry.Registry, requests []artifact.Dependency, opts registry.Options) (*dag.Graph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Build: Starting graph construction.", "requests", len(requests), "platform", opts.Platform.String())

	b := &builder{reg: reg, opts: opts, graph: dag.New()}
	for _, req := range requests {
		if _, err := b.resolve(ctx, req, ""); err != nil {
			return nil, err
		}
	}
	logger.Debug("Build: Resolution complete.", "node_count", b.graph.Len())

	if err := b.graph.DetectCycles(); err != nil {
		var cycleErr *dag.CycleError
		if errors.As(err, &cycleErr) {
			return nil, apperrors.CyclicDependency(cycleErr.Members)
		}
		return nil, fmt.Errorf("error validating dependency graph: %w", err)
	}
	logger.Debug("Build: Cycle detection passed.")

	return b.graph, nil
}

type builder struct {
	reg   *registry.Registry
	opts  registry.Options
	graph *dag.Graph
}

// resolve adds the artifact referenced by dep, and everything it depends on,
// to the graph. parent is empty for top-level requests.
func (b *builder) resolve(ctx context.Context, dep artifact.Dependency, parent string) (*dag.Node, error) {
	logger := ctxlog.FromContext(ctx)

	if existing, ok := b.graph.Node(dep.Name); ok {
		if !dep.Satisfies(existing.Artifact.Version) {
			return nil, apperrors.VersionConflict(dep.Name, string(existing.Artifact.Version), string(dep.Version))
		}
		logger.Debug("Artifact already resolved.", "artifact", dep.Name, "required_by", parent)
		return existing, nil
	}

	c, ok := b.reg.Lookup(dep.Name)
	if !ok {
		return nil, apperrors.UnknownArtifact(dep.Name, parent)
	}

	a := registry.Construct(c, dep, b.opts, parent == "")
	if !dep.Satisfies(a.Version) {
		return nil, apperrors.VersionConflict(dep.Name, string(a.Version), string(dep.Version))
	}

	// The node is added before its dependencies so a cycle terminates here
	// and is reported by DetectCycles instead of recursing forever.
	n, _ := b.graph.AddNode(a)
	logger.Debug("Resolved artifact.", "artifact", a.Name, "version", a.Version.String(), "strategy", a.StrategyName(), "required_by", parent)

	for _, child := range a.Dependencies() {
		depNode, err := b.resolve(ctx, child, a.Name)
		if err != nil {
			return nil, err
		}
		if err := b.graph.AddEdge(depNode.ID, n.ID); err != nil {
			return nil, fmt.Errorf("failed to link '%s' to '%s': %w", depNode.ID, n.ID, err)
		}
	}
	return n, nil
}
