package builder

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/moveboot/internal/apperrors"
	"github.com/vk/moveboot/internal/artifact"
	"github.com/vk/moveboot/internal/dag"
	"github.com/vk/moveboot/internal/platform"
	"github.com/vk/moveboot/internal/registry"
)

type static map[string]artifact.Artifact

func (s static) Register(r *registry.Registry) {
	for name, a := range s {
		r.Register(name, registry.Static{Artifact: a})
	}
}

func script(name string, deps ...string) artifact.Artifact {
	a := artifact.SelfContainedScript(name, "echo "+name)
	for _, d := range deps {
		ref, _ := artifact.ParseDependency(d)
		a = a.WithDependencies(ref)
	}
	return a
}

func ids(nodes []*dag.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ID)
	}
	return out
}

var linux = registry.Options{Platform: platform.LinuxAMD64}

func TestBuild_TransitiveClosure(t *testing.T) {
	t.Parallel()

	reg := registry.New(static{
		"tool":   script("tool", "lib", "cli"),
		"cli":    script("cli", "lib"),
		"lib":    artifact.BinRelease("lib", artifact.GitHubPlatformRelease("acme", "lib", "lib", "")),
		"unused": script("unused"),
	})

	g, err := Build(context.Background(), reg, []artifact.Dependency{{Name: "tool"}}, linux)
	require.NoError(t, err)
	assert.Equal(t, []string{"tool", "cli", "lib"}, ids(g.Nodes()))

	order, err := g.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"lib", "cli", "tool"}, ids(order))

	deps, err := g.Dependencies("tool")
	require.NoError(t, err)
	assert.Equal(t, []string{"cli", "lib"}, ids(deps))
}

func TestBuild_EndToEndScenarioOrder(t *testing.T) {
	t.Parallel()

	reg := registry.New(static{
		"tool": script("tool", "lib"),
		"lib":  artifact.BinRelease("lib", artifact.GitHubPlatformRelease("acme", "lib", "lib", "")),
	})
	requests := []artifact.Dependency{{Name: "tool"}, {Name: "lib"}}

	g, err := Build(context.Background(), reg, requests, linux)
	require.NoError(t, err)
	order, err := g.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"lib", "tool"}, ids(order))
}

func TestBuild_UnknownArtifact(t *testing.T) {
	t.Parallel()

	reg := registry.New(static{"tool": script("tool", "ghost")})

	t.Run("top level", func(t *testing.T) {
		_, err := Build(context.Background(), reg, []artifact.Dependency{{Name: "nope"}}, linux)
		require.ErrorIs(t, err, apperrors.ErrUnknownArtifact)
		assert.Equal(t, "nope", apperrors.ArtifactOf(err))
	})

	t.Run("transitive", func(t *testing.T) {
		_, err := Build(context.Background(), reg, []artifact.Dependency{{Name: "tool"}}, linux)
		require.ErrorIs(t, err, apperrors.ErrUnknownArtifact)
		assert.ErrorContains(t, err, "required by 'tool'")
	})
}

func TestBuild_VersionConflict(t *testing.T) {
	t.Parallel()

	reg := registry.New(static{
		"x":    script("x"),
		"app":  script("app", "x@2"),
		"app2": script("app2", "x"),
	})

	t.Run("same name at two versions", func(t *testing.T) {
		_, err := Build(context.Background(), reg, []artifact.Dependency{{Name: "x", Version: "1"}, {Name: "x", Version: "2"}}, linux)
		require.ErrorIs(t, err, apperrors.ErrVersionConflict)
		assert.ErrorContains(t, err, "resolved 1, requested 2")
	})

	t.Run("top level against transitive", func(t *testing.T) {
		_, err := Build(context.Background(), reg, []artifact.Dependency{{Name: "x", Version: "1"}, {Name: "app"}}, linux)
		require.ErrorIs(t, err, apperrors.ErrVersionConflict)
	})

	t.Run("unversioned reference accepts the resolved version", func(t *testing.T) {
		g, err := Build(context.Background(), reg, []artifact.Dependency{{Name: "x", Version: "1"}, {Name: "app2"}}, linux)
		require.NoError(t, err)
		n, ok := g.Node("x")
		require.True(t, ok)
		assert.Equal(t, artifact.Version("1"), n.Artifact.Version)
	})
}

func TestBuild_CycleDetection(t *testing.T) {
	t.Parallel()

	reg := registry.New(static{
		"a": script("a", "b"),
		"b": script("b", "a"),
	})

	_, err := Build(context.Background(), reg, []artifact.Dependency{{Name: "a"}}, linux)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrCyclicDependency))

	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, []string{"a", "b", "a"}, appErr.Members)
}

func TestBuild_PlatformAndPreference(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	reg.Register("only-linux", onlyLinux{})

	build := true
	g, err := Build(context.Background(), reg, []artifact.Dependency{{Name: "only-linux"}},
		registry.Options{Platform: platform.WindowsAMD64, FromSource: &build})
	require.NoError(t, err)
	n, _ := g.Node("only-linux")
	assert.Equal(t, "script", n.Artifact.StrategyName())

	g, err = Build(context.Background(), reg, []artifact.Dependency{{Name: "only-linux"}},
		registry.Options{Platform: platform.WindowsAMD64})
	require.NoError(t, err)
	n, _ = g.Node("only-linux")
	assert.Equal(t, "unsupported", n.Artifact.StrategyName())
}

type onlyLinux struct{}

func (onlyLinux) Default(p platform.Platform) artifact.Artifact {
	if p.OS == "linux" {
		return artifact.BinRelease("only-linux", artifact.BinaryRelease{Product: "only-linux"})
	}
	return artifact.Unsupported("only-linux", "linux only")
}

func (o onlyLinux) DefaultWithVersion(p platform.Platform, v artifact.Version) artifact.Artifact {
	return o.Default(p).WithVersion(v)
}

func (onlyLinux) FromConfig(cfg registry.Config) artifact.Artifact {
	if cfg.Build {
		return artifact.SelfContainedScript("only-linux", "make")
	}
	return artifact.BinRelease("only-linux", artifact.BinaryRelease{Product: "only-linux"})
}
