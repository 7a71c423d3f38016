package artifact

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/moveboot/internal/platform"
)

func TestParseDependency(t *testing.T) {
	t.Run("name only", func(t *testing.T) {
		d, err := ParseDependency("movement")
		require.NoError(t, err)
		assert.Equal(t, Dependency{Name: "movement"}, d)
		assert.Equal(t, "movement", d.String())
	})

	t.Run("name and version", func(t *testing.T) {
		d, err := ParseDependency(" movement@v0.3.0 ")
		require.NoError(t, err)
		assert.Equal(t, Dependency{Name: "movement", Version: "v0.3.0"}, d)
		assert.Equal(t, "movement@v0.3.0", d.String())
	})

	t.Run("empty name", func(t *testing.T) {
		_, err := ParseDependency("@v1")
		assert.ErrorContains(t, err, "empty name")
	})
}

func TestDependencySatisfies(t *testing.T) {
	assert.True(t, Dependency{Name: "x"}.Satisfies("v2"))
	assert.True(t, Dependency{Name: "x", Version: "v2"}.Satisfies("v2"))
	assert.False(t, Dependency{Name: "x", Version: "v1"}.Satisfies("v2"))
	assert.False(t, Dependency{Name: "x", Version: "v1"}.Satisfies(Latest))
}

func TestWithDependencies(t *testing.T) {
	base := SelfContainedScript("tool", "echo tool")
	withDeps := base.WithDependencies(
		Dependency{Name: "zlib"},
		Dependency{Name: "lib", Version: "1"},
		Dependency{Name: "lib", Version: "2"},
		Dependency{Name: "tool"},
	)

	want := []Dependency{{Name: "lib", Version: "2"}, {Name: "zlib"}}
	if diff := cmp.Diff(want, withDeps.Dependencies()); diff != "" {
		t.Errorf("Dependencies() mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, base.Dependencies(), "original value must not change")

	more := withDeps.WithDependencies(Dependency{Name: "extra"})
	assert.Len(t, more.Dependencies(), 3)
	assert.Len(t, withDeps.Dependencies(), 2)
}

func TestWithVersion(t *testing.T) {
	a := BinRelease("movement", GitHubPlatformRelease("movemntdev", "m1", "movement", ""))
	v := a.WithVersion("v1.0.0")

	assert.Equal(t, Latest, a.Version)
	assert.Equal(t, Version("v1.0.0"), v.Version)
	assert.Equal(t, Dependency{Name: "movement", Version: "v1.0.0"}, v.Ref())
	assert.Equal(t, "movement@v1.0.0 (release)", v.String())
}

func TestStrategyName(t *testing.T) {
	assert.Equal(t, "release", BinRelease("a", BinaryRelease{}).StrategyName())
	assert.Equal(t, "script", SelfContainedScript("a", "true").StrategyName())
	assert.Equal(t, "unsupported", Unsupported("a", "no").StrategyName())
	assert.Equal(t, "unsupported", Artifact{Name: "zero"}.StrategyName())
}

func TestBinaryRelease(t *testing.T) {
	r := GitHubPlatformRelease("movemntdev", "m1", "movement", ".exe")
	assert.Equal(t, "movement-windows-amd64.exe", r.AssetName(platform.WindowsAMD64))
	assert.True(t, r.Publishes(platform.DarwinARM64))

	r.Platforms = []platform.Platform{platform.LinuxAMD64}
	assert.True(t, r.Publishes(platform.LinuxAMD64))
	assert.False(t, r.Publishes(platform.DarwinARM64))
}
