package installer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/moveboot/internal/apperrors"
	"github.com/vk/moveboot/internal/artifact"
	"github.com/vk/moveboot/internal/envdir"
	"github.com/vk/moveboot/internal/fetch"
	"github.com/vk/moveboot/internal/platform"
	"github.com/vk/moveboot/internal/registry"
	"github.com/vk/moveboot/internal/script"
)

// --- fakes ---

type fakeFetcher struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
	gate  chan struct{}
}

func (f *fakeFetcher) Fetch(ctx context.Context, req fetch.Request) (io.ReadCloser, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.Release.Product)
	err := f.fail[req.Release.Product]
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewBufferString("#!/bin/sh\necho " + req.Release.Product + "\n")), nil
}

func (f *fakeFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []string
	run   map[string]func(ctx context.Context, p script.Procedure) (script.Result, error)
}

func (r *fakeRunner) Run(ctx context.Context, p script.Procedure) (script.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, p.Name)
	fn := r.run[p.Name]
	r.mu.Unlock()

	if fn != nil {
		return fn(ctx, p)
	}
	return script.Result{}, nil
}

func (r *fakeRunner) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type catalog map[string]artifact.Artifact

func (c catalog) Register(r *registry.Registry) {
	for name, a := range c {
		r.Register(name, registry.Static{Artifact: a})
	}
}

// --- helpers ---

var linux = registry.Options{Platform: platform.LinuxAMD64}

func release(name string) artifact.Artifact {
	return artifact.BinRelease(name, artifact.GitHubPlatformRelease("acme", name, name, ""))
}

func refs(t *testing.T, names ...string) []artifact.Dependency {
	t.Helper()
	out := make([]artifact.Dependency, 0, len(names))
	for _, n := range names {
		d, err := artifact.ParseDependency(n)
		require.NoError(t, err)
		out = append(out, d)
	}
	return out
}

// tickingClock returns strictly increasing timestamps.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

type fixture struct {
	fetcher   *fakeFetcher
	runner    *fakeRunner
	installer *Installer
	dir       *envdir.Dir
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		fetcher: &fakeFetcher{},
		runner:  &fakeRunner{run: map[string]func(context.Context, script.Procedure) (script.Result, error){}},
		dir:     envdir.New(filepath.Join(t.TempDir(), "env")),
	}
	f.installer = New(f.fetcher, f.runner)
	f.installer.Now = tickingClock()
	return f
}

// writesOutput makes the fake procedure produce rel under the root.
func writesOutput(rel string) func(context.Context, script.Procedure) (script.Result, error) {
	return func(_ context.Context, p script.Procedure) (script.Result, error) {
		path := filepath.Join(p.Dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return script.Result{}, err
		}
		return script.Result{}, os.WriteFile(path, []byte("built"), 0o755)
	}
}

func names(entries []envdir.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Name)
	}
	return out
}

// --- tests ---

func TestInstall_EndToEndScenario(t *testing.T) {
	f := newFixture(t)
	lib := release("lib")
	tool := artifact.SelfContainedScript("tool", "make tool", "bin/tool").
		WithDependencies(artifact.Dependency{Name: "lib"})
	reg := registry.New(catalog{"lib": lib, "tool": tool})
	f.runner.run["tool"] = func(ctx context.Context, p script.Procedure) (script.Result, error) {
		_, err := os.Stat(filepath.Join(p.Dir, "bin", "lib"))
		if err != nil {
			return script.Result{}, errors.New("lib must be installed before tool")
		}
		return writesOutput("bin/tool")(ctx, p)
	}

	dir, err := f.installer.Install(context.Background(), f.dir, reg, refs(t, "tool", "lib"), linux)
	require.NoError(t, err)
	require.Same(t, f.dir, dir)

	assert.Equal(t, []string{"lib"}, f.fetcher.Calls())
	assert.Equal(t, []string{"tool"}, f.runner.Calls())

	first := dir.Manifest().Entries()
	assert.Equal(t, []string{"lib", "tool"}, names(first))

	libEntry, _ := dir.Manifest().Get("lib", artifact.Latest)
	toolEntry, _ := dir.Manifest().Get("tool", artifact.Latest)
	assert.True(t, libEntry.InstalledAt.Before(toolEntry.InstalledAt))
	assert.Equal(t, "bin/lib", libEntry.Path)
	assert.Equal(t, "release", libEntry.Strategy)
	assert.Equal(t, "bin/tool", toolEntry.Path)
	assert.Equal(t, "script", toolEntry.Strategy)

	info, err := os.Stat(filepath.Join(dir.Bin(), "lib"))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0o100, "release binary must be executable")

	t.Run("re-run is a no-op", func(t *testing.T) {
		again, err := f.installer.Install(context.Background(), envdir.New(f.dir.Root()), reg, refs(t, "tool", "lib"), linux)
		require.NoError(t, err)
		assert.Equal(t, []string{"lib"}, f.fetcher.Calls())
		assert.Equal(t, []string{"tool"}, f.runner.Calls())
		if diff := cmp.Diff(first, again.Manifest().Entries()); diff != "" {
			t.Errorf("manifest changed on re-run (-want +got):\n%s", diff)
		}
	})
}

func TestInstall_CycleLeavesManifestUntouched(t *testing.T) {
	f := newFixture(t)
	reg := registry.New(catalog{
		"a": artifact.SelfContainedScript("a", "true").WithDependencies(artifact.Dependency{Name: "b"}),
		"b": artifact.SelfContainedScript("b", "true").WithDependencies(artifact.Dependency{Name: "a"}),
	})

	_, err := f.dir.Sync()
	require.NoError(t, err)
	before, err := os.ReadFile(f.dir.ManifestPath())
	require.NoError(t, err)

	_, err = f.installer.Install(context.Background(), f.dir, reg, refs(t, "a"), linux)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrCyclicDependency))

	var appErr *apperrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.ElementsMatch(t, []string{"a", "b"}, appErr.Members[:2])

	after, err := os.ReadFile(f.dir.ManifestPath())
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
	assert.Empty(t, f.runner.Calls())
}

func TestInstall_UnknownArtifact(t *testing.T) {
	f := newFixture(t)
	reg := registry.New(catalog{
		"tool": artifact.SelfContainedScript("tool", "true").WithDependencies(artifact.Dependency{Name: "ghost"}),
	})

	_, err := f.installer.Install(context.Background(), f.dir, reg, refs(t, "tool"), linux)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrUnknownArtifact))
	assert.Equal(t, "ghost", apperrors.ArtifactOf(err))
	assert.Empty(t, f.runner.Calls())
}

func TestInstall_UnsupportedPlatform(t *testing.T) {
	f := newFixture(t)
	reg := registry.New(catalog{
		"native": artifact.Unsupported("native", "no windows build"),
		"app":    artifact.SelfContainedScript("app", "true").WithDependencies(artifact.Dependency{Name: "native"}),
	})

	dir := f.dir
	_, err := f.installer.Install(context.Background(), dir, reg, refs(t, "app"), linux)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrUnsupportedPlatform))
	assert.Equal(t, "native", apperrors.ArtifactOf(err))
	assert.Empty(t, f.runner.Calls(), "dependents of an unsupported artifact must not run")
	assert.Zero(t, dir.Manifest().Len())
}

func TestInstall_FailedInstallIsNotRecorded(t *testing.T) {
	f := newFixture(t)
	netErr := errors.New("connection reset")
	f.fetcher.fail = map[string]error{"broken": netErr}
	reg := registry.New(catalog{
		"ok":     release("ok"),
		"broken": release("broken").WithDependencies(artifact.Dependency{Name: "ok"}),
		"top":    artifact.SelfContainedScript("top", "true").WithDependencies(artifact.Dependency{Name: "broken"}),
	})

	_, err := f.installer.Install(context.Background(), f.dir, reg, refs(t, "top"), linux)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrFetchFailed))
	assert.True(t, errors.Is(err, netErr))

	m := f.dir.Manifest()
	_, ok := m.Get("ok", artifact.Latest)
	assert.True(t, ok, "artifacts completed before the failure stay recorded")
	_, ok = m.Get("broken", artifact.Latest)
	assert.False(t, ok)
	assert.Empty(t, f.runner.Calls())

	_, err = os.Stat(filepath.Join(f.dir.Bin(), "broken"))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	t.Run("corrected re-run resumes", func(t *testing.T) {
		f.fetcher.mu.Lock()
		f.fetcher.fail = nil
		f.fetcher.calls = nil
		f.fetcher.mu.Unlock()

		_, err := f.installer.Install(context.Background(), f.dir, reg, refs(t, "top"), linux)
		require.NoError(t, err)
		assert.Equal(t, []string{"broken"}, f.fetcher.Calls())
		assert.Equal(t, 3, f.dir.Manifest().Len())
	})
}

func TestInstall_BuildFailure(t *testing.T) {
	f := newFixture(t)
	reg := registry.New(catalog{
		"fails":  artifact.SelfContainedScript("fails", "exit 2"),
		"silent": artifact.SelfContainedScript("silent", "true", "bin/silent"),
	})
	f.runner.run["fails"] = func(context.Context, script.Procedure) (script.Result, error) {
		return script.Result{Output: []byte("compiler exploded\n"), ExitCode: 2}, script.ErrExit
	}

	t.Run("non-zero exit", func(t *testing.T) {
		_, err := f.installer.Install(context.Background(), f.dir, reg, refs(t, "fails"), linux)
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperrors.ErrBuildFailed))
		assert.True(t, errors.Is(err, script.ErrExit))
		assert.Contains(t, err.Error(), "compiler exploded")
	})

	t.Run("missing declared output", func(t *testing.T) {
		_, err := f.installer.Install(context.Background(), f.dir, reg, refs(t, "silent"), linux)
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperrors.ErrBuildFailed))
		assert.Contains(t, err.Error(), "bin/silent")
		_, ok := f.dir.Manifest().Get("silent", artifact.Latest)
		assert.False(t, ok)
	})
}

func TestInstall_ScriptEnvironment(t *testing.T) {
	f := newFixture(t)
	a := artifact.SelfContainedScript("envy", "true")
	a.Strategy = artifact.Script{Body: "true", Env: map[string]string{"CC": "clang"}}
	reg := registry.New(catalog{"envy": a})

	var got script.Procedure
	f.runner.run["envy"] = func(_ context.Context, p script.Procedure) (script.Result, error) {
		got = p
		return script.Result{}, nil
	}

	_, err := f.installer.Install(context.Background(), f.dir, reg, refs(t, "envy"), linux)
	require.NoError(t, err)
	assert.Equal(t, f.dir.Root(), got.Dir)
	assert.Equal(t, map[string]string{"CC": "clang"}, got.Env)
}

func TestInstall_VersionConflictWithManifest(t *testing.T) {
	f := newFixture(t)
	reg := registry.New(catalog{"tool": release("tool")})

	_, err := f.installer.Install(context.Background(), f.dir, reg, refs(t, "tool@v1"), linux)
	require.NoError(t, err)

	_, err = f.installer.Install(context.Background(), f.dir, reg, refs(t, "tool@v2"), linux)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrVersionConflict))
	assert.Contains(t, err.Error(), "resolved v1, requested v2")
	assert.Len(t, f.fetcher.Calls(), 1)

	t.Run("unversioned request is satisfied by the installed version", func(t *testing.T) {
		_, err := f.installer.Install(context.Background(), f.dir, reg, refs(t, "tool"), linux)
		require.NoError(t, err)
		assert.Len(t, f.fetcher.Calls(), 1)
	})
}

func TestInstall_VersionConflictWithinRun(t *testing.T) {
	f := newFixture(t)
	reg := registry.New(catalog{
		"lib": release("lib"),
		"app": artifact.SelfContainedScript("app", "true").WithDependencies(artifact.Dependency{Name: "lib", Version: "v2"}),
	})

	_, err := f.installer.Install(context.Background(), f.dir, reg, refs(t, "lib@v1", "app"), linux)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrVersionConflict))
	assert.Empty(t, f.fetcher.Calls())
	assert.Zero(t, f.dir.Manifest().Len())
}

func TestInstall_ConcurrentRunsInstallOnce(t *testing.T) {
	f := newFixture(t)
	f.installer.Workers = 4
	f.fetcher.gate = make(chan struct{})
	reg := registry.New(catalog{"shared": release("shared")})

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.installer.Install(context.Background(), f.dir, reg, refs(t, "shared"), linux)
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(f.fetcher.gate)
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"shared"}, f.fetcher.Calls())
	assert.Equal(t, 1, f.dir.Manifest().Len())
}

func TestInstall_ParallelBranchesRecordEveryArtifact(t *testing.T) {
	f := newFixture(t)
	f.installer.Workers = 4
	reg := registry.New(catalog{
		"a":   release("a"),
		"b":   release("b"),
		"c":   release("c"),
		"top": artifact.SelfContainedScript("top", "true").WithDependencies(artifact.Dependency{Name: "a"}, artifact.Dependency{Name: "b"}, artifact.Dependency{Name: "c"}),
	})

	_, err := f.installer.Install(context.Background(), f.dir, reg, refs(t, "top"), linux)
	require.NoError(t, err)

	m := f.dir.Manifest()
	assert.Equal(t, []string{"a", "b", "c", "top"}, names(m.Entries()))
	top, _ := m.Get("top", artifact.Latest)
	for _, dep := range []string{"a", "b", "c"} {
		e, _ := m.Get(dep, artifact.Latest)
		assert.False(t, e.InstalledAt.After(top.InstalledAt), "%s recorded after its dependent", dep)
	}
}

func TestInstall_Cancellation(t *testing.T) {
	f := newFixture(t)
	reg := registry.New(catalog{
		"first": release("first"),
		"slow":  artifact.SelfContainedScript("slow", "sleep 100").WithDependencies(artifact.Dependency{Name: "first"}),
		"after": artifact.SelfContainedScript("after", "true").WithDependencies(artifact.Dependency{Name: "slow"}),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var started atomic.Bool
	f.runner.run["slow"] = func(ctx context.Context, p script.Procedure) (script.Result, error) {
		started.Store(true)
		cancel()
		<-ctx.Done()
		return script.Result{ExitCode: -1}, ctx.Err()
	}

	_, err := f.installer.Install(ctx, f.dir, reg, refs(t, "after"), linux)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, started.Load())

	m := f.dir.Manifest()
	assert.Equal(t, []string{"first"}, names(m.Entries()))
	assert.Equal(t, []string{"slow"}, f.runner.Calls())
}

func TestInstall_DirectorySyncFailure(t *testing.T) {
	f := newFixture(t)
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	_, err := f.installer.Install(context.Background(), envdir.New(filepath.Join(blocker, "env")), registry.New(), nil, linux)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrDirectorySyncFailed))
}

func TestPlan(t *testing.T) {
	f := newFixture(t)
	reg := registry.New(catalog{
		"lib":  release("lib"),
		"tool": artifact.SelfContainedScript("tool", "true").WithDependencies(artifact.Dependency{Name: "lib"}),
	})

	plan, err := f.installer.Plan(context.Background(), reg, refs(t, "tool"), linux)
	require.NoError(t, err)

	var got []string
	for _, a := range plan {
		got = append(got, a.Name)
	}
	assert.Equal(t, []string{"lib", "tool"}, got)

	_, err = os.Stat(f.dir.Root())
	assert.True(t, errors.Is(err, os.ErrNotExist), "plan must not touch the environment directory")
	assert.Empty(t, f.fetcher.Calls())
}

func TestInstall_SeparateDirsOnOneRootKeepEveryEntry(t *testing.T) {
	f := newFixture(t)
	f.installer.Workers = 2
	f.fetcher.gate = make(chan struct{})
	reg := registry.New(catalog{
		"x": release("x"),
		"y": artifact.SelfContainedScript("y", "true").WithDependencies(artifact.Dependency{Name: "x"}),
	})
	other := envdir.New(f.dir.Root())

	errA := make(chan error, 1)
	go func() {
		_, err := f.installer.Install(context.Background(), f.dir, reg, refs(t, "x"), linux)
		errA <- err
	}()
	require.Eventually(t, func() bool { return len(f.fetcher.Calls()) == 1 }, time.Second, 5*time.Millisecond)

	errB := make(chan error, 1)
	go func() {
		_, err := f.installer.Install(context.Background(), other, reg, refs(t, "y"), linux)
		errB <- err
	}()
	time.Sleep(50 * time.Millisecond)
	close(f.fetcher.gate)

	require.NoError(t, <-errA)
	require.NoError(t, <-errB)
	assert.Equal(t, []string{"x"}, f.fetcher.Calls())
	assert.Equal(t, []string{"y"}, f.runner.Calls())

	_, ok := other.Manifest().Get("x", artifact.Latest)
	assert.True(t, ok, "the dependency installed by the other run is visible")

	onDisk, err := envdir.New(f.dir.Root()).Sync()
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, names(onDisk.Manifest().Entries()))
}

func TestInstall_SharedClaimRetriesAfterOtherCallerCanceled(t *testing.T) {
	f := newFixture(t)
	f.fetcher.gate = make(chan struct{})
	reg := registry.New(catalog{"shared": release("shared")})

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()

	errA := make(chan error, 1)
	go func() {
		_, err := f.installer.Install(ctxA, f.dir, reg, refs(t, "shared"), linux)
		errA <- err
	}()
	require.Eventually(t, func() bool { return len(f.fetcher.Calls()) == 1 }, time.Second, 5*time.Millisecond)

	errB := make(chan error, 1)
	go func() {
		_, err := f.installer.Install(context.Background(), f.dir, reg, refs(t, "shared"), linux)
		errB <- err
	}()
	time.Sleep(50 * time.Millisecond)

	cancelA()
	err := <-errA
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	close(f.fetcher.gate)
	require.NoError(t, <-errB)
	assert.Equal(t, []string{"shared", "shared"}, f.fetcher.Calls())
	_, ok := f.dir.Manifest().Get("shared", artifact.Latest)
	assert.True(t, ok)
}
