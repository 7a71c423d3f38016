package installer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vk/moveboot/internal/apperrors"
	"github.com/vk/moveboot/internal/artifact"
	"github.com/vk/moveboot/internal/builder"
	"github.com/vk/moveboot/internal/ctxlog"
	"github.com/vk/moveboot/internal/dag"
	"github.com/vk/moveboot/internal/envdir"
	"github.com/vk/moveboot/internal/executor"
	"github.com/vk/moveboot/internal/fetch"
	"github.com/vk/moveboot/internal/metrics"
	"github.com/vk/moveboot/internal/platform"
	"github.com/vk/moveboot/internal/registry"
	"github.com/vk/moveboot/internal/script"
	"golang.org/x/sync/singleflight"
)

// Installer installs artifacts. One Installer may serve concurrent Install
// calls; an artifact requested by several of them is installed once.
type Installer struct {
	Fetcher fetch.Fetcher
	Runner  script.Runner
	// Workers bounds how many artifacts install concurrently. One gives a
	// strictly sequential run in topological order.
	Workers int
	Metrics metrics.Recorder
	Now     func() time.Time

	claims singleflight.Group
}

// New returns an Installer with a single worker and no metrics.
func New(f fetch.Fetcher, r script.Runner) *Installer {
	return &Installer{Fetcher: f, Runner: r, Workers: 1, Metrics: metrics.Noop{}, Now: time.Now}
}

// Plan resolves deps and returns the artifacts in the order Install would
// process them. It has no side effects.
func (in *Installer) Plan(ctx context.Context, reg *registry.Registry, deps []artifact.Dependency, opts registry.Options) ([]artifact.Artifact, error) {
	g, err := builder.Build(ctx, reg, deps, opts)
	if err != nil {
		return nil, err
	}
	nodes, err := g.TopologicalOrder()
	if err != nil {
		return nil, err
	}
	out := make([]artifact.Artifact, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Artifact)
	}
	return out, nil
}

// Install resolves deps against reg and installs every artifact of the
// closure into dir. It returns the synchronised directory.
func (in *Installer) Install(ctx context.Context, dir *envdir.Dir, reg *registry.Registry, deps []artifact.Dependency, opts registry.Options) (*envdir.Dir, error) {
	logger := ctxlog.FromContext(ctx)
	start := time.Now()

	err := in.install(ctx, dir, reg, deps, opts)
	in.metrics().RecordRun(err == nil, time.Since(start))
	if err != nil {
		return nil, err
	}
	logger.Info("Installation complete.", "artifacts", dir.Manifest().Len(), "duration", time.Since(start))
	return dir, nil
}

func (in *Installer) install(ctx context.Context, dir *envdir.Dir, reg *registry.Registry, deps []artifact.Dependency, opts registry.Options) error {
	logger := ctxlog.FromContext(ctx)

	logger.Debug("Synchronising environment directory.", "root", dir.Root())
	if _, err := dir.Sync(); err != nil {
		return err
	}

	g, err := builder.Build(ctx, reg, deps, opts)
	if err != nil {
		return err
	}

	if err := preflight(g, dir.Manifest()); err != nil {
		return err
	}

	logger.Info("Installing artifacts.", "count", g.Len(), "workers", in.workers())
	exec, err := executor.New(g, in.workers(), func(ctx context.Context, n *dag.Node) error {
		return in.claim(ctx, target{dir: dir, platform: opts.Platform}, n.Artifact)
	})
	if err != nil {
		return err
	}
	return exec.Run(ctx)
}

// preflight rejects artifacts pinned to a version other than the installed
// one. It runs before any side effect.
func preflight(g *dag.Graph, m *envdir.Manifest) error {
	nodes, err := g.TopologicalOrder()
	if err != nil {
		return err
	}
	for _, n := range nodes {
		a := n.Artifact
		if a.Version == artifact.Latest {
			continue
		}
		entries := m.Lookup(a.Name)
		if len(entries) == 0 {
			continue
		}
		if _, ok := m.Get(a.Name, a.Version); !ok {
			return apperrors.VersionConflict(a.Name, string(entries[0].Version), string(a.Version))
		}
	}
	return nil
}

// installed returns the manifest entry satisfying a. An artifact without a
// version is satisfied by any installed version of its name.
func installed(m *envdir.Manifest, a artifact.Artifact) (envdir.Entry, bool) {
	if a.Version != artifact.Latest {
		return m.Get(a.Name, a.Version)
	}
	entries := m.Lookup(a.Name)
	if len(entries) == 0 {
		return envdir.Entry{}, false
	}
	return entries[len(entries)-1], true
}

// target is where and for which platform one run installs.
type target struct {
	dir      *envdir.Dir
	platform platform.Platform
}

// claim installs a at most once across concurrent calls targeting the same
// directory root. Later callers wait for and share the first caller's
// outcome. A shared success is merged into the caller's own manifest, which
// may belong to a different Dir on the same root. A shared cancellation that
// the caller did not ask for is retried.
func (in *Installer) claim(ctx context.Context, t target, a artifact.Artifact) error {
	logger := ctxlog.FromContext(ctx)
	key := t.dir.Root() + "\x00" + a.Ref().String()

	for {
		_, err, shared := in.claims.Do(key, func() (any, error) {
			return nil, in.installOne(ctx, t, a)
		})
		if !shared {
			return err
		}
		logger.Debug("Shared install outcome with a concurrent claim.", "artifact", a.Name)

		if err == nil {
			return in.adopt(t, a)
		}
		interrupted := errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		if !interrupted || ctx.Err() != nil {
			return err
		}
		logger.Debug("Concurrent claim was interrupted, retrying.", "artifact", a.Name)
	}
}

// adopt makes an artifact installed through another Dir on the same root
// visible in t's manifest.
func (in *Installer) adopt(t target, a artifact.Artifact) error {
	m := t.dir.Manifest()
	if _, ok := installed(m, a); ok {
		return nil
	}
	if err := m.Reload(); err != nil {
		return apperrors.DirectorySyncFailed(t.dir.ManifestPath(), err)
	}
	if _, ok := installed(m, a); !ok {
		return apperrors.DirectorySyncFailed(t.dir.ManifestPath(),
			fmt.Errorf("'%s' was installed by a concurrent run but is missing from the manifest", a.Ref()))
	}
	return nil
}

func (in *Installer) installOne(ctx context.Context, t target, a artifact.Artifact) error {
	logger := ctxlog.FromContext(ctx).With("artifact", a.Name, "version", a.Version.String(), "strategy", a.StrategyName())
	m := t.dir.Manifest()

	if entry, ok := installed(m, a); ok {
		logger.Info("Artifact already installed, skipping.", "installed_at", entry.InstalledAt)
		in.metrics().RecordInstall(a.Name, a.StrategyName(), metrics.OutcomeSkipped, 0)
		return nil
	}

	in.metrics().IncInFlight()
	defer in.metrics().DecInFlight()

	start := time.Now()
	logger.Info("Installing artifact.")
	path, err := in.materialise(ctx, t, a)
	if err == nil {
		err = m.Record(envdir.Entry{
			Name:        a.Name,
			Version:     a.Version,
			Strategy:    a.StrategyName(),
			Path:        path,
			InstalledAt: in.now(),
		})
		if err != nil {
			err = apperrors.DirectorySyncFailed(t.dir.ManifestPath(), err)
		}
	}
	if err != nil {
		in.metrics().RecordInstall(a.Name, a.StrategyName(), metrics.OutcomeFailed, time.Since(start))
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			logger.Warn("Artifact install interrupted.", "error", err)
		} else {
			logger.Error("Artifact install failed.", "error", err)
		}
		return err
	}

	in.metrics().RecordInstall(a.Name, a.StrategyName(), metrics.OutcomeInstalled, time.Since(start))
	logger.Info("Artifact installed.", "path", path, "duration", time.Since(start))
	return nil
}

// materialise dispatches on the artifact's strategy and returns the
// installed path relative to the environment root.
func (in *Installer) materialise(ctx context.Context, t target, a artifact.Artifact) (string, error) {
	switch s := a.Strategy.(type) {
	case artifact.BinaryRelease:
		return in.installRelease(ctx, t, a, s)
	case artifact.Script:
		return in.runScript(ctx, t, a, s)
	case artifact.UnsupportedStrategy:
		return "", apperrors.UnsupportedPlatform(a.Name, s.Reason)
	case nil:
		return "", apperrors.UnsupportedPlatform(a.Name, "no acquisition strategy")
	default:
		return "", fmt.Errorf("artifact '%s': unhandled strategy %T", a.Name, s)
	}
}

func (in *Installer) workers() int {
	if in.Workers < 1 {
		return 1
	}
	return in.Workers
}

func (in *Installer) metrics() metrics.Recorder {
	if in.Metrics == nil {
		return metrics.Noop{}
	}
	return in.Metrics
}

func (in *Installer) now() time.Time {
	if in.Now == nil {
		return time.Now()
	}
	return in.Now()
}
