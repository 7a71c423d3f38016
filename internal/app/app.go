package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/vk/moveboot/internal/catalog"
	"github.com/vk/moveboot/internal/ctxlog"
	"github.com/vk/moveboot/internal/fetch"
	"github.com/vk/moveboot/internal/installer"
	"github.com/vk/moveboot/internal/metrics"
	"github.com/vk/moveboot/internal/registry"
	"github.com/vk/moveboot/internal/script"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW       io.Writer
	ctx        context.Context
	logger     *slog.Logger
	config     *Config
	registry   *registry.Registry
	installer  *installer.Installer
	metrics    *metrics.PrometheusRecorder
	httpServer *http.Server
	runID      string
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger and registry.
// Catalog files named by the config are loaded and validated here.
func NewApp(outW io.Writer, cfg *Config, modules ...registry.Module) (*App, error) {
	runID := uuid.NewString()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW).With("run_id", runID)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All Go modules registered.", "count", len(modules))

	if len(cfg.CatalogPaths) > 0 {
		cat, err := catalog.Load(ctx, cfg.CatalogPaths...)
		if err != nil {
			return nil, fmt.Errorf("failed to load catalog: %w", err)
		}
		for _, name := range cat.Names() {
			if reg.Has(name) {
				return nil, fmt.Errorf("catalog artifact '%s' shadows a built-in artifact", name)
			}
		}
		cat.Register(reg)
		logger.Debug("Catalog artifacts registered.", "count", cat.Len())
	}

	if _, err := reg.ValidateRegistry(ctx); err != nil {
		return nil, err
	}
	logger.Debug("Registry validation passed.", "artifacts", reg.Len())

	recorder := metrics.NewPrometheusRecorder()
	inst := installer.New(fetch.NewGitHub(cfg.ReleaseURL, &http.Client{}), script.NewShell())
	inst.Workers = cfg.WorkerCount
	inst.Metrics = recorder

	return &App{
		outW:      outW,
		ctx:       ctx,
		logger:    logger,
		config:    cfg,
		registry:  reg,
		installer: inst,
		metrics:   recorder,
		runID:     runID,
	}, nil
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Installer returns the installer used by Run. Tests replace its fetcher and
// runner before calling Run.
func (a *App) Installer() *installer.Installer {
	return a.installer
}

// RunID identifies this App's run in logs.
func (a *App) RunID() string {
	return a.runID
}
