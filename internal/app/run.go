package app

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/vk/moveboot/internal/artifact"
	"github.com/vk/moveboot/internal/ctxlog"
	"github.com/vk/moveboot/internal/envdir"
	"github.com/vk/moveboot/internal/registry"
)

// Run executes the main application logic based on the App's configuration.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if a.config.MetricsPort > 0 {
		a.healthCheckServer()
		defer a.closeHealthCheckServer()
	}

	opts := registry.Options{Platform: a.config.Platform, FromSource: a.config.Build}

	if a.config.List {
		return a.list(opts)
	}

	requests, err := a.requests()
	if err != nil {
		return err
	}
	a.logger.Debug("Requests collected.", "count", len(requests), "platform", opts.Platform.String())

	if a.config.DryRun {
		plan, err := a.installer.Plan(ctx, a.registry, requests, opts)
		if err != nil {
			return err
		}
		a.printPlan(plan)
		return nil
	}

	a.logger.Info("Starting installation.", "dir", a.config.Dir)
	dir, err := a.installer.Install(ctx, envdir.New(a.config.Dir), a.registry, requests, opts)
	if err != nil {
		return fmt.Errorf("installation failed: %w", err)
	}
	a.printManifest(dir)

	a.logger.Debug("App.Run method finished.")
	return nil
}

// requests merges the requirements file with the positional requests.
func (a *App) requests() ([]artifact.Dependency, error) {
	var out []artifact.Dependency
	if a.config.Requirements != "" {
		deps, err := LoadRequirements(a.config.Requirements)
		if err != nil {
			return nil, err
		}
		out = append(out, deps...)
	}
	return append(out, a.config.Requests...), nil
}

func (a *App) list(opts registry.Options) error {
	tw := tabwriter.NewWriter(a.outW, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSTRATEGY\tDEPENDS ON")
	for _, name := range a.registry.Names() {
		c, _ := a.registry.Lookup(name)
		art := registry.Construct(c, artifact.Dependency{Name: name}, opts, true)
		fmt.Fprintf(tw, "%s\t%s\t%s\n", name, art.StrategyName(), joinDeps(art.Dependencies()))
	}
	return tw.Flush()
}

func (a *App) printPlan(plan []artifact.Artifact) {
	tw := tabwriter.NewWriter(a.outW, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tARTIFACT\tVERSION\tSTRATEGY")
	for i, art := range plan {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, art.Name, art.Version, art.StrategyName())
	}
	tw.Flush()
}

func (a *App) printManifest(dir *envdir.Dir) {
	tw := tabwriter.NewWriter(a.outW, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ARTIFACT\tVERSION\tSTRATEGY\tINSTALLED AT")
	for _, e := range dir.Manifest().Entries() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Name, e.Version, e.Strategy, e.InstalledAt.Format("2006-01-02T15:04:05Z07:00"))
	}
	tw.Flush()
}

func joinDeps(deps []artifact.Dependency) string {
	if len(deps) == 0 {
		return "-"
	}
	s := deps[0].String()
	for _, d := range deps[1:] {
		s += ", " + d.String()
	}
	return s
}
