package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/moveboot/internal/app"
	"github.com/vk/moveboot/internal/artifact"
	"github.com/vk/moveboot/internal/platform"
	"github.com/vk/moveboot/internal/registry"
	"github.com/vk/moveboot/internal/script"
)

// Scenario describes one end-to-end run.
type Scenario struct {
	// Catalog maps file names to HCL content.
	Catalog map[string]string
	// Requests are "name[@version]" references.
	Requests []string
	// Dir is the environment directory. Empty means a fresh temp dir.
	Dir      string
	Platform platform.Platform
	Workers  int
	Build    *bool
	DryRun   bool
	Modules  []registry.Module
}

// HarnessResult holds the outcomes of an integration test run.
type HarnessResult struct {
	LogOutput string
	Err       error
	App       *app.App
	Dir       string
}

// RunIntegrationTest provides a standardized harness for running integration tests
// using a default background context.
func RunIntegrationTest(t *testing.T, server *ReleaseServer, sc Scenario) *HarnessResult {
	t.Helper()
	return RunIntegrationTestWithContext(context.Background(), t, server, sc)
}

// RunIntegrationTestWithContext builds an App from sc and runs it with ctx.
// Scripts run under sh so the tests do not depend on bash.
func RunIntegrationTestWithContext(ctx context.Context, t *testing.T, server *ReleaseServer, sc Scenario) *HarnessResult {
	t.Helper()

	tmpDir := t.TempDir()
	catalogDir := filepath.Join(tmpDir, "catalog")
	require.NoError(t, os.MkdirAll(catalogDir, 0o755))
	for name, content := range sc.Catalog {
		require.NoError(t, os.WriteFile(filepath.Join(catalogDir, name), []byte(content), 0o644))
	}

	dir := sc.Dir
	if dir == "" {
		dir = filepath.Join(tmpDir, "env")
	}
	target := sc.Platform
	if target == (platform.Platform{}) {
		target = platform.LinuxAMD64
	}
	workers := sc.Workers
	if workers == 0 {
		workers = 1
	}

	requests := make([]artifact.Dependency, 0, len(sc.Requests))
	for _, r := range sc.Requests {
		dep, err := artifact.ParseDependency(r)
		require.NoError(t, err)
		requests = append(requests, dep)
	}

	releaseURL := ""
	if server != nil {
		releaseURL = server.URL
	}

	cfg, err := app.NewConfig(app.Config{
		Dir:          dir,
		CatalogPaths: []string{catalogDir},
		Requests:     requests,
		Build:        sc.Build,
		Platform:     target,
		DryRun:       sc.DryRun,
		LogFormat:    "text",
		WorkerCount:  workers,
		ReleaseURL:   releaseURL,
	})
	require.NoError(t, err)

	logBuffer := &app.SafeBuffer{}
	cfg.LogLevel = "debug"
	testApp, err := app.NewApp(logBuffer, cfg, sc.Modules...)
	if err != nil {
		return &HarnessResult{LogOutput: logBuffer.String(), Err: err, Dir: dir}
	}
	testApp.Installer().Runner = &script.Shell{
		Path:      "sh",
		Args:      []string{"-c"},
		RootVar:   script.DefaultRootVar,
		MaxOutput: script.DefaultMaxOutput,
	}

	runErr := testApp.Run(ctx)

	t.Cleanup(func() {
		if os.Getenv("MOVEBOOT_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})

	return &HarnessResult{
		LogOutput: logBuffer.String(),
		Err:       runErr,
		App:       testApp,
		Dir:       dir,
	}
}
