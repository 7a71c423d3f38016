package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/vk/moveboot/internal/app"
	"github.com/vk/moveboot/internal/artifact"
	"github.com/vk/moveboot/internal/envdir"
	"github.com/vk/moveboot/internal/platform"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(format string, args ...any) error {
	return &ExitError{Code: 2, Message: fmt.Sprintf(format, args...)}
}

// pathList collects a repeatable flag. Each value may itself be a
// list-separated set of paths.
type pathList []string

func (p *pathList) String() string { return strings.Join(*p, string(filepath.ListSeparator)) }

func (p *pathList) Set(v string) error {
	for _, part := range filepath.SplitList(v) {
		if part != "" {
			*p = append(*p, part)
		}
	}
	return nil
}

// optionalBool is a boolean flag that remembers whether it was given.
type optionalBool struct{ v *bool }

func (o *optionalBool) String() string {
	if o == nil || o.v == nil {
		return ""
	}
	return strconv.FormatBool(*o.v)
}

func (o *optionalBool) Set(s string) error {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	o.v = &b
	return nil
}

func (o *optionalBool) IsBoolFlag() bool { return true }

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
// Environment variables supply the defaults that flags override.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	env, err := app.LoadEnv()
	if err != nil {
		return nil, false, usageError("%v", err)
	}

	flagSet := flag.NewFlagSet("moveboot", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
moveboot - installs the Movement toolchain and its dependencies.

Usage:
  moveboot [options] ARTIFACT[@VERSION]...

Arguments:
  ARTIFACT[@VERSION]
    Name of a registered artifact, optionally pinned to a version.

Options:
`)
		flagSet.PrintDefaults()
	}

	catalogs := pathList(env.Catalog)
	var build optionalBool

	dirFlag := flagSet.String("dir", env.Dir, "Environment directory. Defaults to $MOVEMENT_DIR or ~/"+envdir.DefaultDirName+".")
	flagSet.Var(&catalogs, "catalog", "HCL catalog file or directory. Repeatable, adds to $MOVEBOOT_CATALOG.")
	requirementsFlag := flagSet.String("requirements", "", "YAML file listing artifacts to install.")
	flagSet.Var(&build, "build", "Build requested artifacts from source (true) or download them (false).")
	versionFlag := flagSet.String("version", "", "Version to install. Only valid with a single artifact.")
	platformFlag := flagSet.String("platform", "", "Target platform as os/arch. Defaults to the host.")
	workersFlag := flagSet.Int("workers", env.Workers, "Number of concurrent installs.")
	dryRunFlag := flagSet.Bool("dry-run", false, "Print the install plan without installing.")
	listFlag := flagSet.Bool("list", false, "List registered artifacts and exit.")
	logFormatFlag := flagSet.String("log-format", env.LogFormat, "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", env.LogLevel, "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	metricsPortFlag := flagSet.Int("metrics-port", 0, "Port for the health and metrics server. 0 is disabled.")
	releaseURLFlag := flagSet.String("release-url", env.ReleaseURL, "Base URL for release downloads.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, usageError("%s", err.Error())
	}
	slog.Debug("Arguments parsed successfully.")

	if flagSet.NArg() == 0 && *requirementsFlag == "" && !*listFlag {
		slog.Debug("Nothing requested, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	requests := make([]artifact.Dependency, 0, flagSet.NArg())
	for _, arg := range flagSet.Args() {
		dep, err := artifact.ParseDependency(arg)
		if err != nil {
			return nil, false, usageError("%v", err)
		}
		requests = append(requests, dep)
	}
	if *versionFlag != "" {
		if len(requests) != 1 {
			return nil, false, usageError("--version requires exactly one artifact, got %d", len(requests))
		}
		if requests[0].Version != artifact.Latest && string(requests[0].Version) != *versionFlag {
			return nil, false, usageError("--version %s conflicts with %s", *versionFlag, requests[0])
		}
		requests[0].Version = artifact.Version(*versionFlag)
	}

	var target platform.Platform
	if *platformFlag != "" {
		target, err = platform.Parse(*platformFlag)
		if err != nil {
			return nil, false, usageError("%v", err)
		}
	}

	dir := *dirFlag
	if dir == "" {
		d, err := envdir.Default()
		if err != nil {
			return nil, false, usageError("%v", err)
		}
		dir = d.Root()
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, usageError("invalid log-format: must be 'text' or 'json'")
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, usageError("invalid log-level: must be 'debug', 'info', 'warn', or 'error'")
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		Dir:          dir,
		CatalogPaths: catalogs,
		Requirements: *requirementsFlag,
		Requests:     requests,
		Build:        build.v,
		Platform:     target,
		DryRun:       *dryRunFlag,
		List:         *listFlag,
		LogFormat:    logFormat,
		LogLevel:     logLevel,
		MetricsPort:  *metricsPortFlag,
		WorkerCount:  *workersFlag,
		ReleaseURL:   *releaseURLFlag,
	})
	if err != nil {
		return nil, false, usageError("%s", err.Error())
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
