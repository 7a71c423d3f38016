package app

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/vk/moveboot/internal/artifact"
	"github.com/vk/moveboot/internal/platform"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	Dir          string   // environment directory root
	CatalogPaths []string // hcl files
	Requirements string   // yaml file
	Requests     []artifact.Dependency

	// Build, when set, forces build-from-source (true) or download (false)
	// for the top-level requests.
	Build    *bool
	Platform platform.Platform

	DryRun bool
	List   bool

	LogFormat   string
	LogLevel    string
	MetricsPort int
	WorkerCount int
	ReleaseURL  string
}

// NewConfig validates cfg and fills defaults.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.Dir == "" {
		return nil, errors.New("Dir is a required configuration field and cannot be empty")
	}
	if cfg.Platform == (platform.Platform{}) {
		cfg.Platform = platform.Detect()
	}
	if !cfg.Platform.IsSupported() {
		return nil, fmt.Errorf("platform %s is not supported", cfg.Platform)
	}
	if cfg.WorkerCount < 1 {
		return nil, fmt.Errorf("worker count must be at least 1, got %d", cfg.WorkerCount)
	}
	if cfg.MetricsPort < 0 || cfg.MetricsPort > 65535 {
		return nil, fmt.Errorf("invalid metrics port %d", cfg.MetricsPort)
	}
	if !cfg.List && len(cfg.Requests) == 0 && cfg.Requirements == "" {
		return nil, errors.New("nothing to install: name at least one artifact or a requirements file")
	}
	return &cfg, nil
}

// EnvConfig holds the defaults read from the process environment.
type EnvConfig struct {
	Dir        string   `env:"MOVEMENT_DIR"`
	LogLevel   string   `env:"MOVEBOOT_LOG_LEVEL" envDefault:"info"`
	LogFormat  string   `env:"MOVEBOOT_LOG_FORMAT" envDefault:"text"`
	Workers    int      `env:"MOVEBOOT_WORKERS" envDefault:"1"`
	Catalog    []string `env:"MOVEBOOT_CATALOG" envSeparator:":"`
	ReleaseURL string   `env:"MOVEBOOT_RELEASE_URL"`
}

// LoadEnv loads configuration from environment variables.
func LoadEnv() (EnvConfig, error) {
	var cfg EnvConfig
	if err := env.Parse(&cfg); err != nil {
		return EnvConfig{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
