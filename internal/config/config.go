// Package config holds engine configuration. Invalid configuration is
// the only condition surfaced as a synchronous error at construction
// time; everything else in the engine folds failures into chunk state.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config controls scheduling and the worker path.
type Config struct {
	// UseWorker routes leaf parsing through the worker pool; when
	// false the same algorithm runs inline on the processing loop.
	UseWorker bool `yaml:"use_worker"`

	// Workers is the pool size; 0 means NumCPU.
	Workers int `yaml:"workers" validate:"min=0,max=256"`

	// EditDebounce coalesces rapid edits into one dirty pass.
	EditDebounce time.Duration `yaml:"edit_debounce" validate:"required,min=1ms,max=10s"`

	// ProcessingInterval is the background drain tick.
	ProcessingInterval time.Duration `yaml:"processing_interval" validate:"required,min=10ms,max=1m"`

	// DrainRatePerSec caps background drain passes; 0 disables the
	// limiter and drains on every tick.
	DrainRatePerSec float64 `yaml:"drain_rate_per_sec" validate:"min=0,max=1000"`
}

// Default returns the tuned defaults.
func Default() Config {
	return Config{
		UseWorker:          true,
		Workers:            runtime.NumCPU(),
		EditDebounce:       250 * time.Millisecond,
		ProcessingInterval: 1 * time.Second,
		DrainRatePerSec:    4,
	}
}

// Load reads configuration from the optional yaml file named by
// STORYLENS_CONFIG, applies environment overrides, and validates.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("STORYLENS_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("STORYLENS_USE_WORKER"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.UseWorker = b
		}
	}
	if v := os.Getenv("STORYLENS_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workers = n
		}
	}
	if v := os.Getenv("STORYLENS_EDIT_DEBOUNCE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.EditDebounce = d
		}
	}
	if v := os.Getenv("STORYLENS_PROCESSING_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ProcessingInterval = d
		}
	}
	if v := os.Getenv("STORYLENS_DRAIN_RATE_PER_SEC"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.DrainRatePerSec = f
		}
	}
}

// Validate checks the configuration with structured validation.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
