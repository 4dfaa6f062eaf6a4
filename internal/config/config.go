// Package config loads the settings shared by the CLI and the HTTP service.
//
// Sources are applied in order: built-in defaults, the YAML file, a .env file
// and finally STEPFLOW_* environment variables (STEPFLOW_LOG_LEVEL,
// STEPFLOW_STORE_REDIS_ADDR, STEPFLOW_RUN_MAX_STEPS, ...). Command line flags are
// applied on top by the caller.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/aretw0/stepflow/internal/logging"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "stepflow"

// Store kinds.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

type Config struct {
	Log       LogConfig    `yaml:"log"`
	Server    ServerConfig `yaml:"server"`
	Store     StoreConfig  `yaml:"store"`
	Run       RunConfig    `yaml:"run"`
	Steps     StepsConfig  `yaml:"steps"`
	Workflows string       `yaml:"workflows"` // Directory served by `serve` when no files are given.
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ServerConfig struct {
	Addr    string `yaml:"addr"`
	Metrics bool   `yaml:"metrics"`
}

type StoreConfig struct {
	Kind          string        `yaml:"kind"`
	Path          string        `yaml:"path"`
	RedisAddr     string        `yaml:"redis_addr" envconfig:"redis_addr"`
	RedisPassword string        `yaml:"redis_password" envconfig:"redis_password"`
	RedisDB       int           `yaml:"redis_db" envconfig:"redis_db"`
	Prefix        string        `yaml:"prefix"`
	TTL           time.Duration `yaml:"ttl"`
	EncryptionKey string        `yaml:"encryption_key" envconfig:"encryption_key"` // Hex or base64 encoded AES key.
	PreviousKeys  []string      `yaml:"previous_keys" envconfig:"previous_keys"`
	MaskFields    []string      `yaml:"mask_fields" envconfig:"mask_fields"`
}

type RunConfig struct {
	MaxSteps    int           `yaml:"max_steps" envconfig:"max_steps"`
	Timeout     time.Duration `yaml:"timeout"`
	StepTimeout time.Duration `yaml:"step_timeout" envconfig:"step_timeout"`
	Retries     int           `yaml:"retries"`
}

// StepsConfig backs the built-in research steps.
type StepsConfig struct {
	OutputDir       string `yaml:"output_dir" envconfig:"output_dir"`             // Base directory of save_results.
	SummaryTemplate string `yaml:"summary_template" envconfig:"summary_template"` // text/template over the results; empty selects the default.
	SearchFixtures  string `yaml:"search_fixtures" envconfig:"search_fixtures"`   // YAML or JSON list of canned web_search results.
	Commands        string `yaml:"commands"`                                      // Allow-list file for run_command.
	WorkDir         string `yaml:"work_dir" envconfig:"work_dir"`                 // Working directory of run_command processes.
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Log:    LogConfig{Level: "info", Format: string(logging.FormatText)},
		Server: ServerConfig{Addr: ":8080", Metrics: true},
		Store:  StoreConfig{Kind: StoreMemory, Path: ".stepflow/runs", Prefix: "stepflow"},
		Run:    RunConfig{MaxSteps: 100},
		Steps:  StepsConfig{OutputDir: ".stepflow/output"},
	}
}

// Load builds the configuration. path may be empty; a missing .env file is ignored.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if _, err := logging.ParseFormat(c.Log.Format); err != nil {
		errs = append(errs, err)
	}
	switch c.Store.Kind {
	case StoreMemory:
	case StoreFile:
		if c.Store.Path == "" {
			errs = append(errs, fmt.Errorf("store.path is required for the file store"))
		}
	case StoreRedis:
		if c.Store.RedisAddr == "" {
			errs = append(errs, fmt.Errorf("store.redis_addr is required for the redis store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store kind %q (use memory, file or redis)", c.Store.Kind))
	}
	if c.Run.MaxSteps < 0 {
		errs = append(errs, fmt.Errorf("run.max_steps cannot be negative"))
	}
	if c.Run.Retries < 0 {
		errs = append(errs, fmt.Errorf("run.retries cannot be negative"))
	}
	return errors.Join(errs...)
}
