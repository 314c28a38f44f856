// Package config loads Registry settings from a YAML file, an optional .env
// file and DEPMAN_* environment variables.
//
// # Usage
//
//	cfg, err := config.Load(config.WithConfigFile("depman.yml"))
//	if err != nil {
//	    return err
//	}
//	registry := depman.New(cfg.Options()...)
//
// Environment variables override file values using the DEPMAN_ prefix with
// underscore-separated paths (e.g., DEPMAN_LOGGING_LEVEL).
package config

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"github.com/junioryono/depman"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/metric/noop"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "DEPMAN"

// Config contains Registry configuration.
type Config struct {
	DefaultPolicy string  `yaml:"default_policy" mapstructure:"default_policy"`
	Metrics       bool    `yaml:"metrics" mapstructure:"metrics"`
	Logging       Logging `yaml:"logging" mapstructure:"logging"`
}

// Logging contains logger configuration.
type Logging struct {
	Level   string `yaml:"level" mapstructure:"level"`
	Format  string `yaml:"format" mapstructure:"format"`
	Output  string `yaml:"output" mapstructure:"output"`
	NoColor bool   `yaml:"no_color" mapstructure:"no_color"`
}

var (
	validLevels  = []string{"trace", "debug", "info", "warn", "error", "disabled"}
	validFormats = []string{"json", "console"}
	validOutputs = []string{"stdout", "stderr"}
)

// defaults mirrors ApplyDefaults for keys viper must know about so that
// environment variables are picked up by Unmarshal.
var defaults = map[string]any{
	"default_policy":   "thread-local",
	"metrics":          true,
	"logging.level":    "info",
	"logging.format":   "json",
	"logging.output":   "stderr",
	"logging.no_color": false,
}

// Default returns the configuration used when nothing is loaded.
func Default() *Config {
	cfg := &Config{Metrics: true}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills empty fields.
func (c *Config) ApplyDefaults() {
	if c.DefaultPolicy == "" {
		c.DefaultPolicy = "thread-local"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stderr"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	policy, err := depman.ParseThreadingPolicy(c.DefaultPolicy)
	if err != nil {
		return fmt.Errorf("config.default_policy: %w", err)
	}
	if policy == depman.DefaultPolicy {
		return fmt.Errorf("config.default_policy must name a concrete policy (got: %s)", c.DefaultPolicy)
	}
	if !slices.Contains(validLevels, strings.ToLower(c.Logging.Level)) {
		return fmt.Errorf("config.logging.level must be one of %v (got: %s)", validLevels, c.Logging.Level)
	}
	if !slices.Contains(validFormats, strings.ToLower(c.Logging.Format)) {
		return fmt.Errorf("config.logging.format must be one of %v (got: %s)", validFormats, c.Logging.Format)
	}
	if !slices.Contains(validOutputs, strings.ToLower(c.Logging.Output)) {
		return fmt.Errorf("config.logging.output must be one of %v (got: %s)", validOutputs, c.Logging.Output)
	}
	return nil
}

// Policy returns the configured default threading policy. Invalid values
// yield ThreadLocal.
func (c *Config) Policy() depman.ThreadingPolicy {
	policy, err := depman.ParseThreadingPolicy(c.DefaultPolicy)
	if err != nil || policy == depman.DefaultPolicy {
		return depman.ThreadLocal
	}
	return policy
}

// Logger builds the logger described by the configuration.
func (c *Config) Logger() zerolog.Logger {
	return c.NewLogger(outputWriter(c.Logging.Output))
}

// NewLogger builds the configured logger writing to w.
func (c *Config) NewLogger(w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(c.Logging.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	if strings.ToLower(c.Logging.Format) == "console" {
		w = zerolog.ConsoleWriter{Out: w, NoColor: c.Logging.NoColor}
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// Options returns the registry options described by the configuration.
func (c *Config) Options() []depman.Option {
	opts := []depman.Option{
		depman.WithDefaultPolicy(c.Policy()),
		depman.WithLogger(c.Logger()),
	}
	if !c.Metrics {
		opts = append(opts, depman.WithMeterProvider(noop.NewMeterProvider()))
	}
	return opts
}

func outputWriter(output string) io.Writer {
	if strings.ToLower(output) == "stdout" {
		return os.Stdout
	}
	return os.Stderr
}

// LoaderConfig holds optional file overrides.
type LoaderConfig struct {
	ConfigFile string // YAML config file path (optional)
	EnvFile    string // .env file path (optional)
}

// LoaderOption is a functional option for Load.
type LoaderOption func(*LoaderConfig)

// WithConfigFile sets the YAML config file. A missing file is an error.
func WithConfigFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.ConfigFile = path }
}

// WithEnvFile sets a .env file whose variables are loaded into the process
// environment before reading. Variables already set are not overridden.
func WithEnvFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.EnvFile = path }
}

// Load reads the configuration. Sources, from lowest to highest priority:
// built-in defaults, the config file, and DEPMAN_* environment variables
// (including those loaded from the .env file).
func Load(opts ...LoaderOption) (*Config, error) {
	var lc LoaderConfig
	for _, opt := range opts {
		opt(&lc)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if lc.ConfigFile != "" {
		v.SetConfigFile(lc.ConfigFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", lc.ConfigFile, err)
		}
	}

	if lc.EnvFile != "" {
		if err := godotenv.Load(lc.EnvFile); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", lc.EnvFile, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
