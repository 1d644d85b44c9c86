// Package config loads application configuration from config.yaml and the
// NEWSGRAPH_* environment, with safe defaults for everything except the
// model credential and the store URL.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Workers   WorkerConfig    `yaml:"workers" mapstructure:"workers"`
	Scorer    ScorerConfig    `yaml:"scorer" mapstructure:"scorer"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key            string `yaml:"key" mapstructure:"key"`
	Model          string `yaml:"model" mapstructure:"model"`
	MaxTokens      int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs    int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RetryDelaySecs int    `yaml:"retry_delay_secs" mapstructure:"retry_delay_secs"`
	RequestsPerMin int    `yaml:"requests_per_min" mapstructure:"requests_per_min"`
}

// PipelineConfig configures per-unit processing behavior.
type PipelineConfig struct {
	DefaultLanguage   string `yaml:"default_language" mapstructure:"default_language"`
	DefaultImportance int    `yaml:"default_importance" mapstructure:"default_importance"`
}

// WorkerConfig bounds the processing pool.
type WorkerConfig struct {
	Count        int `yaml:"count" mapstructure:"count"`
	QueueSize    int `yaml:"queue_size" mapstructure:"queue_size"`
	DrainTimeout int `yaml:"drain_timeout_secs" mapstructure:"drain_timeout_secs"`
}

// ScorerConfig locates the importance weight artifact.
type ScorerConfig struct {
	WeightsPath string `yaml:"weights_path" mapstructure:"weights_path"`
}

// ServerConfig configures the HTTP ingress.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ModelTimeout returns the per-call model timeout.
func (c AnthropicConfig) ModelTimeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// RetryDelay returns the fixed delay between model retries.
func (c AnthropicConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySecs) * time.Second
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("NEWSGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. The two credentials default to empty so AutomaticEnv can
	// bind them; Validate enforces their presence per mode.
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.timeout_secs", 30)
	v.SetDefault("anthropic.retry_delay_secs", 5)
	v.SetDefault("anthropic.requests_per_min", 120)
	v.SetDefault("pipeline.default_language", "es")
	v.SetDefault("pipeline.default_importance", 5)
	v.SetDefault("workers.count", 3)
	v.SetDefault("workers.queue_size", 100)
	v.SetDefault("workers.drain_timeout_secs", 30)
	v.SetDefault("scorer.weights_path", "importance_weights.yaml")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the fields the given mode requires. Modes: "serve" runs
// the full service, "migrate" only needs the store.
func (c *Config) Validate(mode string) error {
	var problems []string

	needStore := func() {
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
		if c.Store.Driver != "postgres" && c.Store.Driver != "sqlite" {
			problems = append(problems, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
		}
	}

	switch mode {
	case "serve", "process":
		needStore()
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
		if mode == "serve" && c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		if c.Workers.Count < 1 || c.Workers.Count > 64 {
			problems = append(problems, "workers.count must be between 1 and 64")
		}
		if c.Workers.QueueSize < 1 {
			problems = append(problems, "workers.queue_size must be >= 1")
		}
		if c.Pipeline.DefaultImportance < 1 || c.Pipeline.DefaultImportance > 10 {
			problems = append(problems, "pipeline.default_importance must be between 1 and 10")
		}
	case "migrate":
		needStore()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
