package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Reconcile ReconcileConfig `yaml:"reconcile" mapstructure:"reconcile"`
	Methods   []MethodConfig  `yaml:"methods" mapstructure:"methods"`
	Eval      EvalConfig      `yaml:"eval" mapstructure:"eval"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// ReconcileConfig configures reconciliation runs.
type ReconcileConfig struct {
	Intervals  string    `yaml:"intervals" mapstructure:"intervals"`
	Levels     []float64 `yaml:"levels" mapstructure:"levels"`
	NumSamples int       `yaml:"num_samples" mapstructure:"num_samples"`
	Seed       int64     `yaml:"seed" mapstructure:"seed"`
	Sort       bool      `yaml:"sort" mapstructure:"sort"`
	Balanced   bool      `yaml:"balanced" mapstructure:"balanced"`
	Workers    int       `yaml:"workers" mapstructure:"workers"`
}

// MethodConfig declares one reconciler in the method pipeline.
type MethodConfig struct {
	Kind   string         `yaml:"kind" mapstructure:"kind"`
	Params map[string]any `yaml:"params" mapstructure:"params"`
}

// EvalConfig configures forecast evaluation.
type EvalConfig struct {
	Season int `yaml:"season" mapstructure:"season"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port                int      `yaml:"port" mapstructure:"port"`
	RatePerSecond       float64  `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	RateBurst           int      `yaml:"rate_burst" mapstructure:"rate_burst"`
	AllowedOrigins      []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	ShutdownTimeoutSecs int      `yaml:"shutdown_timeout_secs" mapstructure:"shutdown_timeout_secs"`
	MaxBodyBytes        int64    `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("HTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_per_second", 10)
	v.SetDefault("server.rate_burst", 20)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout_secs", 10)
	v.SetDefault("server.max_body_bytes", 32<<20)
	v.SetDefault("reconcile.intervals", "normality")
	v.SetDefault("reconcile.sort", true)
	v.SetDefault("reconcile.workers", 1)
	v.SetDefault("eval.season", 1)

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
