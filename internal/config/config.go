package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	DefaultEnvFile       = ".env"
	DefaultLogLevel      = "warn"
	DefaultClickHouseURL = "http://localhost:8123/tensorzero"
	DefaultGatewayConfig = "config/tensorzero.toml"
	DefaultFunction      = "generate_haiku"
	DefaultEmbeddedInput = "Write a haiku about artificial intelligence."
	DefaultBaseURL       = "http://localhost:8181/app/v1"
	DefaultModel         = "tensorzero::model_name::gemini_flash_lite"
	DefaultHTTPInput     = "Write a software engineer joke"
)

var (
	ErrMissingBaseURL    = errors.New("http.base_url is required")
	ErrMissingConfigFile = errors.New("embedded.config_file is required")
)

type Config struct {
	EnvFile  string         `mapstructure:"env_file"`
	Log      LogConfig      `mapstructure:"log"`
	Embedded EmbeddedConfig `mapstructure:"embedded"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type EmbeddedConfig struct {
	ClickHouseURL string `mapstructure:"clickhouse_url"`
	ConfigFile    string `mapstructure:"config_file"`
	Function      string `mapstructure:"function"`
	Prompt        string `mapstructure:"prompt"`
}

type HTTPConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
	Prompt  string `mapstructure:"prompt"`
}

type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// SetDefaults registers the built-in values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("env_file", DefaultEnvFile)
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("embedded.clickhouse_url", DefaultClickHouseURL)
	v.SetDefault("embedded.config_file", DefaultGatewayConfig)
	v.SetDefault("embedded.function", DefaultFunction)
	v.SetDefault("embedded.prompt", DefaultEmbeddedInput)
	v.SetDefault("http.base_url", DefaultBaseURL)
	v.SetDefault("http.model", DefaultModel)
	v.SetDefault("http.prompt", DefaultHTTPInput)
	v.SetDefault("metrics.textfile", "")
}

func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log.level: %s", c.Log.Level)
	}
	if strings.TrimSpace(c.HTTP.BaseURL) == "" {
		return ErrMissingBaseURL
	}
	if strings.TrimSpace(c.Embedded.ConfigFile) == "" {
		return ErrMissingConfigFile
	}
	return nil
}
