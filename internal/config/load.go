package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "HUB"

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/measure-hub")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can see it, including the
// required ones without a sensible default.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("task_store.url", "")
	v.SetDefault("task_store.page_size", 50)
	v.SetDefault("task_store.timeout", 30*time.Second)

	v.SetDefault("data_store.url", "")
	v.SetDefault("data_store.timeout", 5*time.Minute)
	v.SetDefault("data_store.period_start", "1900")
	v.SetDefault("data_store.period_end", "2100")

	v.SetDefault("beam.url", "")
	v.SetDefault("beam.app_id", "")
	v.SetDefault("beam.api_key", "")
	v.SetDefault("beam.wait_time", 10*time.Second)
	v.SetDefault("beam.retry_backoff", time.Second)
	v.SetDefault("beam.max_tries", 5)

	v.SetDefault("pipelines.auto_start", true)
	v.SetDefault("pipelines.restart_delay", time.Second)
	v.SetDefault("pipelines.executor_interval", time.Second)
	v.SetDefault("pipelines.response_interval", 5*time.Second)
	v.SetDefault("pipelines.request_interval", 5*time.Second)
	v.SetDefault("pipelines.watermark_db", "")
}
