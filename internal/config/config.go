package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	TaskStore TaskStoreConfig `mapstructure:"task_store" validate:"required"`
	DataStore DataStoreConfig `mapstructure:"data_store" validate:"required"`
	Beam      BeamConfig      `mapstructure:"beam" validate:"required"`
	Pipelines PipelinesConfig `mapstructure:"pipelines" validate:"required"`
}

// ServerConfig contains the control API and logging settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// TaskStoreConfig points at the FHIR server holding Task resources.
type TaskStoreConfig struct {
	URL      string        `mapstructure:"url" validate:"required,url"`
	PageSize int           `mapstructure:"page_size" validate:"gt=0,lte=1000"`
	Timeout  time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// DataStoreConfig points at the FHIR server that evaluates measures.
type DataStoreConfig struct {
	URL         string        `mapstructure:"url" validate:"required,url"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"gt=0"`
	PeriodStart string        `mapstructure:"period_start" validate:"required"`
	PeriodEnd   string        `mapstructure:"period_end" validate:"required"`
}

// BeamConfig contains the connection settings of the Beam proxy.
type BeamConfig struct {
	URL    string `mapstructure:"url" validate:"required,url"`
	AppID  string `mapstructure:"app_id" validate:"required"`
	APIKey string `mapstructure:"api_key" validate:"required"`
	// WaitTime bounds a single long-poll for new tasks.
	WaitTime time.Duration `mapstructure:"wait_time" validate:"gt=0"`
	// RetryBackoff and MaxTries form the failure strategy attached to every
	// outgoing task. The broker enforces it, not this application.
	RetryBackoff time.Duration `mapstructure:"retry_backoff" validate:"gte=0"`
	MaxTries     int           `mapstructure:"max_tries" validate:"gte=0"`
}

// PipelinesConfig controls the background pipelines.
type PipelinesConfig struct {
	AutoStart        bool          `mapstructure:"auto_start"`
	RestartDelay     time.Duration `mapstructure:"restart_delay" validate:"gt=0"`
	ExecutorInterval time.Duration `mapstructure:"executor_interval" validate:"gt=0"`
	ResponseInterval time.Duration `mapstructure:"response_interval" validate:"gt=0"`
	RequestInterval  time.Duration `mapstructure:"request_interval" validate:"gt=0"`
	// WatermarkDB is the path of a SQLite file keeping the response watermark
	// across restarts. Empty keeps it in memory.
	WatermarkDB string `mapstructure:"watermark_db"`
}
