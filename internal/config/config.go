package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"    validate:"required"`
	Tasks     TaskConfig      `mapstructure:"tasks"     validate:"required"`
	Solution  SolutionConfig  `mapstructure:"solution"  validate:"required"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Host     string `mapstructure:"host"      validate:"required"                        json:"host"`
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"          json:"port"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error" json:"log_level"`
}

// TaskConfig configures the asynchronous task engine.
type TaskConfig struct {
	// WorkerCount is the fixed size of the worker pool.
	WorkerCount int `mapstructure:"worker_count" validate:"gt=0,lte=256" json:"worker_count"`

	// ShutdownTimeout bounds how long shutdown waits for queued and running
	// tasks to drain.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0" json:"shutdown_timeout"`

	// DrainPollInterval is how often a drain wait re-checks the unfinished count.
	DrainPollInterval time.Duration `mapstructure:"drain_poll_interval" validate:"gt=0" json:"drain_poll_interval"`
}

// SolutionConfig configures the local solution collection.
type SolutionConfig struct {
	BaseDir     string   `mapstructure:"base_dir"     validate:"required"      json:"base_dir"`
	Catalogs    []string `mapstructure:"catalogs"                              json:"catalogs"`
	RecentLimit int      `mapstructure:"recent_limit" validate:"gt=0,lte=1000" json:"recent_limit"`
}

// TelemetryConfig configures OpenTelemetry trace export.
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"      json:"enabled"`
	Endpoint    string `mapstructure:"endpoint"     validate:"required_if=Enabled true" json:"endpoint,omitempty"`
	ServiceName string `mapstructure:"service_name" json:"service_name"`
	Insecure    bool   `mapstructure:"insecure"     json:"insecure"`
}
