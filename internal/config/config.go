// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/workprogress/internal/runner"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Progress ProgressConfig `mapstructure:"progress"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Plan     runner.Plan    `mapstructure:"plan"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// MonitorConfig controls how monitor trees are built and observed.
type MonitorConfig struct {
	PropagateCancel bool `mapstructure:"propagate_cancel"`
	// TrackDepth limits which tree levels report to the sinks; -1 means all.
	TrackDepth int `mapstructure:"track_depth"`
}

// ProgressConfig tunes the event hub and selects sinks.
type ProgressConfig struct {
	BufferSize         int `mapstructure:"buffer_size"`
	MaxBatchEvents     int `mapstructure:"max_batch_events"`
	MaxBatchWaitMs     int `mapstructure:"max_batch_wait_ms"`
	SinkTimeoutSeconds int `mapstructure:"sink_timeout_seconds"`
	// LogRatePerMonitor caps units-consumed log lines per monitor and second;
	// 0 logs every event.
	LogRatePerMonitor float64     `mapstructure:"log_rate_per_monitor"`
	LogBurst          int         `mapstructure:"log_burst"`
	Sinks             SinksConfig `mapstructure:"sinks"`
}

// SinksConfig enables individual progress sinks.
type SinksConfig struct {
	Log        bool `mapstructure:"log"`
	Prometheus bool `mapstructure:"prometheus"`
	Store      bool `mapstructure:"store"`
	Publish    bool `mapstructure:"publish"`
}

// PubSubConfig holds metadata for publish-subscribe notifications. An empty
// ProjectID selects the in-memory publisher.
type PubSubConfig struct {
	ProjectID    string `mapstructure:"project_id"`
	TopicName    string `mapstructure:"topic_name"`
	TerminalOnly bool   `mapstructure:"terminal_only"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WORKPROGRESS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("monitor.propagate_cancel", false)
	v.SetDefault("monitor.track_depth", -1)
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch_events", 256)
	v.SetDefault("progress.max_batch_wait_ms", 250)
	v.SetDefault("progress.sink_timeout_seconds", 5)
	v.SetDefault("progress.log_rate_per_monitor", 0)
	v.SetDefault("progress.log_burst", 5)
	v.SetDefault("progress.sinks.log", true)
	v.SetDefault("progress.sinks.prometheus", true)
	v.SetDefault("progress.sinks.store", true)
	v.SetDefault("progress.sinks.publish", false)
	v.SetDefault("pubsub.topic_name", "workprogress-events")
	v.SetDefault("pubsub.terminal_only", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Progress.BufferSize <= 0 {
		return fmt.Errorf("progress.buffer_size must be > 0")
	}
	if c.Progress.MaxBatchEvents <= 0 {
		return fmt.Errorf("progress.max_batch_events must be > 0")
	}
	if c.Progress.LogRatePerMonitor < 0 {
		return fmt.Errorf("progress.log_rate_per_monitor must be >= 0")
	}
	if c.Progress.Sinks.Publish && c.PubSub.TopicName == "" {
		return fmt.Errorf("pubsub.topic_name must be set when the publish sink is enabled")
	}
	if c.Plan.Name != "" {
		if err := c.Plan.Validate(); err != nil {
			return fmt.Errorf("plan: %w", err)
		}
	}
	return nil
}

// MaxBatchWait converts the hub flush interval into a duration.
func (c ProgressConfig) MaxBatchWait() time.Duration {
	return time.Duration(c.MaxBatchWaitMs) * time.Millisecond
}

// SinkTimeout converts the per-sink timeout into a duration.
func (c ProgressConfig) SinkTimeout() time.Duration {
	return time.Duration(c.SinkTimeoutSeconds) * time.Second
}

// ShutdownTimeout converts the graceful shutdown budget into a duration.
func (c ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}
