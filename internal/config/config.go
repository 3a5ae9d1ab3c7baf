package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Scheduler policy names accepted by SCHED_POLICY.
const (
	PolicyRoundRobin  = "round_robin"
	PolicyCooperative = "cooperative"
)

// Config holds all kernel runtime configuration.
type Config struct {
	Scheduler SchedulerConfig
	Metrics   MetricsConfig
	Logging   LogConfig
	Board     BoardConfig
}

// SchedulerConfig selects the scheduling policy.
type SchedulerConfig struct {
	Policy      string `envconfig:"SCHED_POLICY" default:"round_robin"`
	TimesliceUS uint32 `envconfig:"SCHED_TIMESLICE_US" default:"10000"`
}

// MetricsConfig holds Prometheus endpoint configuration.
type MetricsConfig struct {
	Enabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
	Addr    string `envconfig:"METRICS_ADDR" default:":9464"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// BoardConfig names the board definition file. Empty means the built-in
// demo board.
type BoardConfig struct {
	File string `envconfig:"BOARD_FILE" default:""`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Scheduler: SchedulerConfig{
			Policy:      PolicyRoundRobin,
			TimesliceUS: 10_000,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9464",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
	}
}
