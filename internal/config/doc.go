// Package config provides 12-factor configuration for the kestrel kernel.
//
// Runtime settings are loaded from environment variables with sensible
// defaults. The board definition, which lists the processes to load and
// their memory geometry, comes from a TOML file named by BOARD_FILE; without
// one the built-in demo board is used.
//
// Configuration Sections:
//   - Scheduler: policy and timeslice
//   - Metrics: Prometheus endpoint settings
//   - Logging: log level and output format
//   - Board: board definition file
//
// Environment Variables:
//   - SCHED_POLICY, SCHED_TIMESLICE_US
//   - METRICS_ENABLED, METRICS_ADDR
//   - LOG_LEVEL, LOG_DEV
//   - BOARD_FILE
package config
