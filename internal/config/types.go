// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package config loads the daemon configuration from defaults, an optional
// YAML file and ROBOHUB_* environment variables, in that order.
package config

import "time"

// AppConfig is the complete daemon configuration.
type AppConfig struct {
	Version string `yaml:"-"`

	API       APIConfig       `yaml:"api"`
	Log       LogConfig       `yaml:"log"`
	Transport TransportConfig `yaml:"transport"`
	Policy    PolicyConfig    `yaml:"policy"`
	Session   SessionConfig   `yaml:"session"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// StatusDumpPath receives a JSON snapshot of every session on shutdown.
	StatusDumpPath string `yaml:"status_dump_path"`
}

type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	// RateLimit is requests per minute per client IP; 0 disables limiting.
	RateLimit       int           `yaml:"rate_limit"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
}

type TransportConfig struct {
	// Backend is "loopback" or "redis".
	Backend  string `yaml:"backend"`
	Endpoint string `yaml:"endpoint"`
}

type PolicyConfig struct {
	// Backend is "hold" or "remote".
	Backend          string        `yaml:"backend"`
	Endpoint         string        `yaml:"endpoint"`
	Timeout          time.Duration `yaml:"timeout"`
	FailureThreshold int           `yaml:"failure_threshold"`
	ResetTimeout     time.Duration `yaml:"reset_timeout"`
}

// SessionConfig holds the defaults applied to newly created sessions.
type SessionConfig struct {
	ControlHz         int           `yaml:"control_hz"`
	InferenceHz       int           `yaml:"inference_hz"`
	NActionSteps      int           `yaml:"n_action_steps"`
	QueueCapacity     int           `yaml:"queue_capacity"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval"`
	InactivityTimeout time.Duration `yaml:"inactivity_timeout"`
	WatchdogInterval  time.Duration `yaml:"watchdog_interval"`
	SweepInterval     time.Duration `yaml:"sweep_interval"`
	Pacing            string        `yaml:"pacing"`
	SlowTickThreshold time.Duration `yaml:"slow_tick_threshold"`
}

type ArchiveConfig struct {
	// Backend is "memory", "sqlite" or "badger".
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
	// MaxOpenConns sizes the sqlite pool; zero keeps the default.
	MaxOpenConns int `yaml:"max_open_conns"`
	// IntegrityCheck is "quick", "full" or "off", run on an existing sqlite file.
	IntegrityCheck string `yaml:"integrity_check"`
}

type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Environment  string  `yaml:"environment"`
}
