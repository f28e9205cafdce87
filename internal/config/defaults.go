// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"time"

	"github.com/ManuGH/robohub-inference/internal/domain/session/manager"
)

// Defaults returns the configuration used when nothing overrides it.
func Defaults() AppConfig {
	s := manager.DefaultSessionConfig()
	return AppConfig{
		API: APIConfig{
			ListenAddr:      ":8080",
			RateLimit:       600,
			ShutdownTimeout: 15 * time.Second,
		},
		Log: LogConfig{Level: "info", Service: "robohub-inference"},
		Transport: TransportConfig{
			Backend: "loopback",
		},
		Policy: PolicyConfig{
			Backend:          "hold",
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
			ResetTimeout:     10 * time.Second,
		},
		Session: SessionConfig{
			ControlHz:         s.ControlHz,
			InferenceHz:       s.InferenceHz,
			NActionSteps:      s.NActionSteps,
			QueueCapacity:     s.QueueCapacity,
			CleanupInterval:   s.CleanupInterval,
			InactivityTimeout: s.InactivityTimeout,
			WatchdogInterval:  s.WatchdogInterval,
			SweepInterval:     manager.DefaultSweepInterval,
			Pacing:            s.Pacing,
			SlowTickThreshold: s.SlowTickThreshold,
		},
		Archive: ArchiveConfig{Backend: "memory", IntegrityCheck: "quick"},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
			Environment:  "development",
		},
	}
}

// SessionDefaults converts the session section for the registry.
func (c AppConfig) SessionDefaults() manager.SessionConfig {
	return manager.SessionConfig{
		ControlHz:         c.Session.ControlHz,
		InferenceHz:       c.Session.InferenceHz,
		NActionSteps:      c.Session.NActionSteps,
		QueueCapacity:     c.Session.QueueCapacity,
		CleanupInterval:   c.Session.CleanupInterval,
		InactivityTimeout: c.Session.InactivityTimeout,
		WatchdogInterval:  c.Session.WatchdogInterval,
		Pacing:            c.Session.Pacing,
		SlowTickThreshold: c.Session.SlowTickThreshold,
	}
}
