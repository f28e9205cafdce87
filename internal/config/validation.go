// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"github.com/ManuGH/robohub-inference/internal/domain/session/manager"
	"github.com/ManuGH/robohub-inference/internal/validate"
)

var (
	transportBackends = []string{"loopback", "redis"}
	policyBackends    = []string{"hold", "remote"}
	archiveBackends   = []string{"memory", "sqlite", "badger"}
	integrityModes    = []string{"quick", "full", "off"}
	exporters         = []string{"grpc", "http"}
	pacingStrategies  = []string{manager.PacingHybrid, manager.PacingSleep}
)

// Validate reports every invalid setting in cfg.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.ListenAddr("api.listen_addr", cfg.API.ListenAddr)
	v.NonNegative("api.rate_limit", cfg.API.RateLimit)
	v.PositiveDuration("api.shutdown_timeout", cfg.API.ShutdownTimeout)
	v.LogLevel("log.level", cfg.Log.Level)

	v.OneOf("transport.backend", cfg.Transport.Backend, transportBackends)
	if cfg.Transport.Backend == "redis" {
		v.URL("transport.endpoint", cfg.Transport.Endpoint, []string{"redis", "rediss"})
	}

	v.OneOf("policy.backend", cfg.Policy.Backend, policyBackends)
	if cfg.Policy.Backend == "remote" {
		v.URL("policy.endpoint", cfg.Policy.Endpoint, []string{"http", "https"})
		v.PositiveDuration("policy.timeout", cfg.Policy.Timeout)
		v.Positive("policy.failure_threshold", cfg.Policy.FailureThreshold)
	}

	s := cfg.Session
	v.Range("session.control_hz", s.ControlHz, 1, 1000)
	v.Range("session.inference_hz", s.InferenceHz, 1, 1000)
	v.Range("session.n_action_steps", s.NActionSteps, 1, 1000)
	v.Positive("session.queue_capacity", s.QueueCapacity)
	v.PositiveDuration("session.inactivity_timeout", s.InactivityTimeout)
	v.PositiveDuration("session.watchdog_interval", s.WatchdogInterval)
	v.PositiveDuration("session.sweep_interval", s.SweepInterval)
	v.OneOf("session.pacing", s.Pacing, pacingStrategies)

	v.OneOf("archive.backend", cfg.Archive.Backend, archiveBackends)
	if cfg.Archive.Backend != "memory" {
		v.NotEmpty("archive.path", cfg.Archive.Path)
	}
	if cfg.Archive.Backend == "sqlite" {
		v.NonNegative("archive.max_open_conns", cfg.Archive.MaxOpenConns)
		if cfg.Archive.IntegrityCheck != "" {
			v.OneOf("archive.integrity_check", cfg.Archive.IntegrityCheck, integrityModes)
		}
	}

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.Exporter, exporters)
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
		v.RangeFloat("telemetry.sampling_rate", cfg.Telemetry.SamplingRate, 0, 1)
	}

	return v.Err()
}
