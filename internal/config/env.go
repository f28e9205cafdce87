// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/robohub-inference/internal/log"
)

// EnvPrefix is prepended to every environment key.
const EnvPrefix = "ROBOHUB_"

// EnvConfigFile names the config file when no -config flag is given.
const EnvConfigFile = EnvPrefix + "CONFIG"

// lookupEnv reads key and parses it. Unset or empty values keep def; an
// unparsable value keeps def and logs a warning.
func lookupEnv[T any](logger zerolog.Logger, key string, def T, parse func(string) (T, error)) T {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return def
	}
	v, err := parse(raw)
	if err != nil {
		logger.Warn().
			Str("key", key).
			Str("value", raw).
			Interface("default", def).
			Msg("invalid value in environment variable, using default")
		return def
	}
	ev := logger.Debug().Str("key", key).Str("source", "environment")
	if isSensitive(key) {
		ev = ev.Bool("sensitive", true)
	} else {
		ev = ev.Str("value", raw)
	}
	ev.Msg("using environment variable")
	return v
}

func isSensitive(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "token") || strings.Contains(k, "password") || strings.Contains(k, "endpoint")
}

func parseString(s string) (string, error) { return strings.TrimSpace(s), nil }

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}

func parseFloat(s string) (float64, error) { return strconv.ParseFloat(s, 64) }

// ParseString reads key or returns def.
func ParseString(key, def string) string {
	return lookupEnv(log.WithComponent("config"), key, def, parseString)
}

// ParseInt reads an integer from key or returns def.
func ParseInt(key string, def int) int {
	return lookupEnv(log.WithComponent("config"), key, def, strconv.Atoi)
}

// ParseDuration reads a Go duration such as "5s" from key or returns def.
func ParseDuration(key string, def time.Duration) time.Duration {
	return lookupEnv(log.WithComponent("config"), key, def, time.ParseDuration)
}

// ParseBool accepts true/false, 1/0 and yes/no, case-insensitively.
func ParseBool(key string, def bool) bool {
	return lookupEnv(log.WithComponent("config"), key, def, parseBool)
}

func ParseFloat(key string, def float64) float64 {
	return lookupEnv(log.WithComponent("config"), key, def, parseFloat)
}

// mergeEnv overlays ROBOHUB_* variables onto cfg.
func (l *Loader) mergeEnv(cfg *AppConfig) {
	cfg.API.ListenAddr = l.envString("LISTEN_ADDR", cfg.API.ListenAddr)
	cfg.API.RateLimit = l.envInt("RATE_LIMIT", cfg.API.RateLimit)
	cfg.API.ShutdownTimeout = l.envDuration("SHUTDOWN_TIMEOUT", cfg.API.ShutdownTimeout)

	cfg.Log.Level = l.envString("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Service = l.envString("LOG_SERVICE", cfg.Log.Service)

	cfg.Transport.Backend = l.envString("TRANSPORT_BACKEND", cfg.Transport.Backend)
	cfg.Transport.Endpoint = l.envString("TRANSPORT_ENDPOINT", cfg.Transport.Endpoint)

	cfg.Policy.Backend = l.envString("POLICY_BACKEND", cfg.Policy.Backend)
	cfg.Policy.Endpoint = l.envString("POLICY_ENDPOINT", cfg.Policy.Endpoint)
	cfg.Policy.Timeout = l.envDuration("POLICY_TIMEOUT", cfg.Policy.Timeout)

	cfg.Session.ControlHz = l.envInt("CONTROL_HZ", cfg.Session.ControlHz)
	cfg.Session.InferenceHz = l.envInt("INFERENCE_HZ", cfg.Session.InferenceHz)
	cfg.Session.NActionSteps = l.envInt("N_ACTION_STEPS", cfg.Session.NActionSteps)
	cfg.Session.QueueCapacity = l.envInt("QUEUE_CAPACITY", cfg.Session.QueueCapacity)
	cfg.Session.CleanupInterval = l.envDuration("CLEANUP_INTERVAL", cfg.Session.CleanupInterval)
	cfg.Session.InactivityTimeout = l.envDuration("SESSION_TIMEOUT", cfg.Session.InactivityTimeout)
	cfg.Session.WatchdogInterval = l.envDuration("WATCHDOG_INTERVAL", cfg.Session.WatchdogInterval)
	cfg.Session.SweepInterval = l.envDuration("SWEEP_INTERVAL", cfg.Session.SweepInterval)
	cfg.Session.Pacing = l.envString("PACING", cfg.Session.Pacing)

	cfg.Archive.Backend = l.envString("ARCHIVE_BACKEND", cfg.Archive.Backend)
	cfg.Archive.Path = l.envString("ARCHIVE_PATH", cfg.Archive.Path)
	cfg.Archive.MaxOpenConns = l.envInt("ARCHIVE_MAX_OPEN_CONNS", cfg.Archive.MaxOpenConns)
	cfg.Archive.IntegrityCheck = l.envString("ARCHIVE_INTEGRITY_CHECK", cfg.Archive.IntegrityCheck)

	cfg.Telemetry.Enabled = l.envBool("TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = l.envString("OTEL_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString("OTEL_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = l.envFloat("OTEL_SAMPLING_RATE", cfg.Telemetry.SamplingRate)

	cfg.StatusDumpPath = l.envString("STATUS_DUMP_PATH", cfg.StatusDumpPath)
}

func (l *Loader) consume(key string) string {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	return key
}

func (l *Loader) envString(key, def string) string { return ParseString(l.consume(key), def) }
func (l *Loader) envInt(key string, def int) int    { return ParseInt(l.consume(key), def) }
func (l *Loader) envBool(key string, def bool) bool { return ParseBool(l.consume(key), def) }

func (l *Loader) envDuration(key string, def time.Duration) time.Duration {
	return ParseDuration(l.consume(key), def)
}

func (l *Loader) envFloat(key string, def float64) float64 {
	return ParseFloat(l.consume(key), def)
}

// UnknownEnvKeys lists ROBOHUB_* variables the loader never read.
func (l *Loader) UnknownEnvKeys() []string {
	var out []string
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		if key == EnvConfigFile {
			continue
		}
		if _, ok := l.ConsumedEnvKeys[key]; !ok {
			out = append(out, key)
		}
	}
	slices.Sort(out)
	return out
}
