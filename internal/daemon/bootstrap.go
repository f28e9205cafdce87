// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package daemon wires the configured components together and runs them.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/robohub-inference/internal/api"
	"github.com/ManuGH/robohub-inference/internal/config"
	"github.com/ManuGH/robohub-inference/internal/domain/session/manager"
	"github.com/ManuGH/robohub-inference/internal/domain/session/ports"
	"github.com/ManuGH/robohub-inference/internal/domain/session/store"
	"github.com/ManuGH/robohub-inference/internal/infra/policy/hold"
	"github.com/ManuGH/robohub-inference/internal/infra/policy/remote"
	"github.com/ManuGH/robohub-inference/internal/infra/transport/loopback"
	"github.com/ManuGH/robohub-inference/internal/infra/transport/redis"
	"github.com/ManuGH/robohub-inference/internal/log"
	"github.com/ManuGH/robohub-inference/internal/persistence/sqlite"
	"github.com/ManuGH/robohub-inference/internal/telemetry"
)

const serviceName = "robohub-inference"

// Runtime holds every long-lived component built from the configuration.
type Runtime struct {
	Registry *manager.Registry
	Archive  store.Archive
	Manager  *Manager

	telemetry *telemetry.Provider
	closers   []namedCloser
}

type namedCloser struct {
	name string
	c    io.Closer
}

// Bootstrap builds the runtime from the holder's current configuration.
// Shutdown hooks run in this order: status dump, session shutdown, transport,
// archive, telemetry.
func Bootstrap(ctx context.Context, holder *config.ConfigHolder) (_ *Runtime, err error) {
	cfg := holder.Get()
	logger := log.WithComponent("daemon")
	rt := &Runtime{}
	defer func() {
		if err != nil {
			rt.closeAll(context.WithoutCancel(ctx))
		}
	}()

	rt.telemetry, err = telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    serviceName,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	integrity, err := sqlite.ParseIntegrityMode(cfg.Archive.IntegrityCheck)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	rt.Archive, err = store.OpenArchive(cfg.Archive.Backend, cfg.Archive.Path,
		store.WithSqlitePool(cfg.Archive.MaxOpenConns),
		store.WithIntegrityCheck(integrity),
	)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	rt.closers = append(rt.closers, namedCloser{"archive", rt.Archive})

	transports, closer, err := buildTransport(cfg.Transport)
	if err != nil {
		return nil, err
	}
	if closer != nil {
		rt.closers = append(rt.closers, namedCloser{"transport", closer})
	}

	capabilities, err := buildCapabilities(cfg.Policy)
	if err != nil {
		return nil, err
	}

	rt.Registry, err = manager.NewRegistry(manager.RegistryConfig{
		Transports:      transports,
		Capabilities:    capabilities,
		Archive:         rt.Archive,
		Defaults:        holder.SessionDefaults,
		DefaultEndpoint: cfg.Transport.Endpoint,
		SweepInterval:   cfg.Session.SweepInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("create registry: %w", err)
	}

	server := api.New(api.Config{
		Version:        cfg.Version,
		RateLimit:      cfg.API.RateLimit,
		TracingService: tracingService(cfg),
		EnableLogging:  true,
	}, rt.Registry, rt.Archive)

	rt.Manager, err = NewManager(ServerConfig{
		ListenAddr:      cfg.API.ListenAddr,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: cfg.API.ShutdownTimeout,
	}, server.Handler())
	if err != nil {
		return nil, err
	}

	rt.Manager.RegisterShutdownHook("telemetry", rt.telemetry.Shutdown)
	for _, c := range rt.closers {
		closer := c.c
		rt.Manager.RegisterShutdownHook(c.name, func(context.Context) error { return closer.Close() })
	}
	rt.Manager.RegisterShutdownHook("sessions", rt.Registry.ShutdownAll)
	if path := cfg.StatusDumpPath; path != "" {
		reg := rt.Registry
		version := cfg.Version
		rt.Manager.RegisterShutdownHook("status_dump", func(context.Context) error {
			return WriteStatusDump(path, StatusDump{Version: version, WrittenAt: time.Now().UTC(), Sessions: reg.List()})
		})
	}

	logger.Info().
		Str("transport", cfg.Transport.Backend).
		Str("policy", cfg.Policy.Backend).
		Str("archive", cfg.Archive.Backend).
		Bool("telemetry", cfg.Telemetry.Enabled).
		Msg("runtime assembled")
	return rt, nil
}

// closeAll releases what Bootstrap opened when it fails part way.
func (rt *Runtime) closeAll(ctx context.Context) {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i].c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := rt.telemetry.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		logger := log.WithComponent("daemon")
		logger.Warn().Err(err).Msg("cleanup after failed bootstrap")
	}
}

func tracingService(cfg config.AppConfig) string {
	if !cfg.Telemetry.Enabled {
		return ""
	}
	return serviceName
}

func buildTransport(cfg config.TransportConfig) (ports.TransportFactory, io.Closer, error) {
	switch cfg.Backend {
	case "", "loopback":
		return loopback.NewHub(), nil, nil
	case "redis":
		f := redis.NewFactory()
		return f, f, nil
	default:
		return nil, nil, fmt.Errorf("%w: transport %q", ErrUnknownBackend, cfg.Backend)
	}
}

func buildCapabilities(cfg config.PolicyConfig) (ports.CapabilityFactory, error) {
	switch cfg.Backend {
	case "", "hold":
		return hold.Factory{}, nil
	case "remote":
		f, err := remote.NewFactory(remote.Config{
			Endpoint:         cfg.Endpoint,
			Timeout:          cfg.Timeout,
			FailureThreshold: cfg.FailureThreshold,
			ResetTimeout:     cfg.ResetTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("create policy client: %w", err)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("%w: policy %q", ErrUnknownBackend, cfg.Backend)
	}
}

// logConfig reports where the configuration came from.
func logConfig(logger zerolog.Logger, path string) {
	if path == "" {
		logger.Info().Str(log.FieldEvent, "config.loaded").Str("source", "env+defaults").Msg("loaded configuration from environment and defaults")
		return
	}
	logger.Info().Str(log.FieldEvent, "config.loaded").Str("source", "file").Str("path", path).Msg("loaded configuration from file")
}
