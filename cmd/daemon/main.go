// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ManuGH/robohub-inference/internal/config"
	"github.com/ManuGH/robohub-inference/internal/daemon"
	rlog "github.com/ManuGH/robohub-inference/internal/log"
	"github.com/ManuGH/robohub-inference/internal/version"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "healthcheck" {
		os.Exit(runHealthcheckCLI(os.Args[2:]))
	}

	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	// Safe defaults until the config is loaded.
	rlog.Configure(rlog.Config{Level: "info", Service: "robohub-inference", Version: version.Version})
	logger := rlog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	path := strings.TrimSpace(*configPath)
	if path == "" {
		path = strings.TrimSpace(config.ParseString(config.EnvConfigFile, ""))
	}

	loader := config.NewLoader(path, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().Err(err).Str(rlog.FieldEvent, "config.load_failed").Str("config_path", path).Msg("failed to load configuration")
	}
	rlog.Configure(rlog.Config{Level: cfg.Log.Level, Service: cfg.Log.Service, Version: cfg.Version})
	for _, key := range loader.UnknownEnvKeys() {
		logger.Warn().Str("key", key).Msg("unknown ROBOHUB_ environment variable ignored")
	}

	holder := config.NewConfigHolder(cfg, loader)
	rt, err := daemon.Bootstrap(ctx, holder)
	if err != nil {
		logger.Fatal().Err(err).Str(rlog.FieldEvent, "startup.failed").Msg("failed to assemble runtime")
	}

	logger.Info().
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("listen", cfg.API.ListenAddr).
		Msg("starting robohub inference daemon")

	if err := daemon.NewApp(rt.Manager, holder).Run(ctx); err != nil {
		logger.Error().Err(err).Msg("daemon exited with error")
		os.Exit(1)
	}
	logger.Info().Msg("daemon stopped")
}
