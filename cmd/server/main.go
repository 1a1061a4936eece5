// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/agentstream/internal/app"
	"github.com/tomtom215/agentstream/internal/config"
	"github.com/tomtom215/agentstream/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Logger still has its defaults here.
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(cfg.Logging.Options(cfg.WebSocket.Verbose))
	logging.Info().
		Str("addr", cfg.Server.Addr()).
		Str("bus", cfg.Bus.Backend).
		Bool("store", cfg.Store.Enabled).
		Str("store_backend", cfg.Store.Backend).
		Msg("Starting agentstream")
	logging.Debug().
		Dur("publish_timeout", cfg.Bus.PublishTimeout).
		Bool("nats_embedded", cfg.Bus.Embedded.Enabled).
		Str("store_path", cfg.Store.Path).
		Dur("store_retention", cfg.Store.Retention).
		Msg("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to initialize")
		stop()
		os.Exit(1)
	}

	if err := application.Run(ctx); err != nil {
		logging.Error().Err(err).Msg("Stopped with errors")
		stop()
		os.Exit(1)
	}
	logging.Info().Msg("Application stopped gracefully")
}
