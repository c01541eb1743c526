/*
Copyright (C) 2026 Sonorium Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/synssins/sonorium.dev/internal/channelpool"
	"github.com/synssins/sonorium.dev/internal/config"
	"github.com/synssins/sonorium.dev/internal/db"
	"github.com/synssins/sonorium.dev/internal/events"
	"github.com/synssins/sonorium.dev/internal/logging"
	"github.com/synssins/sonorium.dev/internal/session"
	"github.com/synssins/sonorium.dev/internal/speakerfanout"
	"github.com/synssins/sonorium.dev/internal/storage"
	"github.com/synssins/sonorium.dev/internal/telemetry"
	"github.com/synssins/sonorium.dev/internal/themestore"
	transporthttp "github.com/synssins/sonorium.dev/internal/transport/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Sonorium server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.Setup(cfg.Environment)
	logger.Info().Str("environment", cfg.Environment).Msg("sonorium starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracerProvider, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
		ServiceName:    "sonorium",
		ServiceVersion: "dev",
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("tracer shutdown failed")
		}
	}()

	database, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer func() {
		if err := db.Close(database); err != nil {
			logger.Error().Err(err).Msg("database close failed")
		}
	}()
	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	store := themestore.New(database, logger)
	bus := events.NewBus()
	fanoutCfg := speakerfanout.DefaultConfig()
	fanoutCfg.URL = cfg.NATSURL
	fanout := speakerfanout.Connect(fanoutCfg, logger)
	defer fanout.Close()

	pool := channelpool.New(cfg.MaxChannels, logger)
	defer pool.Close()

	var resolver *storage.Resolver
	if cfg.S3Bucket != "" {
		resolver, err = storage.NewResolver(ctx, storage.Config{
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			Endpoint:        cfg.S3Endpoint,
			UsePathStyle:    cfg.S3UsePathStyle,
		}, logger)
		if err != nil {
			return fmt.Errorf("init storage resolver: %w", err)
		}
	}

	streamURLPrefix := fmt.Sprintf("%s/channel_stream", cfg.BaseURL)
	sessions := session.New(pool, store, bus, fanout, resolver, cfg.SampleRate, cfg.Channels, streamURLPrefix, logger)

	server := transporthttp.New(cfg, pool, sessions, logger)
	defer server.Close()

	httpServer := server.HTTPServer()

	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	if cfg.MetricsBind != "" && cfg.MetricsBind != fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort) {
		metricsServer := &http.Server{Addr: cfg.MetricsBind, Handler: telemetry.Handler()}
		go func() {
			logger.Info().Str("addr", cfg.MetricsBind).Msg("metrics server listening")
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("metrics server error")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("sonorium stopped")
	return nil
}
