package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"finsight/internal/shared/config"
	"finsight/internal/shared/logger"
	"finsight/internal/shared/telemetry"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	if cfg.Telemetry.Enabled {
		shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
			ServiceName:  cfg.Telemetry.ServiceName,
			Environment:  cfg.Telemetry.Environment,
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			MetricsPort:  cfg.Telemetry.MetricsPort,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTelemetry(ctx); err != nil {
				log.Error().Err(err).Msg("Telemetry shutdown error")
			}
		}()
	}

	deps, err := NewDependencies(cfg, log)
	if err != nil {
		return err
	}
	deps.Start()
	if deps.Scheduler != nil {
		log.Info().Time("next_run", deps.Scheduler.NextRun(time.Now())).Msg("Scheduler enabled")
	}

	handler := SetupRoutes(deps, cfg, log)
	srv, serverErr := StartServer(handler, cfg, log)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutdown requested")
	case err := <-serverErr:
		if err != nil {
			GracefulShutdown(srv, deps, shutdownTimeout, log)
			return fmt.Errorf("server error: %w", err)
		}
	}

	GracefulShutdown(srv, deps, shutdownTimeout, log)
	return nil
}
