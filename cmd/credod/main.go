package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"credo/config"
	"credo/observability/logging"
	telemetry "credo/observability/otel"
)

const serviceName = "credod"

// version is stamped at link time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "credod.toml", "path to credod configuration (.toml or .yaml)")
	flag.Parse()

	if err := run(cfgPath); err != nil {
		fmt.Fprintf(os.Stderr, "credod: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, logCloser := logging.Setup(logging.Options{
		Service:    serviceName,
		Env:        cfg.Environment,
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Environment:    cfg.Environment,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		Headers:        telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:        cfg.Telemetry.Metrics,
		Traces:         cfg.Telemetry.Traces,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("initialise telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", slog.Any("error", err))
		}
	}()

	n, err := newNode(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer n.Close()

	server := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      n.handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", slog.String("address", listener.Addr().String()), slog.Int("reserves", len(n.pool.Listed())))
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown failed", slog.Any("error", err))
		}
		return nil
	})
	g.Go(func() error {
		return refreshReserves(gctx, cfg.ReserveMetricsInterval, n.pool, n.metrics, logger)
	})

	err = g.Wait()
	logger.Info("stopped")
	return err
}
