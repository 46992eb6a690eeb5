// Package main provides the entry point for the gifkit HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maauso/gifkit/internal/bootstrap"
	"github.com/maauso/gifkit/internal/config"
	"github.com/maauso/gifkit/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Create structured logger
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting gifkit server",
		slog.Int("port", cfg.Port),
		slog.String("log_format", cfg.LogFormat),
		slog.String("log_level", cfg.LogLevel),
		slog.String("temp_dir", cfg.TempDir),
		slog.Int("max_workers", cfg.MaxWorkers),
		slog.Duration("seek_timeout", cfg.SeekTimeout),
		slog.Int("default_quality", cfg.DefaultQuality),
		slog.Bool("fetch_proxy", cfg.FetchProxyURL != ""),
		slog.Bool("s3_enabled", cfg.S3Enabled()),
	)

	// Initialize dependencies using bootstrap
	deps, err := bootstrap.NewDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}

	// Initialize HTTP handlers and router
	handlers := server.NewHandlers(deps.ConvertService, logger, server.WithImageFetcher(deps.Fetcher))
	router := server.NewRouter(handlers, logger, server.Config{AllowedOrigins: cfg.CORSOrigins})

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  60 * time.Second, // base64 uploads can be large
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.JobRetention > 0 {
		interval := max(cfg.JobRetention/4, time.Minute)
		logger.Info("pruning finished jobs",
			slog.Duration("retention", cfg.JobRetention),
			slog.Duration("interval", interval),
		)
		go deps.ConvertService.PruneEvery(ctx, interval, cfg.JobRetention)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening",
			slog.String("addr", srv.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		return err
	}
	stop()

	// Stop the running conversion so its temp files are removed
	if active := deps.ConvertService.Active(); active != "" {
		logger.Info("cancelling active job", slog.String("job_id", active))
		if err := deps.ConvertService.CancelJob(context.Background(), active); err != nil {
			logger.Warn("failed to cancel active job", slog.String("error", err.Error()))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("shutting down server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}
