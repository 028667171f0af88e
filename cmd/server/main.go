// Farm-health server entry point
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

	"golang.org/x/sync/errgroup"

	"github.com/rkm/farm-health/internal/analysis"
	"github.com/rkm/farm-health/internal/api"
	"github.com/rkm/farm-health/internal/config"
	"github.com/rkm/farm-health/internal/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Set up logger
	logger := setupLogger(cfg.Logging.Level, cfg.Logging.Format)

	logger.Info("starting farm-health server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"analysis_url", cfg.Analysis.BaseURL,
		"default_crop", cfg.Session.DefaultCrop,
	)

	// Analysis pipeline: HTTP client, single-attempt orchestrator, session
	client := analysis.NewClient(cfg.Analysis.BaseURL, cfg.Analysis.Timeout).WithLogger(logger)
	orchestrator := analysis.NewOrchestrator(client, cfg.Analysis.Timeout).WithLogger(logger)
	sess := session.New(orchestrator, cfg.Session.Crop()).WithLogger(logger)
	controller := session.NewController(sess).WithLogger(logger)

	// Create handlers and router
	handlers := api.NewHandlers(cfg, controller, logger)
	router := api.NewRouter(handlers, logger)

	// Create server
	server := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	// The session loop outlives the HTTP server so in-flight handlers can
	// finish during shutdown.
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	g.Go(func() error {
		return controller.Run(loopCtx)
	})

	g.Go(func() error {
		logger.Info("server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			logger.Info("received shutdown signal")
		}

		// Graceful shutdown
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		logger.Info("shutting down server", "timeout", cfg.Server.ShutdownTimeout)
		err := server.Shutdown(shutdownCtx)
		stopLoop()
		if err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("server stopped")
	return nil
}

func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
