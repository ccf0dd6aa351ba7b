// Command server runs the CSV upload HTTP service.
//
// Startup order:
//  1. Load .env (if present) and environment configuration
//  2. Configure structured logging
//  3. Open the PostgreSQL pool and wait for it to become reachable
//  4. Serve HTTP until SIGINT/SIGTERM, then drain gracefully
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/tabledrop/tabledrop/internal/config"
	"github.com/tabledrop/tabledrop/internal/core"
	"github.com/tabledrop/tabledrop/internal/database"
	"github.com/tabledrop/tabledrop/internal/logging"
	"github.com/tabledrop/tabledrop/internal/web"
)

func main() {
	// A missing .env is fine; container deployments set real env vars.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting server", "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		slog.Error("database pool setup failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// The service refuses to serve traffic until the database answers.
	// Exhausting the probe attempts is fatal; the orchestrator restarts us.
	waitCfg := database.WaitConfig{
		Attempts: cfg.Database.ProbeAttempts,
		Interval: cfg.Database.ProbeInterval,
	}
	if err := database.WaitReady(ctx, pool, waitCfg); err != nil {
		slog.Error("database never became ready", "error", err)
		os.Exit(1)
	}

	service := core.NewService(pool, cfg)
	server := web.NewServer(service, cfg)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", cfg.Server.Addr())
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		slog.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("graceful shutdown failed", "error", err)
			os.Exit(1)
		}
		slog.Info("server stopped")
	}
}
