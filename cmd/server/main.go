// Package main is the entry point for the disentangling service. It serves
// the session API, runs scheduled self-checks against the reference oracle
// and keeps their reports in a local run store.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/disentangle/internal/config"
	"github.com/aristath/disentangle/internal/di"
	"github.com/aristath/disentangle/internal/server"
	"github.com/aristath/disentangle/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Int("qubits", cfg.Qubits).
		Str("policy", cfg.Policy).
		Str("obs_fn", cfg.ObsFn).
		Msg("Starting disentangler")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	container, jobs, err := di.Wire(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	srv := server.New(server.Config{
		Log:        log,
		DB:         container.RunsDB,
		Quantum:    container.QuantumHandler,
		Sessions:   container.Sessions,
		Scheduler:  container.Scheduler,
		DataDir:    cfg.DataDir,
		Port:       cfg.Port,
		DevMode:    cfg.DevMode,
		SessionTTL: cfg.SessionTTL,
	})
	srv.SetJobs(jobs.All()...)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	container.Scheduler.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
