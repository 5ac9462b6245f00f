package main

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"summa/internal/config"
	applog "summa/internal/log"
	"summa/internal/offline"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(os.Getenv("LOG_LEVEL")),
		Component: applog.ComponentGateway,
	})
	applog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	upstream, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		logger.Error("Invalid upstream URL", "url", cfg.UpstreamURL, "error", err)
		os.Exit(1)
	}

	// Persisted cache when a database path is configured, memory otherwise.
	var storage offline.Storage
	if cfg.CacheDBPath != "" {
		sqliteStorage, err := offline.NewSQLiteStorage(cfg.CacheDBPath)
		if err != nil {
			logger.Error("Failed to open cache database", "path", cfg.CacheDBPath, "error", err)
			os.Exit(1)
		}
		defer sqliteStorage.Close()
		storage = sqliteStorage
		logger.Info("Using persisted cache", "path", cfg.CacheDBPath)
	} else {
		storage = offline.NewMemoryStorage()
		logger.Info("Using in-memory cache")
	}

	worker := offline.NewWorker(offline.Config{
		Generation: cfg.CacheGeneration,
		Upstream:   upstream,
		Storage:    storage,
	})

	installCtx, installCancel := context.WithTimeout(context.Background(), time.Minute)
	defer installCancel()

	// Install is best effort at startup: if the upstream is down the
	// gateway still serves whatever an earlier generation cached.
	if err := worker.Install(installCtx); err != nil {
		logger.Warn("Shell install failed, serving existing cache", "error", err)
	} else if err := worker.Activate(installCtx); err != nil {
		logger.Error("Cache activation failed", "error", err)
		os.Exit(1)
	} else {
		logger.Info("Cache generation active", "generation", worker.Generation())
	}

	srv := &http.Server{
		Addr:         ":" + cfg.GatewayPort,
		Handler:      worker,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Gateway shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting summa gateway",
		"port", cfg.GatewayPort,
		"upstream", cfg.UpstreamURL,
		"generation", worker.Generation())
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Gateway error", "error", err, "port", cfg.GatewayPort)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Gateway stopped gracefully")
}
