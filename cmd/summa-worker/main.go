package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"summa/internal/amqp"
	"summa/internal/config"
	applog "summa/internal/log"
	"summa/internal/sheets"
	gsheet "summa/internal/sheets/google"
	mem "summa/internal/sheets/memory"
	"summa/internal/storage"
	"summa/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(os.Getenv("LOG_LEVEL")),
		Component: applog.ComponentWorker,
	})
	applog.SetDefault(logger)

	logger.Info("Starting summa-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	// Google Sheets backup is optional; without credentials the worker
	// drains messages into an in-memory sink so the queue never backs up.
	var appender sheets.InvoiceAppender
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.NewFromEnv(context.Background())
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		appender = client
		logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		appender = mem.New()
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	syncWorker := worker.NewSyncWorker(repo, appender)

	go func() {
		err := amqpClient.ConsumeInvoiceSync(ctx, func(msg *amqp.InvoiceSyncMessage) error {
			return syncWorker.HandleSyncMessage(ctx, msg)
		})
		if err != nil && err != context.Canceled {
			logger.Error("Message consumption failed", "error", err)
		}
		cancel()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	cancel()
	logger.Info("Shutting down worker...")
	time.Sleep(2 * time.Second)
	logger.Info("Worker shutdown complete")
}
