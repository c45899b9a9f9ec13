package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"livery/internal/agreements"
	"livery/internal/amqp"
	"livery/internal/config"
	applog "livery/internal/log"
	"livery/internal/services"
	"livery/internal/storage"
)

// The billing worker runs the monthly billing cycle on an interval. Runs
// are idempotent, so firing every few hours is safe: agreements already
// billed for the current period are skipped.
func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.Config{Component: applog.ComponentWorker})
	applog.SetDefault(logger)

	logger.Info("Starting billing-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewRepositoryWithTimeout(cfg.SQLiteDBPath, cfg.StorageTimeout)
	if err != nil {
		logger.Error("Failed to initialize ledger store", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without events", "error", err)
			amqpClient = nil
		} else {
			defer amqpClient.Close()
		}
	}

	runner := services.NewBillingRunner(repo, agreements.NewFileSource(cfg.AgreementsFile), amqpClient)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("Billing worker configured",
		"interval", cfg.BillingRunInterval,
		"agreements_file", cfg.AgreementsFile,
		"sqlite_db", cfg.SQLiteDBPath)

	ticker := time.NewTicker(cfg.BillingRunInterval)
	defer ticker.Stop()

	runOnce := func(now time.Time) {
		result, err := runner.Run(ctx, now.Year(), now.Month())
		if err != nil {
			logger.Error("Billing run failed", "error", err)
			return
		}
		logger.Info("Billing run finished",
			"year", result.Year,
			"month", int(result.Month),
			"accounts_charged", result.AccountsCharged,
			"skipped_already_billed", result.SkippedAlreadyBilled,
			"errors", len(result.Errors))
	}

	logger.Info("Running initial billing cycle...")
	runOnce(time.Now().UTC())

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				runOnce(now.UTC())
			}
		}
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
	logger.Info("Billing-worker shutdown complete")
}
