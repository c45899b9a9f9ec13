package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"livery/internal/amqp"
	"livery/internal/config"
	applog "livery/internal/log"
	"livery/internal/services"
	"livery/internal/storage"
)

// The notification worker consumes invoice-issued events and prepares the
// outbound invoice documents. It is the consumer side of the events the
// server publishes.
func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.Config{Component: applog.ComponentNotifier})
	applog.SetDefault(logger)

	logger.Info("Starting notification-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required, the notification worker only consumes events")
		os.Exit(1)
	}

	repo, err := storage.NewRepositoryWithTimeout(cfg.SQLiteDBPath, cfg.StorageTimeout)
	if err != nil {
		logger.Error("Failed to initialize ledger store", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	invoices := services.NewInvoiceService(repo, nil, cfg.PaymentTermsDays)
	notifier := services.NewInvoiceNotifier(invoices)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())
		cancel()
	}()

	logger.Info("Consuming invoice messages", "queue", cfg.AMQPQueue, "exchange", cfg.AMQPExchange)
	err = client.ConsumeInvoiceIssued(ctx, func(msg *amqp.InvoiceIssuedMessage) error {
		return notifier.HandleInvoiceIssued(ctx, msg)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Consumer stopped", "error", err)
		os.Exit(1)
	}

	logger.Info("Notification-worker shutdown complete")
}
