package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"livery/internal/agreements"
	"livery/internal/amqp"
	"livery/internal/config"
	"livery/internal/export"
	exportgoogle "livery/internal/export/google"
	exportmem "livery/internal/export/memory"
	apphttp "livery/internal/http"
	applog "livery/internal/log"
	"livery/internal/services"
	"livery/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig())
	applog.SetDefault(logger)

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
			logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange)
		}
	} else {
		logger.Info("AMQP disabled - billing events will not be published")
	}

	var exporter export.ReportWriter
	switch cfg.ExportBackend {
	case "sheets":
		cli, err := exportgoogle.New(context.Background(),
			cfg.GoogleSpreadsheetID, cfg.AgedDebtSheetName, cfg.IncomeSheetName)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets export", "error", err)
			os.Exit(1)
		}
		exporter = cli
		logger.Info("Report export configured", "backend", cfg.ExportBackend)
	case "memory":
		exporter = exportmem.New()
		logger.Info("Report export configured", "backend", cfg.ExportBackend)
	default:
		logger.Info("Report export disabled")
	}

	agreementSource := agreements.NewFileSource(cfg.AgreementsFile)

	ledger := services.NewLedgerService(repo)
	billing := services.NewBillingRunner(repo, agreementSource, amqpClient)
	invoices := services.NewInvoiceService(repo, amqpClient, cfg.PaymentTermsDays)
	reports := services.NewReportingService(repo)

	srv := apphttp.NewServer(":"+cfg.Port, logger, ledger, billing, invoices, reports, exporter)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

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
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting livery server", "port", cfg.Port, "db", cfg.SQLiteDBPath)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
