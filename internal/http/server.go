// Package http exposes the billing core as a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"livery/internal/export"
	applog "livery/internal/log"
	"livery/internal/services"
)

type Server struct {
	http.Server

	ledger   *services.LedgerService
	billing  *services.BillingRunner
	invoices *services.InvoiceService
	reports  *services.ReportingService
	exporter export.ReportWriter

	rateLimiter  *rateLimiter
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// server. exporter may be nil when report export is disabled.
func NewServer(addr string, logger *applog.Logger, ledger *services.LedgerService, billing *services.BillingRunner, invoices *services.InvoiceService, reports *services.ReportingService, exporter export.ReportWriter) *Server {
	mux := http.NewServeMux()

	s := &Server{
		ledger:      ledger,
		billing:     billing,
		invoices:    invoices,
		reports:     reports,
		exporter:    exporter,
		rateLimiter: newRateLimiter(),
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.HandleFunc("POST /entries", s.handlePostEntry)
	mux.HandleFunc("GET /entries/{id}", s.handleGetEntry)
	mux.HandleFunc("POST /entries/{id}/void", s.handleVoidEntry)

	mux.HandleFunc("GET /accounts/{accountID}/entries", s.handleListEntries)
	mux.HandleFunc("GET /accounts/{accountID}/balance", s.handleBalance)
	mux.HandleFunc("GET /accounts/{accountID}/statement", s.handleStatement)
	mux.HandleFunc("POST /accounts/{accountID}/payments", s.handleAccountPayment)

	mux.HandleFunc("POST /invoices", s.handleGenerateInvoice)
	mux.HandleFunc("GET /invoices/{id}", s.handleGetInvoice)
	mux.HandleFunc("GET /invoices/{id}/document", s.handleInvoiceDocument)
	mux.HandleFunc("POST /invoices/{id}/issue", s.handleIssueInvoice)
	mux.HandleFunc("POST /invoices/{id}/cancel", s.handleCancelInvoice)
	mux.HandleFunc("POST /invoices/{id}/payments", s.handleInvoicePayment)
	mux.HandleFunc("GET /accounts/{accountID}/invoices", s.handleListInvoices)

	mux.HandleFunc("POST /billing-runs/preview", s.handleBillingPreview)
	mux.HandleFunc("POST /billing-runs", s.handleBillingRun)

	mux.HandleFunc("GET /reports/aged-debt", s.handleAgedDebt)
	mux.HandleFunc("GET /reports/income-summary", s.handleIncomeSummary)
	mux.HandleFunc("POST /reports/aged-debt/export", s.handleExportAgedDebt)
	mux.HandleFunc("POST /reports/income-summary/export", s.handleExportIncomeSummary)

	handler := applog.Middleware(logger.WithComponent(applog.ComponentHTTP))(s.withRateLimit(mux))

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Shutdown stops the rate limiter's cleanup goroutine along with the
// HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
