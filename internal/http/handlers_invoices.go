package http

import (
	"fmt"
	"net/http"
	"time"

	"livery/internal/core"
	"livery/internal/render"
)

type generateInvoiceRequest struct {
	AccountID        string `json:"account_id"`
	PeriodStart      string `json:"period_start"`
	PeriodEnd        string `json:"period_end"`
	SinceLastInvoice bool   `json:"since_last_invoice"`
}

func (s *Server) handleGenerateInvoice(w http.ResponseWriter, r *http.Request) {
	var req generateInvoiceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	periodStart, err := parseDateField("period_start", req.PeriodStart)
	if err != nil {
		writeError(w, r, err)
		return
	}
	periodEnd, err := parseDateField("period_end", req.PeriodEnd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !req.SinceLastInvoice && periodStart.IsZero() {
		writeError(w, r, fmt.Errorf("%w: missing period start", core.ErrValidation))
		return
	}

	inv, err := s.invoices.Generate(r.Context(), req.AccountID, periodStart, periodEnd, req.SinceLastInvoice)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

func (s *Server) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := s.invoices.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, invoiceView(inv))
}

func (s *Server) handleInvoiceDocument(w http.ResponseWriter, r *http.Request) {
	inv, err := s.invoices.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, render.BuildInvoice(inv, todayUTC()))
}

func (s *Server) handleIssueInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := s.invoices.Issue(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, invoiceView(inv))
}

func (s *Server) handleCancelInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := s.invoices.Cancel(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, invoiceView(inv))
}

type paymentRequest struct {
	Amount string `json:"amount"`
	Method string `json:"method"`
}

func (s *Server) handleInvoicePayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	entry, err := s.invoices.RecordPayment(r.Context(), r.PathValue("id"), amount, req.Method)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"entry":   entry,
		"receipt": render.BuildReceipt(entry),
	})
}

func (s *Server) handleAccountPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	entries, err := s.invoices.RecordAccountPayment(r.Context(), r.PathValue("accountID"), amount, req.Method)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"entries": entries})
}

func (s *Server) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	accountID := r.PathValue("accountID")
	invoices, err := s.invoices.List(r.Context(), accountID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	views := make([]invoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		views = append(views, invoiceView(inv))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account_id": accountID,
		"invoices":   views,
	})
}

// invoiceResponse adds the derived effective status and balance due to the
// stored invoice fields.
type invoiceResponse struct {
	core.Invoice
	EffectiveStatus core.InvoiceStatus `json:"effective_status"`
	BalanceDue      string             `json:"balance_due"`
}

func invoiceView(inv core.Invoice) invoiceResponse {
	return invoiceResponse{
		Invoice:         inv,
		EffectiveStatus: inv.EffectiveStatus(todayUTC()),
		BalanceDue:      core.FormatAmount(inv.BalanceDue()),
	}
}

func todayUTC() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
