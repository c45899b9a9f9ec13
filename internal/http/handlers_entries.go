package http

import (
	"fmt"
	"net/http"

	"livery/internal/core"
	"livery/internal/render"
)

type postEntryRequest struct {
	AccountID     string `json:"account_id"`
	EntryType     string `json:"entry_type"`
	Amount        string `json:"amount"`
	Description   string `json:"description"`
	Category      string `json:"category"`
	EffectiveDate string `json:"effective_date"`
	CreatedBy     string `json:"created_by"`
	SourceRef     string `json:"source_ref"`
}

func (s *Server) handlePostEntry(w http.ResponseWriter, r *http.Request) {
	var req postEntryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	effective, err := parseDateField("effective_date", req.EffectiveDate)
	if err != nil {
		writeError(w, r, err)
		return
	}

	entry, err := s.ledger.Post(r.Context(), core.NewLedgerEntry{
		AccountID:     req.AccountID,
		Type:          core.EntryType(req.EntryType),
		Amount:        amount,
		Description:   req.Description,
		Category:      req.Category,
		EffectiveDate: effective,
		CreatedBy:     req.CreatedBy,
		SourceRef:     req.SourceRef,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := s.ledger.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

type voidEntryRequest struct {
	Reason string `json:"reason"`
	Actor  string `json:"actor"`
}

func (s *Server) handleVoidEntry(w http.ResponseWriter, r *http.Request) {
	var req voidEntryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Reason == "" {
		writeError(w, r, fmt.Errorf("%w: missing void reason", core.ErrValidation))
		return
	}

	reversal, err := s.ledger.Void(r.Context(), r.PathValue("id"), req.Reason, req.Actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reversal)
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	accountID := r.PathValue("accountID")

	from, err := parseDateParam(r, "from")
	if err != nil {
		writeError(w, r, err)
		return
	}
	to, err := parseDateParam(r, "to")
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := parseIntParam(r, "limit", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	offset, err := parseIntParam(r, "offset", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}

	filter := core.EntryFilter{
		From:   from,
		To:     to,
		Type:   core.EntryType(r.URL.Query().Get("type")),
		Limit:  limit,
		Offset: offset,
	}
	if filter.Type != "" && !filter.Type.Valid() {
		writeError(w, r, fmt.Errorf("%w: unknown entry type %q", core.ErrValidation, filter.Type))
		return
	}

	entries, err := s.ledger.List(r.Context(), accountID, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account_id": accountID,
		"entries":    entries,
	})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	accountID := r.PathValue("accountID")
	balance, err := s.ledger.Balance(r.Context(), accountID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account_id": accountID,
		"balance":    core.FormatAmount(balance),
	})
}

func (s *Server) handleStatement(w http.ResponseWriter, r *http.Request) {
	accountID := r.PathValue("accountID")

	from, err := parseDateParam(r, "from")
	if err != nil {
		writeError(w, r, err)
		return
	}
	to, err := parseDateParam(r, "to")
	if err != nil {
		writeError(w, r, err)
		return
	}

	statement, err := s.reports.AccountStatement(r.Context(), accountID, from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if r.URL.Query().Get("format") == "document" {
		doc := render.BuildStatement(statement.AccountID, statement.From, statement.To,
			statement.OpeningBalance, statement.Entries)
		writeJSON(w, http.StatusOK, doc)
		return
	}
	writeJSON(w, http.StatusOK, statement)
}
