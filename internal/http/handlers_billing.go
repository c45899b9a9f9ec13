package http

import (
	"net/http"
	"time"
)

type billingRunRequest struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

func (r billingRunRequest) period() (int, time.Month) {
	if r.Year == 0 && r.Month == 0 {
		now := time.Now().UTC()
		return now.Year(), now.Month()
	}
	return r.Year, time.Month(r.Month)
}

func (s *Server) handleBillingPreview(w http.ResponseWriter, r *http.Request) {
	var req billingRunRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	year, month := req.period()
	result, err := s.billing.Preview(r.Context(), year, month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleBillingRun(w http.ResponseWriter, r *http.Request) {
	var req billingRunRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	year, month := req.period()
	result, err := s.billing.Run(r.Context(), year, month)
	if err != nil {
		writeError(w, r, err)
		return
	}

	// Per-account failures ride inside the result; the request itself
	// succeeded. 207 signals the partial outcome.
	status := http.StatusOK
	if len(result.Errors) > 0 {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, result)
}
