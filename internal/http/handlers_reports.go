package http

import (
	"errors"
	"net/http"
)

var errExportDisabled = errors.New("report export is not configured")

func (s *Server) handleAgedDebt(w http.ResponseWriter, r *http.Request) {
	asOf, err := parseDateParam(r, "as_of")
	if err != nil {
		writeError(w, r, err)
		return
	}

	report, err := s.reports.AgedDebt(r.Context(), asOf)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleIncomeSummary(w http.ResponseWriter, r *http.Request) {
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

	report, err := s.reports.IncomeSummary(r.Context(), from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleExportAgedDebt(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: errExportDisabled.Error()})
		return
	}

	asOf, err := parseDateParam(r, "as_of")
	if err != nil {
		writeError(w, r, err)
		return
	}

	report, err := s.reports.AgedDebt(r.Context(), asOf)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.exporter.WriteAgedDebt(r.Context(), report); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"exported": true,
		"as_of":    report.AsOf.Format(dateLayout),
		"rows":     len(report.Rows),
	})
}

func (s *Server) handleExportIncomeSummary(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: errExportDisabled.Error()})
		return
	}

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

	report, err := s.reports.IncomeSummary(r.Context(), from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.exporter.WriteIncomeSummary(r.Context(), report); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"exported": true,
		"months":   len(report.ByMonth),
	})
}
