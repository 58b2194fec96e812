package handlers

import (
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/fintrack-app/fintrack/backend/internal/errors"
	"github.com/fintrack-app/fintrack/backend/internal/report"
)

// ReportsHandler serves derived summaries computed from the mirror.
type ReportsHandler struct {
	reporter *report.Reporter
	ownerID  string
}

// NewReportsHandler creates a new ReportsHandler.
func NewReportsHandler(reporter *report.Reporter, ownerID string) *ReportsHandler {
	return &ReportsHandler{reporter: reporter, ownerID: ownerID}
}

// Balances handles GET /api/reports/balances.
func (h *ReportsHandler) Balances(w http.ResponseWriter, r *http.Request) {
	balances, err := h.reporter.AccountBalances(r.Context(), h.ownerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"balances": balances})
}

// CashFlow handles GET /api/reports/cashflow?from=<unix>&to=<unix>.
// Defaults to the current calendar month.
func (h *ReportsHandler) CashFlow(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	now := time.Now()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	to := from.AddDate(0, 1, 0).Add(-time.Second)

	if raw := q.Get("from"); raw != "" {
		sec, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, apperrors.New(apperrors.ErrInvalid, "from must be a unix timestamp"))
			return
		}
		from = time.Unix(sec, 0)
	}
	if raw := q.Get("to"); raw != "" {
		sec, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, apperrors.New(apperrors.ErrInvalid, "to must be a unix timestamp"))
			return
		}
		to = time.Unix(sec, 0)
	}

	flow, err := h.reporter.PeriodCashFlow(r.Context(), h.ownerID, from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, flow)
}
