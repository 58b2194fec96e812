package handlers

import (
	"net/http"

	"github.com/fintrack-app/fintrack/backend/internal/queue"
	"github.com/fintrack-app/fintrack/backend/internal/sync/scheduler"
)

// SyncHandler handles sync status, triggering, and failure recovery.
type SyncHandler struct {
	scheduler *scheduler.Scheduler
	queue     *queue.Queue
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(s *scheduler.Scheduler, q *queue.Queue) *SyncHandler {
	return &SyncHandler{scheduler: s, queue: q}
}

// GetStatus handles GET /api/sync/status.
func (h *SyncHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.scheduler.GetStatus(r.Context()))
}

// SyncNow handles POST /api/sync/now. Runs a pass synchronously and
// returns its result.
func (h *SyncHandler) SyncNow(w http.ResponseWriter, r *http.Request) {
	result, err := h.scheduler.SyncNow(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// SetOnline handles POST /api/sync/online with body {"online": bool}.
// The UI forwards its connectivity signal here.
func (h *SyncHandler) SetOnline(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Online bool `json:"online"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	h.scheduler.SetOnlineStatus(body.Online)
	writeJSON(w, http.StatusOK, map[string]interface{}{"online": body.Online})
}

// ListFailed handles GET /api/sync/failed: operations parked after
// exhausting retries or hitting a terminal rejection.
func (h *SyncHandler) ListFailed(w http.ResponseWriter, r *http.Request) {
	failed, err := h.queue.ListFailed(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"failed": failed,
		"count":  len(failed),
	})
}

// RetryFailed handles POST /api/sync/failed/retry: moves every failed
// operation back to pending with a fresh retry budget.
func (h *SyncHandler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	n, err := h.queue.RetryFailed(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"requeued": n})
}
