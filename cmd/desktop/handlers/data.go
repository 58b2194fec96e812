package handlers

import (
	"net/http"
	"time"

	apperrors "github.com/fintrack-app/fintrack/backend/internal/errors"
	"github.com/fintrack-app/fintrack/backend/internal/models"
	"github.com/fintrack-app/fintrack/backend/internal/ops"
	"github.com/fintrack-app/fintrack/backend/internal/queue"
	"github.com/fintrack-app/fintrack/backend/internal/store"
	"github.com/fintrack-app/fintrack/backend/internal/uuid"
)

// DataHandler handles bulk import and whole-account data operations.
type DataHandler struct {
	mirror  *store.Mirror
	queue   *queue.Queue
	ownerID string
}

// NewDataHandler creates a new DataHandler.
func NewDataHandler(mirror *store.Mirror, q *queue.Queue, ownerID string) *DataHandler {
	return &DataHandler{mirror: mirror, queue: q, ownerID: ownerID}
}

// ImportTransactions handles POST /api/import/transactions. Records land
// in the mirror under placeholder ids and replay confirms each one.
func (h *DataHandler) ImportTransactions(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Records []models.Transaction `json:"records"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if len(body.Records) == 0 {
		writeError(w, apperrors.New(apperrors.ErrValidation, "records must not be empty"))
		return
	}

	now := time.Now().Unix()
	rows := make([]*models.Transaction, len(body.Records))
	for i := range body.Records {
		body.Records[i].ID = models.PendingID(uuid.New())
		body.Records[i].OwnerID = h.ownerID
		if body.Records[i].Date == 0 {
			body.Records[i].Date = now
		}
		body.Records[i].CreatedAt = now
		body.Records[i].UpdatedAt = now
		rows[i] = &body.Records[i]
	}

	ctx := r.Context()
	if err := h.mirror.UpsertTransactions(ctx, rows); err != nil {
		writeError(w, err)
		return
	}
	payload := &ops.BulkImportTransactionsPayload{Records: body.Records}
	op, err := h.queue.Enqueue(ctx, payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"operation": op.ID,
		"count":     len(body.Records),
	})
}

// ImportAccounts handles POST /api/import/accounts.
func (h *DataHandler) ImportAccounts(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Records []models.Account `json:"records"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if len(body.Records) == 0 {
		writeError(w, apperrors.New(apperrors.ErrValidation, "records must not be empty"))
		return
	}

	now := time.Now().Unix()
	rows := make([]*models.Account, len(body.Records))
	for i := range body.Records {
		body.Records[i].ID = models.PendingID(uuid.New())
		body.Records[i].OwnerID = h.ownerID
		body.Records[i].CreatedAt = now
		body.Records[i].UpdatedAt = now
		rows[i] = &body.Records[i]
	}

	ctx := r.Context()
	if err := h.mirror.UpsertAccounts(ctx, rows); err != nil {
		writeError(w, err)
		return
	}
	op, err := h.queue.Enqueue(ctx, &ops.BulkImportAccountsPayload{Records: body.Records})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"operation": op.ID,
		"count":     len(body.Records),
	})
}

// ImportCategories handles POST /api/import/categories.
func (h *DataHandler) ImportCategories(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Records []models.Category `json:"records"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if len(body.Records) == 0 {
		writeError(w, apperrors.New(apperrors.ErrValidation, "records must not be empty"))
		return
	}

	now := time.Now().Unix()
	rows := make([]*models.Category, len(body.Records))
	for i := range body.Records {
		body.Records[i].ID = models.PendingID(uuid.New())
		body.Records[i].OwnerID = h.ownerID
		body.Records[i].CreatedAt = now
		body.Records[i].UpdatedAt = now
		rows[i] = &body.Records[i]
	}

	ctx := r.Context()
	if err := h.mirror.UpsertCategories(ctx, rows); err != nil {
		writeError(w, err)
		return
	}
	op, err := h.queue.Enqueue(ctx, &ops.BulkImportCategoriesPayload{Records: body.Records})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"operation": op.ID,
		"count":     len(body.Records),
	})
}

// ClearAllData handles POST /api/data/clear: wipes the mirror immediately
// and queues the server-side wipe.
func (h *DataHandler) ClearAllData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.mirror.Purge(ctx, h.ownerID); err != nil {
		writeError(w, err)
		return
	}
	op, err := h.queue.Enqueue(ctx, &ops.ClearAllDataPayload{OwnerID: h.ownerID})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"operation": op.ID})
}

// SignOut handles POST /api/auth/signout: queues the remote session end.
func (h *DataHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	op, err := h.queue.Enqueue(r.Context(), &ops.SignOutPayload{OwnerID: h.ownerID})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"operation": op.ID})
}
