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

// AccountsHandler serves account reads from the mirror and stages writes
// through the operation queue.
type AccountsHandler struct {
	mirror  *store.Mirror
	queue   *queue.Queue
	ownerID string
}

// NewAccountsHandler creates a new AccountsHandler.
func NewAccountsHandler(mirror *store.Mirror, q *queue.Queue, ownerID string) *AccountsHandler {
	return &AccountsHandler{mirror: mirror, queue: q, ownerID: ownerID}
}

// List handles GET /api/accounts.
func (h *AccountsHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.mirror.QueryAccounts(r.Context(), h.ownerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": records,
		"count":    len(records),
	})
}

// Create handles POST /api/accounts. The duplicate-name check against
// server state runs during replay; locally only an exact mirror duplicate
// is rejected.
func (h *AccountsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var record models.Account
	if err := decodeBody(r, &record); err != nil {
		writeError(w, err)
		return
	}
	if record.Name == "" {
		writeError(w, apperrors.New(apperrors.ErrValidation, "name is required"))
		return
	}

	ctx := r.Context()
	existing, err := h.mirror.QueryAccounts(ctx, h.ownerID)
	if err != nil {
		writeError(w, err)
		return
	}
	for _, a := range existing {
		if a.Name == record.Name {
			writeError(w, apperrors.Newf(apperrors.ErrDuplicateName, "account %q already exists", record.Name))
			return
		}
	}

	now := time.Now().Unix()
	record.ID = models.PendingID(uuid.New())
	record.OwnerID = h.ownerID
	record.CreatedAt = now
	record.UpdatedAt = now

	if err := h.mirror.UpsertAccounts(ctx, []*models.Account{&record}); err != nil {
		writeError(w, err)
		return
	}
	if _, err := h.queue.Enqueue(ctx, &ops.CreateAccountPayload{Account: record}); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, &record)
}

// Edit handles PATCH /api/accounts/{id}.
func (h *AccountsHandler) Edit(w http.ResponseWriter, r *http.Request) {
	id := models.ParseEntityID(r.PathValue("id"))

	var updates map[string]any
	if err := decodeBody(r, &updates); err != nil {
		writeError(w, err)
		return
	}
	if len(updates) == 0 {
		writeError(w, apperrors.New(apperrors.ErrValidation, "no fields to update"))
		return
	}

	ctx := r.Context()
	accounts, err := h.mirror.QueryAccounts(ctx, h.ownerID)
	if err != nil {
		writeError(w, err)
		return
	}
	var current *models.Account
	for _, a := range accounts {
		if a.ID == id {
			current = a
			break
		}
	}
	if current == nil {
		writeError(w, apperrors.Newf(apperrors.ErrNotFound, "account %s not found", id))
		return
	}

	rec, err := toMap(current)
	if err != nil {
		writeError(w, err)
		return
	}
	base := make(map[string]any, len(updates))
	for k := range updates {
		base[k] = rec[k]
	}

	merged := *current
	if name, ok := updates["name"].(string); ok {
		merged.Name = name
	}
	if accType, ok := updates["type"].(string); ok {
		merged.Type = accType
	}
	if balance, ok := updates["opening_balance"].(float64); ok {
		merged.OpeningBalance = int64(balance)
	}
	merged.Touch()

	if err := h.mirror.UpsertAccounts(ctx, []*models.Account{&merged}); err != nil {
		writeError(w, err)
		return
	}
	payload := &ops.EditAccountPayload{Edit: ops.Edit{
		ID:      id,
		OwnerID: h.ownerID,
		Updates: updates,
		Base:    base,
	}}
	if _, err := h.queue.Enqueue(ctx, payload); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &merged)
}

// Delete handles DELETE /api/accounts/{id}.
func (h *AccountsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := models.ParseEntityID(r.PathValue("id"))

	ctx := r.Context()
	if err := h.mirror.DeleteAccount(ctx, id); err != nil {
		writeError(w, err)
		return
	}
	payload := &ops.DeleteAccountPayload{Delete: ops.Delete{ID: id, OwnerID: h.ownerID}}
	if _, err := h.queue.Enqueue(ctx, payload); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": id.String()})
}
