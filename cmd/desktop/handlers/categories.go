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

// CategoriesHandler serves category reads from the mirror and stages
// writes through the operation queue.
type CategoriesHandler struct {
	mirror  *store.Mirror
	queue   *queue.Queue
	ownerID string
}

// NewCategoriesHandler creates a new CategoriesHandler.
func NewCategoriesHandler(mirror *store.Mirror, q *queue.Queue, ownerID string) *CategoriesHandler {
	return &CategoriesHandler{mirror: mirror, queue: q, ownerID: ownerID}
}

// List handles GET /api/categories.
func (h *CategoriesHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.mirror.QueryCategories(r.Context(), h.ownerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"categories": records,
		"count":      len(records),
	})
}

// Create handles POST /api/categories.
func (h *CategoriesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var record models.Category
	if err := decodeBody(r, &record); err != nil {
		writeError(w, err)
		return
	}
	if record.Name == "" {
		writeError(w, apperrors.New(apperrors.ErrValidation, "name is required"))
		return
	}
	if record.Kind != "income" && record.Kind != "expense" {
		writeError(w, apperrors.New(apperrors.ErrValidation, "kind must be income or expense"))
		return
	}

	ctx := r.Context()
	existing, err := h.mirror.QueryCategories(ctx, h.ownerID)
	if err != nil {
		writeError(w, err)
		return
	}
	for _, c := range existing {
		if c.Name == record.Name && c.Kind == record.Kind {
			writeError(w, apperrors.Newf(apperrors.ErrDuplicateName, "category %q already exists", record.Name))
			return
		}
	}

	now := time.Now().Unix()
	record.ID = models.PendingID(uuid.New())
	record.OwnerID = h.ownerID
	record.CreatedAt = now
	record.UpdatedAt = now

	if err := h.mirror.UpsertCategories(ctx, []*models.Category{&record}); err != nil {
		writeError(w, err)
		return
	}
	if _, err := h.queue.Enqueue(ctx, &ops.CreateCategoryPayload{Category: record}); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, &record)
}

// Edit handles PATCH /api/categories/{id}.
func (h *CategoriesHandler) Edit(w http.ResponseWriter, r *http.Request) {
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
	categories, err := h.mirror.QueryCategories(ctx, h.ownerID)
	if err != nil {
		writeError(w, err)
		return
	}
	var current *models.Category
	for _, c := range categories {
		if c.ID == id {
			current = c
			break
		}
	}
	if current == nil {
		writeError(w, apperrors.Newf(apperrors.ErrNotFound, "category %s not found", id))
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
	if kind, ok := updates["kind"].(string); ok {
		merged.Kind = kind
	}
	merged.Touch()

	if err := h.mirror.UpsertCategories(ctx, []*models.Category{&merged}); err != nil {
		writeError(w, err)
		return
	}
	payload := &ops.EditCategoryPayload{Edit: ops.Edit{
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

// Delete handles DELETE /api/categories/{id}.
func (h *CategoriesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := models.ParseEntityID(r.PathValue("id"))

	ctx := r.Context()
	if err := h.mirror.DeleteCategory(ctx, id); err != nil {
		writeError(w, err)
		return
	}
	payload := &ops.DeleteCategoryPayload{Delete: ops.Delete{ID: id, OwnerID: h.ownerID}}
	if _, err := h.queue.Enqueue(ctx, payload); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": id.String()})
}
