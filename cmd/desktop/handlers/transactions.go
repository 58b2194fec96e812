package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/fintrack-app/fintrack/backend/internal/errors"
	"github.com/fintrack-app/fintrack/backend/internal/models"
	"github.com/fintrack-app/fintrack/backend/internal/ops"
	"github.com/fintrack-app/fintrack/backend/internal/queue"
	"github.com/fintrack-app/fintrack/backend/internal/store"
	"github.com/fintrack-app/fintrack/backend/internal/uuid"
)

// TransactionsHandler serves transaction reads from the mirror and stages
// writes through the operation queue.
type TransactionsHandler struct {
	mirror  *store.Mirror
	queue   *queue.Queue
	ownerID string
}

// NewTransactionsHandler creates a new TransactionsHandler.
func NewTransactionsHandler(mirror *store.Mirror, q *queue.Queue, ownerID string) *TransactionsHandler {
	return &TransactionsHandler{mirror: mirror, queue: q, ownerID: ownerID}
}

// List handles GET /api/transactions.
func (h *TransactionsHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := filterFromQuery(r)
	records, err := h.mirror.QueryTransactions(r.Context(), h.ownerID, filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": records,
		"count":        len(records),
	})
}

// Create handles POST /api/transactions: write the row locally under a
// placeholder id and queue the create for the next pass.
func (h *TransactionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var record models.Transaction
	if err := decodeBody(r, &record); err != nil {
		writeError(w, err)
		return
	}
	if record.Amount == 0 || record.AccountID.IsZero() {
		writeError(w, apperrors.New(apperrors.ErrValidation, "amount and account_id are required"))
		return
	}

	now := time.Now().Unix()
	record.ID = models.PendingID(uuid.New())
	record.OwnerID = h.ownerID
	if record.Date == 0 {
		record.Date = now
	}
	record.CreatedAt = now
	record.UpdatedAt = now

	ctx := r.Context()
	if err := h.mirror.UpsertTransactions(ctx, []*models.Transaction{&record}); err != nil {
		writeError(w, err)
		return
	}
	if _, err := h.queue.Enqueue(ctx, &ops.CreateTransactionPayload{Transaction: record}); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, &record)
}

// Edit handles PATCH /api/transactions/{id}: apply the field changes to
// the mirror row and queue the edit with the pre-change snapshot.
func (h *TransactionsHandler) Edit(w http.ResponseWriter, r *http.Request) {
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
	current, err := h.mirror.GetTransaction(ctx, id)
	if err == sql.ErrNoRows {
		writeError(w, apperrors.Newf(apperrors.ErrNotFound, "transaction %s not found", id))
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	base := snapshotFields(current, updates)
	merged, err := applyUpdates(current, updates)
	if err != nil {
		writeError(w, err)
		return
	}
	merged.Touch()

	if err := h.mirror.UpsertTransactions(ctx, []*models.Transaction{merged}); err != nil {
		writeError(w, err)
		return
	}
	payload := &ops.EditTransactionPayload{Edit: ops.Edit{
		ID:      id,
		OwnerID: h.ownerID,
		Updates: updates,
		Base:    base,
	}}
	if _, err := h.queue.Enqueue(ctx, payload); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, merged)
}

// Delete handles DELETE /api/transactions/{id}.
func (h *TransactionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := models.ParseEntityID(r.PathValue("id"))

	ctx := r.Context()
	if err := h.mirror.DeleteTransaction(ctx, id); err != nil {
		writeError(w, err)
		return
	}
	payload := &ops.DeleteTransactionPayload{Delete: ops.Delete{ID: id, OwnerID: h.ownerID}}
	if _, err := h.queue.Enqueue(ctx, payload); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": id.String()})
}

// CreateTransfer handles POST /api/transfers: a linked pair of rows moving
// money between two accounts, staged as one atomic server procedure.
func (h *TransactionsHandler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AccountID   models.EntityID `json:"account_id"`
		ToAccountID models.EntityID `json:"to_account_id"`
		Amount      int64           `json:"amount"`
		Description string          `json:"description"`
		Date        int64           `json:"date"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.Amount <= 0 || body.AccountID.IsZero() || body.ToAccountID.IsZero() {
		writeError(w, apperrors.New(apperrors.ErrValidation, "amount, account_id and to_account_id are required"))
		return
	}

	now := time.Now().Unix()
	if body.Date == 0 {
		body.Date = now
	}
	outgoing := models.Transaction{
		ID:          models.PendingID(uuid.New()),
		OwnerID:     h.ownerID,
		Description: body.Description,
		Amount:      -body.Amount,
		Type:        models.TransactionTransfer,
		Date:        body.Date,
		AccountID:   body.AccountID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	incoming := models.Transaction{
		ID:                  models.PendingID(uuid.New()),
		OwnerID:             h.ownerID,
		Description:         body.Description,
		Amount:              body.Amount,
		Type:                models.TransactionTransfer,
		Date:                body.Date,
		AccountID:           body.ToAccountID,
		LinkedTransactionID: outgoing.ID,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	outgoing.LinkedTransactionID = incoming.ID

	ctx := r.Context()
	if err := h.mirror.UpsertTransactions(ctx, []*models.Transaction{&outgoing, &incoming}); err != nil {
		writeError(w, err)
		return
	}
	payload := &ops.TransferPayload{
		ID:          outgoing.ID,
		IncomingID:  incoming.ID,
		OwnerID:     h.ownerID,
		AccountID:   body.AccountID,
		ToAccountID: body.ToAccountID,
		Amount:      body.Amount,
		Description: body.Description,
		Date:        body.Date,
	}
	if _, err := h.queue.Enqueue(ctx, payload); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"outgoing": &outgoing,
		"incoming": &incoming,
	})
}

// CreateRecurring handles POST /api/recurring: a fixed template the server
// materializes occurrences from.
func (h *TransactionsHandler) CreateRecurring(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Transaction models.Transaction `json:"transaction"`
		Frequency   string             `json:"frequency"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	switch body.Frequency {
	case "monthly", "weekly", "yearly":
	default:
		writeError(w, apperrors.New(apperrors.ErrValidation, "frequency must be monthly, weekly or yearly"))
		return
	}

	now := time.Now().Unix()
	body.Transaction.ID = models.PendingID(uuid.New())
	body.Transaction.OwnerID = h.ownerID
	body.Transaction.Fixed = true
	body.Transaction.CreatedAt = now
	body.Transaction.UpdatedAt = now

	ctx := r.Context()
	if err := h.mirror.UpsertTransactions(ctx, []*models.Transaction{&body.Transaction}); err != nil {
		writeError(w, err)
		return
	}
	payload := &ops.CreateRecurringPayload{Transaction: body.Transaction, Frequency: body.Frequency}
	if _, err := h.queue.Enqueue(ctx, payload); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, &body.Transaction)
}

// CreateInstallments handles POST /api/installments. The rows themselves
// materialize from the server on the pass after replay, so nothing is
// written to the mirror here.
func (h *TransactionsHandler) CreateInstallments(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Template models.Transaction `json:"template"`
		Count    int                `json:"count"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.Count < 2 {
		writeError(w, apperrors.New(apperrors.ErrValidation, "count must be at least 2"))
		return
	}

	now := time.Now().Unix()
	body.Template.ID = models.PendingID(uuid.New())
	body.Template.OwnerID = h.ownerID
	if body.Template.Date == 0 {
		body.Template.Date = now
	}
	body.Template.CreatedAt = now
	body.Template.UpdatedAt = now

	payload := &ops.CreateInstallmentSetPayload{Template: body.Template, Count: body.Count}
	op, err := h.queue.Enqueue(r.Context(), payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, op)
}

// filterFromQuery builds a TransactionFilter from URL query parameters.
func filterFromQuery(r *http.Request) *store.TransactionFilter {
	q := r.URL.Query()
	filter := &store.TransactionFilter{}
	filter.From, _ = strconv.ParseInt(q.Get("from"), 10, 64)
	filter.To, _ = strconv.ParseInt(q.Get("to"), 10, 64)
	filter.FixedOnly = q.Get("fixed") == "true"
	filter.Descending = q.Get("order") == "desc"
	if sort := q.Get("sort"); sort == string(store.SortByAmount) {
		filter.SortBy = store.SortByAmount
	} else {
		filter.SortBy = store.SortByDate
	}
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	return filter
}

// snapshotFields captures the current value of each updated field, the
// base the server-side divergence check compares against.
func snapshotFields(current *models.Transaction, updates map[string]any) map[string]any {
	rec, err := toMap(current)
	if err != nil {
		return nil
	}
	base := make(map[string]any, len(updates))
	for k := range updates {
		base[k] = rec[k]
	}
	return base
}

// applyUpdates merges a field-change map into a typed row via its JSON
// form.
func applyUpdates(current *models.Transaction, updates map[string]any) (*models.Transaction, error) {
	rec, err := toMap(current)
	if err != nil {
		return nil, err
	}
	for k, v := range updates {
		rec[k] = v
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalid, "merge updates", err)
	}
	var merged models.Transaction
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalid, "merge updates", err)
	}
	return &merged, nil
}

func toMap(v interface{}) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, "encode record", err)
	}
	var rec map[string]any
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, "encode record", err)
	}
	return rec, nil
}
