package handlers

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fintrack-app/fintrack/backend/internal/models"
	"github.com/fintrack-app/fintrack/backend/internal/ops"
)

func TestCreateTransaction(t *testing.T) {
	mirror, q := newTestEnv(t)
	h := NewTransactionsHandler(mirror, q, testOwner)

	body := `{"description":"Coffee","amount":-450,"type":"expense","account_id":"srv-a1","date":1700000000}`
	req := httptest.NewRequest("POST", "/api/transactions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	if rec.Code != 201 {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	var created models.Transaction
	decodeResponse(t, rec, &created)
	if !created.ID.IsPending() {
		t.Errorf("id = %s, want a placeholder id", created.ID)
	}
	if created.OwnerID != testOwner {
		t.Errorf("owner = %q, want %q", created.OwnerID, testOwner)
	}

	// The row is visible locally before any sync pass runs.
	got, err := mirror.GetTransaction(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetTransaction failed: %v", err)
	}
	if got.Amount != -450 {
		t.Errorf("mirror amount = %d, want -450", got.Amount)
	}

	queued, err := q.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(queued) != 1 {
		t.Fatalf("queue has %d operations, want 1", len(queued))
	}
	if queued[0].Type != string(ops.CreateTransaction) {
		t.Errorf("op type = %q, want %q", queued[0].Type, ops.CreateTransaction)
	}
}

func TestCreateTransactionValidation(t *testing.T) {
	mirror, q := newTestEnv(t)
	h := NewTransactionsHandler(mirror, q, testOwner)

	tests := []struct {
		name string
		body string
	}{
		{"missing amount", `{"description":"x","account_id":"srv-a1"}`},
		{"missing account", `{"description":"x","amount":-100}`},
		{"malformed json", `{"amount":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/transactions", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.Create(rec, req)
			if rec.Code != 400 {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}

	queued, err := q.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(queued) != 0 {
		t.Errorf("queue has %d operations, want 0", len(queued))
	}
}

func TestListTransactionsFilter(t *testing.T) {
	mirror, q := newTestEnv(t)
	h := NewTransactionsHandler(mirror, q, testOwner)

	records := []*models.Transaction{
		{ID: models.ConfirmedID("t1"), OwnerID: testOwner, Amount: -100, Type: models.TransactionExpense, Date: 100},
		{ID: models.ConfirmedID("t2"), OwnerID: testOwner, Amount: -200, Type: models.TransactionExpense, Date: 200},
		{ID: models.ConfirmedID("t3"), OwnerID: testOwner, Amount: -300, Type: models.TransactionExpense, Date: 300},
	}
	if err := mirror.UpsertTransactions(context.Background(), records); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/transactions?from=150&to=300", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Count        int                   `json:"count"`
		Transactions []*models.Transaction `json:"transactions"`
	}
	decodeResponse(t, rec, &resp)
	if resp.Count != 2 {
		t.Errorf("count = %d, want 2", resp.Count)
	}
}

func TestEditTransactionSnapshotsBase(t *testing.T) {
	mirror, q := newTestEnv(t)
	h := NewTransactionsHandler(mirror, q, testOwner)
	ctx := context.Background()

	seed := &models.Transaction{
		ID: models.ConfirmedID("srv-t1"), OwnerID: testOwner,
		Amount: -500, Type: models.TransactionExpense, Date: 100,
	}
	if err := mirror.UpsertTransactions(ctx, []*models.Transaction{seed}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	req := httptest.NewRequest("PATCH", "/api/transactions/srv-t1", strings.NewReader(`{"amount":-900}`))
	req.SetPathValue("id", "srv-t1")
	rec := httptest.NewRecorder()
	h.Edit(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	got, err := mirror.GetTransaction(ctx, seed.ID)
	if err != nil {
		t.Fatalf("GetTransaction failed: %v", err)
	}
	if got.Amount != -900 {
		t.Errorf("mirror amount = %d, want -900", got.Amount)
	}

	queued, err := q.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(queued) != 1 {
		t.Fatalf("queue has %d operations, want 1", len(queued))
	}
	payload, err := ops.Decode(ops.Type(queued[0].Type), queued[0].Payload)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	edit, ok := payload.(*ops.EditTransactionPayload)
	if !ok {
		t.Fatalf("payload is %T, want *ops.EditTransactionPayload", payload)
	}
	// The pre-change value rides along for the divergence check.
	if base, _ := edit.Base["amount"].(float64); base != -500 {
		t.Errorf("base amount = %v, want -500", edit.Base["amount"])
	}
	if upd, _ := edit.Updates["amount"].(float64); upd != -900 {
		t.Errorf("update amount = %v, want -900", edit.Updates["amount"])
	}
}

func TestEditTransactionNotFound(t *testing.T) {
	mirror, q := newTestEnv(t)
	h := NewTransactionsHandler(mirror, q, testOwner)

	req := httptest.NewRequest("PATCH", "/api/transactions/srv-gone", strings.NewReader(`{"amount":-1}`))
	req.SetPathValue("id", "srv-gone")
	rec := httptest.NewRecorder()
	h.Edit(rec, req)

	if rec.Code != 404 {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestDeleteTransaction(t *testing.T) {
	mirror, q := newTestEnv(t)
	h := NewTransactionsHandler(mirror, q, testOwner)
	ctx := context.Background()

	seed := &models.Transaction{
		ID: models.ConfirmedID("srv-t1"), OwnerID: testOwner,
		Amount: -500, Type: models.TransactionExpense, Date: 100,
	}
	if err := mirror.UpsertTransactions(ctx, []*models.Transaction{seed}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	req := httptest.NewRequest("DELETE", "/api/transactions/srv-t1", nil)
	req.SetPathValue("id", "srv-t1")
	rec := httptest.NewRecorder()
	h.Delete(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if _, err := mirror.GetTransaction(ctx, seed.ID); err == nil {
		t.Error("row still present after delete")
	}
	queued, err := q.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(queued) != 1 || queued[0].Type != string(ops.DeleteTransaction) {
		t.Errorf("queue = %v, want one delete-transaction op", queued)
	}
}

func TestCreateTransfer(t *testing.T) {
	mirror, q := newTestEnv(t)
	h := NewTransactionsHandler(mirror, q, testOwner)
	ctx := context.Background()

	body := `{"account_id":"srv-a1","to_account_id":"srv-a2","amount":5000,"description":"Savings"}`
	req := httptest.NewRequest("POST", "/api/transfers", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.CreateTransfer(rec, req)

	if rec.Code != 201 {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Outgoing models.Transaction `json:"outgoing"`
		Incoming models.Transaction `json:"incoming"`
	}
	decodeResponse(t, rec, &resp)
	if resp.Outgoing.Amount != -5000 || resp.Incoming.Amount != 5000 {
		t.Errorf("amounts = %d/%d, want -5000/5000", resp.Outgoing.Amount, resp.Incoming.Amount)
	}
	if resp.Outgoing.LinkedTransactionID != resp.Incoming.ID {
		t.Error("outgoing leg not linked to incoming")
	}
	if resp.Incoming.LinkedTransactionID != resp.Outgoing.ID {
		t.Error("incoming leg not linked to outgoing")
	}

	// Both legs land in the mirror but a single operation carries the pair.
	rows, err := mirror.QueryTransactions(ctx, testOwner, nil)
	if err != nil {
		t.Fatalf("QueryTransactions failed: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("mirror has %d rows, want 2", len(rows))
	}
	queued, err := q.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(queued) != 1 || queued[0].Type != string(ops.Transfer) {
		t.Fatalf("queue = %d ops, want one transfer op", len(queued))
	}
	payload, err := ops.Decode(ops.Type(queued[0].Type), queued[0].Payload)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	transfer := payload.(*ops.TransferPayload)
	if transfer.ID != resp.Outgoing.ID {
		t.Errorf("payload id = %s, want outgoing leg %s", transfer.ID, resp.Outgoing.ID)
	}
	// Replay needs the incoming placeholder id to drop it once the server
	// mints the authoritative counterpart.
	if transfer.IncomingID != resp.Incoming.ID {
		t.Errorf("payload incoming id = %s, want %s", transfer.IncomingID, resp.Incoming.ID)
	}
}

func TestCreateInstallmentsDeferred(t *testing.T) {
	mirror, q := newTestEnv(t)
	h := NewTransactionsHandler(mirror, q, testOwner)
	ctx := context.Background()

	body := `{"template":{"description":"TV","amount":-30000,"type":"expense","account_id":"srv-a1"},"count":3}`
	req := httptest.NewRequest("POST", "/api/installments", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.CreateInstallments(rec, req)

	if rec.Code != 202 {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	var op models.QueuedOperation
	decodeResponse(t, rec, &op)
	if op.Type != string(ops.CreateInstallmentSet) {
		t.Errorf("op type = %q, want %q", op.Type, ops.CreateInstallmentSet)
	}

	// The occurrences materialize from the server, not locally.
	rows, err := mirror.QueryTransactions(ctx, testOwner, nil)
	if err != nil {
		t.Fatalf("QueryTransactions failed: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("mirror has %d rows, want 0", len(rows))
	}
}

func TestCreateInstallmentsCountTooSmall(t *testing.T) {
	mirror, q := newTestEnv(t)
	h := NewTransactionsHandler(mirror, q, testOwner)

	body := `{"template":{"amount":-100,"account_id":"srv-a1"},"count":1}`
	req := httptest.NewRequest("POST", "/api/installments", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.CreateInstallments(rec, req)

	if rec.Code != 400 {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestCreateRecurringFrequency(t *testing.T) {
	mirror, q := newTestEnv(t)
	h := NewTransactionsHandler(mirror, q, testOwner)

	body := `{"transaction":{"description":"Rent","amount":-120000,"type":"expense","account_id":"srv-a1"},"frequency":"monthly"}`
	req := httptest.NewRequest("POST", "/api/recurring", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.CreateRecurring(rec, req)

	if rec.Code != 201 {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	var created models.Transaction
	decodeResponse(t, rec, &created)
	if !created.Fixed {
		t.Error("recurring transaction not marked fixed")
	}

	req = httptest.NewRequest("POST", "/api/recurring", strings.NewReader(
		`{"transaction":{"amount":-1,"account_id":"srv-a1"},"frequency":"hourly"}`))
	rec = httptest.NewRecorder()
	h.CreateRecurring(rec, req)
	if rec.Code != 400 {
		t.Errorf("status = %d for bad frequency, want 400", rec.Code)
	}
}

func TestFilterFromQuery(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/transactions?from=100&to=200&fixed=true&sort=amount&order=desc&limit=10&offset=5", nil)
	f := filterFromQuery(req)

	if f.From != 100 || f.To != 200 {
		t.Errorf("window = [%d, %d], want [100, 200]", f.From, f.To)
	}
	if !f.FixedOnly || !f.Descending {
		t.Errorf("fixed=%v desc=%v, want both true", f.FixedOnly, f.Descending)
	}
	if f.SortBy != "amount" {
		t.Errorf("sort = %q, want amount", f.SortBy)
	}
	if f.Limit != 10 || f.Offset != 5 {
		t.Errorf("limit/offset = %d/%d, want 10/5", f.Limit, f.Offset)
	}
}
