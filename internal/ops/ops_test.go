package ops

import (
	"encoding/json"
	"testing"

	"github.com/fintrack-app/fintrack/backend/internal/models"
)

// mapResolver resolves ids from a fixed token-to-server map.
func mapResolver(mapping map[string]string) ResolveFunc {
	return func(id models.EntityID) models.EntityID {
		tok, ok := id.Token()
		if !ok {
			return id
		}
		if sid, found := mapping[tok]; found {
			return models.ConfirmedID(sid)
		}
		return id
	}
}

func TestDecodeKnownTypes(t *testing.T) {
	tests := []struct {
		opType Type
		body   string
	}{
		{CreateTransaction, `{"transaction":{"id":"temp-a","amount":-500}}`},
		{EditTransaction, `{"id":"srv-1","updates":{"amount":-700}}`},
		{DeleteAccount, `{"id":"srv-2","owner_id":"u1"}`},
		{Transfer, `{"id":"temp-t","account_id":"srv-a","to_account_id":"srv-b","amount":100}`},
		{CreateInstallmentSet, `{"template":{"id":"temp-x"},"count":3}`},
		{ClearAllData, `{"owner_id":"u1"}`},
	}

	for _, tt := range tests {
		t.Run(string(tt.opType), func(t *testing.T) {
			p, err := Decode(tt.opType, json.RawMessage(tt.body))
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if p.OpType() != tt.opType {
				t.Errorf("OpType() = %s, want %s", p.OpType(), tt.opType)
			}
		})
	}
}

func TestDecodeUnknownType(t *testing.T) {
	if _, err := Decode(Type("reticulate-splines"), json.RawMessage(`{}`)); err == nil {
		t.Error("unknown operation type should fail to decode")
	}
}

func TestDecodeMalformedBody(t *testing.T) {
	if _, err := Decode(CreateTransaction, json.RawMessage(`{not json`)); err == nil {
		t.Error("malformed body should fail to decode")
	}
}

func TestEditResolveIDs(t *testing.T) {
	edit := &EditTransactionPayload{Edit: Edit{
		ID: models.PendingID("tok-1"),
		Updates: map[string]any{
			"account_id":  "temp-tok-2",
			"description": "groceries",
			"amount":      float64(-500),
		},
	}}

	edit.ResolveIDs(mapResolver(map[string]string{
		"tok-1": "srv-1",
		"tok-2": "srv-2",
	}))

	if edit.ID.IsPending() {
		t.Error("target id should resolve to confirmed")
	}
	if got := edit.Updates["account_id"]; got != "srv-2" {
		t.Errorf("account_id update = %v, want srv-2", got)
	}
	if got := edit.Updates["description"]; got != "groceries" {
		t.Errorf("non-id update should be untouched, got %v", got)
	}
}

func TestEditResolveIDsUnmapped(t *testing.T) {
	edit := &EditTransactionPayload{Edit: Edit{
		ID:      models.PendingID("unknown"),
		Updates: map[string]any{"category_id": "temp-also-unknown"},
	}}

	edit.ResolveIDs(mapResolver(nil))

	if !edit.ID.IsPending() {
		t.Error("unmapped id should stay pending")
	}
	if got := edit.Updates["category_id"]; got != "temp-also-unknown" {
		t.Errorf("unmapped update id should be unchanged, got %v", got)
	}
}

func TestCreateTransactionResolveIDs(t *testing.T) {
	p := &CreateTransactionPayload{Transaction: models.Transaction{
		ID:         models.PendingID("self"),
		AccountID:  models.PendingID("acc"),
		CategoryID: models.ConfirmedID("cat-1"),
	}}

	p.ResolveIDs(mapResolver(map[string]string{"acc": "srv-acc", "self": "srv-self"}))

	if p.Transaction.AccountID != models.ConfirmedID("srv-acc") {
		t.Errorf("account ref not resolved: %s", p.Transaction.AccountID)
	}
	// The record's own id is the create target, not a reference.
	if !p.Transaction.ID.IsPending() {
		t.Error("create target id should not be rewritten")
	}
	if p.Transaction.CategoryID != models.ConfirmedID("cat-1") {
		t.Error("confirmed ref should pass through unchanged")
	}
}

func TestTransferResolveIDs(t *testing.T) {
	p := &TransferPayload{
		IncomingID:  models.PendingID("in"),
		AccountID:   models.PendingID("src"),
		ToAccountID: models.PendingID("dst"),
	}
	p.ResolveIDs(mapResolver(map[string]string{"src": "srv-src", "dst": "srv-dst", "in": "srv-in"}))

	if p.AccountID != models.ConfirmedID("srv-src") || p.ToAccountID != models.ConfirmedID("srv-dst") {
		t.Errorf("transfer refs not resolved: %s -> %s", p.AccountID, p.ToAccountID)
	}
	// The incoming placeholder is a local row pointer, not a server ref.
	if p.IncomingID != models.PendingID("in") {
		t.Errorf("incoming placeholder rewritten to %s", p.IncomingID)
	}
}

func TestInstallmentCheckpointRoundTrip(t *testing.T) {
	p := &CreateInstallmentSetPayload{
		Template:   models.Transaction{ID: models.PendingID("tpl"), Amount: -1200},
		Count:      4,
		CreatedIDs: []string{"srv-1", "srv-2"},
	}

	data, err := Encode(p)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decoded, err := Decode(CreateInstallmentSet, data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	got := decoded.(*CreateInstallmentSetPayload)
	if len(got.CreatedIDs) != 2 || got.CreatedIDs[1] != "srv-2" {
		t.Errorf("checkpoint lost: %v", got.CreatedIDs)
	}
	if got.Count != 4 {
		t.Errorf("Count = %d, want 4", got.Count)
	}
}

func TestBulkImportResolveIDs(t *testing.T) {
	p := &BulkImportTransactionsPayload{Records: []models.Transaction{
		{ID: models.PendingID("r1"), AccountID: models.PendingID("acc")},
		{ID: models.PendingID("r2"), AccountID: models.PendingID("acc")},
	}}

	p.ResolveIDs(mapResolver(map[string]string{"acc": "srv-acc"}))

	for i, rec := range p.Records {
		if rec.AccountID != models.ConfirmedID("srv-acc") {
			t.Errorf("record %d account ref not resolved: %s", i, rec.AccountID)
		}
	}
}
