package sync

import (
	"testing"

	"github.com/fintrack-app/fintrack/backend/internal/models"
	"github.com/fintrack-app/fintrack/backend/internal/ops"
)

func TestIdentityMapRecordResolve(t *testing.T) {
	im := NewIdentityMap()
	im.Record(models.PendingID("tok-1"), "srv-1")

	if got := im.Resolve(models.PendingID("tok-1")); got != models.ConfirmedID("srv-1") {
		t.Errorf("Resolve = %s, want srv-1", got)
	}
	if got := im.Resolve(models.PendingID("tok-unknown")); !got.IsPending() {
		t.Errorf("unmapped pending id should pass through, got %s", got)
	}
	if got := im.Resolve(models.ConfirmedID("srv-2")); got != models.ConfirmedID("srv-2") {
		t.Errorf("confirmed id should pass through, got %s", got)
	}
}

func TestIdentityMapIgnoresConfirmedRecord(t *testing.T) {
	im := NewIdentityMap()
	im.Record(models.ConfirmedID("srv-1"), "srv-2")
	im.Record(models.PendingID("tok-1"), "")
	if im.Len() != 0 {
		t.Errorf("Len = %d, want 0", im.Len())
	}
}

func TestIdentityMapResolvePayload(t *testing.T) {
	im := NewIdentityMap()
	im.Record(models.PendingID("acc-tok"), "srv-acc")

	p := &ops.CreateTransactionPayload{Transaction: models.Transaction{
		ID:        models.PendingID("self"),
		AccountID: models.PendingID("acc-tok"),
	}}
	im.ResolvePayload(p)

	if p.Transaction.AccountID != models.ConfirmedID("srv-acc") {
		t.Errorf("account reference not resolved: %s", p.Transaction.AccountID)
	}
}
