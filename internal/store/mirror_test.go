package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/fintrack-app/fintrack/backend/internal/db"
	"github.com/fintrack-app/fintrack/backend/internal/models"
)

const testOwner = "owner-1"

func newTestMirror(t *testing.T) *Mirror {
	t.Helper()
	database, err := db.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.NewMigrator(database.DB).Up(); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	return NewMirror(database.DB, QuotaConfig{})
}

func tx(id models.EntityID, date, amount int64) *models.Transaction {
	return &models.Transaction{
		ID:      id,
		OwnerID: testOwner,
		Amount:  amount,
		Type:    models.TransactionExpense,
		Date:    date,
	}
}

func TestUpsertAndQueryTransactions(t *testing.T) {
	m := newTestMirror(t)
	ctx := context.Background()

	records := []*models.Transaction{
		tx(models.ConfirmedID("t1"), 100, -500),
		tx(models.ConfirmedID("t2"), 200, -300),
	}
	if err := m.UpsertTransactions(ctx, records); err != nil {
		t.Fatalf("UpsertTransactions failed: %v", err)
	}

	got, err := m.QueryTransactions(ctx, testOwner, nil)
	if err != nil {
		t.Fatalf("QueryTransactions failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}

	// Upsert with the same id replaces the row.
	records[0].Amount = -900
	if err := m.UpsertTransactions(ctx, records[:1]); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	r, err := m.GetTransaction(ctx, models.ConfirmedID("t1"))
	if err != nil {
		t.Fatalf("GetTransaction failed: %v", err)
	}
	if r.Amount != -900 {
		t.Errorf("amount = %d, want -900", r.Amount)
	}
}

func TestQueryTransactionsFilter(t *testing.T) {
	m := newTestMirror(t)
	ctx := context.Background()

	records := []*models.Transaction{
		tx(models.ConfirmedID("t1"), 100, -100),
		tx(models.ConfirmedID("t2"), 200, -400),
		tx(models.ConfirmedID("t3"), 300, -200),
	}
	records[2].Fixed = true
	if err := m.UpsertTransactions(ctx, records); err != nil {
		t.Fatalf("UpsertTransactions failed: %v", err)
	}

	// Date bounds are inclusive.
	got, err := m.QueryTransactions(ctx, testOwner, &TransactionFilter{From: 100, To: 200})
	if err != nil {
		t.Fatalf("QueryTransactions failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("windowed query = %d records, want 2", len(got))
	}

	got, _ = m.QueryTransactions(ctx, testOwner, &TransactionFilter{FixedOnly: true})
	if len(got) != 1 || got[0].ID != models.ConfirmedID("t3") {
		t.Errorf("fixed-only query = %+v", got)
	}

	got, _ = m.QueryTransactions(ctx, testOwner, &TransactionFilter{SortBy: SortByAmount})
	if len(got) != 3 || got[0].ID != models.ConfirmedID("t2") {
		t.Errorf("amount sort: first = %v", got[0].ID)
	}

	got, _ = m.QueryTransactions(ctx, testOwner, &TransactionFilter{SortBy: SortByDate, Descending: true, Limit: 1})
	if len(got) != 1 || got[0].ID != models.ConfirmedID("t3") {
		t.Errorf("descending date with limit: got %+v", got)
	}

	got, _ = m.QueryTransactions(ctx, testOwner, &TransactionFilter{Offset: 5})
	if len(got) != 0 {
		t.Errorf("offset past the end should return nothing, got %d", len(got))
	}
}

func TestReconcileTransactions(t *testing.T) {
	m := newTestMirror(t)
	ctx := context.Background()

	local := []*models.Transaction{
		tx(models.ConfirmedID("in-window-kept"), 1000, -100),
		tx(models.ConfirmedID("in-window-gone"), 1100, -100),
		tx(models.ConfirmedID("pre-window"), 500, -100),
		tx(models.PendingID("local-only"), 1200, -100),
	}
	if err := m.UpsertTransactions(ctx, local); err != nil {
		t.Fatalf("UpsertTransactions failed: %v", err)
	}

	server := []*models.Transaction{
		tx(models.ConfirmedID("in-window-kept"), 1000, -100),
		tx(models.ConfirmedID("new-from-server"), 1300, -100),
	}
	if err := m.ReconcileTransactions(ctx, testOwner, server, 1000); err != nil {
		t.Fatalf("ReconcileTransactions failed: %v", err)
	}

	got, _ := m.QueryTransactions(ctx, testOwner, nil)
	ids := make(map[string]bool)
	for _, r := range got {
		ids[r.ID.String()] = true
	}

	// Confirmed, inside the window, absent from the server: evicted.
	if ids["in-window-gone"] {
		t.Error("server-deleted record should be evicted")
	}
	// Outside the window the server said nothing; keep.
	if !ids["pre-window"] {
		t.Error("pre-window record should survive")
	}
	// Pending rows are local writes awaiting push; keep.
	if !ids["temp-local-only"] {
		t.Error("pending record should survive")
	}
	if !ids["in-window-kept"] || !ids["new-from-server"] {
		t.Errorf("server records missing: %v", ids)
	}

	// Running the same reconcile again must not change the mirror.
	if err := m.ReconcileTransactions(ctx, testOwner, server, 1000); err != nil {
		t.Fatalf("second ReconcileTransactions failed: %v", err)
	}
	again, _ := m.QueryTransactions(ctx, testOwner, nil)
	if len(again) != len(got) {
		t.Fatalf("second reconcile changed row count: %d -> %d", len(got), len(again))
	}
	for _, r := range again {
		if !ids[r.ID.String()] {
			t.Errorf("second reconcile introduced %s", r.ID)
		}
	}
}

func TestCollectStaleIDsPropagatesScanError(t *testing.T) {
	m := newTestMirror(t)

	// NULL cannot scan into a string; the error must surface instead of
	// silently skipping an eviction candidate.
	rows, err := m.db.Query("SELECT NULL")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if _, err := collectStaleIDs(rows, nil); err == nil {
		t.Error("scan error was swallowed")
	}
}

func TestReconcileFixedTransactions(t *testing.T) {
	m := newTestMirror(t)
	ctx := context.Background()

	gone := tx(models.ConfirmedID("tpl-gone"), 100, -100)
	gone.Fixed = true
	kept := tx(models.ConfirmedID("tpl-kept"), 100, -100)
	kept.Fixed = true
	ordinary := tx(models.ConfirmedID("not-a-template"), 100, -100)
	if err := m.UpsertTransactions(ctx, []*models.Transaction{gone, kept, ordinary}); err != nil {
		t.Fatalf("UpsertTransactions failed: %v", err)
	}

	if err := m.ReconcileFixedTransactions(ctx, testOwner, []*models.Transaction{kept}); err != nil {
		t.Fatalf("ReconcileFixedTransactions failed: %v", err)
	}

	got, _ := m.QueryTransactions(ctx, testOwner, nil)
	ids := make(map[string]bool)
	for _, r := range got {
		ids[r.ID.String()] = true
	}
	if ids["tpl-gone"] {
		t.Error("template absent from server should be evicted")
	}
	if !ids["tpl-kept"] || !ids["not-a-template"] {
		t.Errorf("records missing after template reconcile: %v", ids)
	}
}

func TestReconcileAccounts(t *testing.T) {
	m := newTestMirror(t)
	ctx := context.Background()

	local := []*models.Account{
		{ID: models.ConfirmedID("a1"), OwnerID: testOwner, Name: "Checking"},
		{ID: models.ConfirmedID("a2"), OwnerID: testOwner, Name: "Old"},
		{ID: models.PendingID("new-local"), OwnerID: testOwner, Name: "Savings"},
	}
	if err := m.UpsertAccounts(ctx, local); err != nil {
		t.Fatalf("UpsertAccounts failed: %v", err)
	}

	server := []*models.Account{
		{ID: models.ConfirmedID("a1"), OwnerID: testOwner, Name: "Checking"},
	}
	if err := m.ReconcileAccounts(ctx, testOwner, server); err != nil {
		t.Fatalf("ReconcileAccounts failed: %v", err)
	}

	got, _ := m.QueryAccounts(ctx, testOwner)
	if len(got) != 2 {
		t.Fatalf("got %d accounts, want 2 (a1 and the pending one)", len(got))
	}
	for _, a := range got {
		if a.ID == models.ConfirmedID("a2") {
			t.Error("server-deleted account should be evicted")
		}
	}
}

func TestConfirmTransactionID(t *testing.T) {
	m := newTestMirror(t)
	ctx := context.Background()

	parent := tx(models.PendingID("tok-parent"), 100, -100)
	child := tx(models.ConfirmedID("child"), 200, -100)
	child.ParentTransactionID = models.PendingID("tok-parent")
	linked := tx(models.ConfirmedID("pair"), 300, 100)
	linked.LinkedTransactionID = models.PendingID("tok-parent")
	if err := m.UpsertTransactions(ctx, []*models.Transaction{parent, child, linked}); err != nil {
		t.Fatalf("UpsertTransactions failed: %v", err)
	}

	if err := m.ConfirmTransactionID(ctx, models.PendingID("tok-parent"), "srv-parent"); err != nil {
		t.Fatalf("ConfirmTransactionID failed: %v", err)
	}

	r, err := m.GetTransaction(ctx, models.ConfirmedID("srv-parent"))
	if err != nil {
		t.Fatalf("confirmed row not found: %v", err)
	}
	if r.ID != models.ConfirmedID("srv-parent") {
		t.Errorf("id = %s", r.ID)
	}

	c, _ := m.GetTransaction(ctx, models.ConfirmedID("child"))
	if c.ParentTransactionID != models.ConfirmedID("srv-parent") {
		t.Errorf("parent back-reference not rewritten: %s", c.ParentTransactionID)
	}
	l, _ := m.GetTransaction(ctx, models.ConfirmedID("pair"))
	if l.LinkedTransactionID != models.ConfirmedID("srv-parent") {
		t.Errorf("linked back-reference not rewritten: %s", l.LinkedTransactionID)
	}
}

func TestConfirmAccountID(t *testing.T) {
	m := newTestMirror(t)
	ctx := context.Background()

	if err := m.UpsertAccounts(ctx, []*models.Account{
		{ID: models.PendingID("tok-acc"), OwnerID: testOwner, Name: "Checking"},
	}); err != nil {
		t.Fatalf("UpsertAccounts failed: %v", err)
	}
	spend := tx(models.ConfirmedID("t1"), 100, -100)
	spend.AccountID = models.PendingID("tok-acc")
	if err := m.UpsertTransactions(ctx, []*models.Transaction{spend}); err != nil {
		t.Fatalf("UpsertTransactions failed: %v", err)
	}

	if err := m.ConfirmAccountID(ctx, models.PendingID("tok-acc"), "srv-acc"); err != nil {
		t.Fatalf("ConfirmAccountID failed: %v", err)
	}

	accounts, _ := m.QueryAccounts(ctx, testOwner)
	if len(accounts) != 1 || accounts[0].ID != models.ConfirmedID("srv-acc") {
		t.Errorf("account id not rewritten: %+v", accounts)
	}
	r, _ := m.GetTransaction(ctx, models.ConfirmedID("t1"))
	if r.AccountID != models.ConfirmedID("srv-acc") {
		t.Errorf("transaction account reference not rewritten: %s", r.AccountID)
	}
}

func TestGetTransactionNotFound(t *testing.T) {
	m := newTestMirror(t)
	_, err := m.GetTransaction(context.Background(), models.ConfirmedID("nope"))
	if err != sql.ErrNoRows {
		t.Errorf("error = %v, want sql.ErrNoRows", err)
	}
}

func TestPurge(t *testing.T) {
	m := newTestMirror(t)
	ctx := context.Background()

	m.UpsertTransactions(ctx, []*models.Transaction{tx(models.ConfirmedID("t1"), 100, -100)})
	m.UpsertAccounts(ctx, []*models.Account{{ID: models.ConfirmedID("a1"), OwnerID: testOwner, Name: "A"}})
	m.UpsertCategories(ctx, []*models.Category{{ID: models.ConfirmedID("c1"), OwnerID: testOwner, Name: "Food", Kind: "expense"}})

	other := tx(models.ConfirmedID("t-other"), 100, -100)
	other.OwnerID = "owner-2"
	m.UpsertTransactions(ctx, []*models.Transaction{other})

	if err := m.Purge(ctx, testOwner); err != nil {
		t.Fatalf("Purge failed: %v", err)
	}

	got, _ := m.QueryTransactions(ctx, testOwner, nil)
	if len(got) != 0 {
		t.Errorf("transactions not purged: %d left", len(got))
	}
	accounts, _ := m.QueryAccounts(ctx, testOwner)
	if len(accounts) != 0 {
		t.Errorf("accounts not purged")
	}
	// Other owners are untouched.
	kept, _ := m.QueryTransactions(ctx, "owner-2", nil)
	if len(kept) != 1 {
		t.Errorf("purge crossed owner boundary")
	}
}
