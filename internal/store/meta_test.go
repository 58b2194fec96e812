package store

import (
	"context"
	"testing"
	"time"

	"github.com/fintrack-app/fintrack/backend/internal/db"
)

func newTestMeta(t *testing.T) *Meta {
	t.Helper()
	database, err := db.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.NewMigrator(database.DB).Up(); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	return NewMeta(database.DB)
}

func TestMetaGetSet(t *testing.T) {
	m := newTestMeta(t)
	ctx := context.Background()

	_, ok, err := m.Get(ctx, "missing")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ok {
		t.Error("unset key should report ok=false")
	}

	if err := m.Set(ctx, "k", "v1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := m.Set(ctx, "k", "v2"); err != nil {
		t.Fatalf("second Set failed: %v", err)
	}
	value, ok, err := m.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("Get failed: %v ok=%v", err, ok)
	}
	if value != "v2" {
		t.Errorf("value = %q, want v2", value)
	}
}

func TestMetaLastSyncAt(t *testing.T) {
	m := newTestMeta(t)
	ctx := context.Background()

	zero, err := m.LastSyncAt(ctx)
	if err != nil {
		t.Fatalf("LastSyncAt failed: %v", err)
	}
	if !zero.IsZero() {
		t.Errorf("unset last sync should be zero, got %v", zero)
	}

	at := time.Unix(1700000000, 0)
	if err := m.SetLastSyncAt(ctx, at); err != nil {
		t.Fatalf("SetLastSyncAt failed: %v", err)
	}
	got, err := m.LastSyncAt(ctx)
	if err != nil {
		t.Fatalf("LastSyncAt failed: %v", err)
	}
	if !got.Equal(at) {
		t.Errorf("last sync = %v, want %v", got, at)
	}
}

func TestMetaLastWindowStart(t *testing.T) {
	m := newTestMeta(t)
	ctx := context.Background()

	start, err := m.LastWindowStart(ctx)
	if err != nil {
		t.Fatalf("LastWindowStart failed: %v", err)
	}
	if start != 0 {
		t.Errorf("unset window start = %d, want 0", start)
	}

	if err := m.SetLastWindowStart(ctx, 1690000000); err != nil {
		t.Fatalf("SetLastWindowStart failed: %v", err)
	}
	start, err = m.LastWindowStart(ctx)
	if err != nil {
		t.Fatalf("LastWindowStart failed: %v", err)
	}
	if start != 1690000000 {
		t.Errorf("window start = %d", start)
	}
}
