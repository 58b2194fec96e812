package db

import "testing"

func openMigrated(t *testing.T) *DB {
	t.Helper()
	database, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := NewMigrator(database.DB).Up(); err != nil {
		t.Fatalf("Up failed: %v", err)
	}
	return database
}

func TestMigrateUp(t *testing.T) {
	database := openMigrated(t)

	m := NewMigrator(database.DB)
	version, err := m.CurrentVersion()
	if err != nil {
		t.Fatalf("CurrentVersion failed: %v", err)
	}
	if want := migrations[len(migrations)-1].Version; version != want {
		t.Errorf("version = %d, want %d", version, want)
	}

	// All core tables exist.
	for _, table := range []string{"transactions", "accounts", "categories", "operation_queue", "sync_metadata"} {
		var name string
		err := database.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestMigrateUpIdempotent(t *testing.T) {
	database := openMigrated(t)

	m := NewMigrator(database.DB)
	if err := m.Up(); err != nil {
		t.Fatalf("second Up failed: %v", err)
	}

	applied, err := m.GetAppliedMigrations()
	if err != nil {
		t.Fatalf("GetAppliedMigrations failed: %v", err)
	}
	if len(applied) != len(migrations) {
		t.Errorf("applied %d migrations, want %d", len(applied), len(migrations))
	}
	for _, a := range applied {
		if len(a.Checksum) != 64 {
			t.Errorf("migration V%d checksum length = %d, want 64", a.Version, len(a.Checksum))
		}
	}
}

func TestCurrentVersionEmpty(t *testing.T) {
	database, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory failed: %v", err)
	}
	defer database.Close()

	m := NewMigrator(database.DB)
	if err := m.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	version, err := m.CurrentVersion()
	if err != nil {
		t.Fatalf("CurrentVersion failed: %v", err)
	}
	if version != 0 {
		t.Errorf("fresh database version = %d, want 0", version)
	}
}

func TestQueueStatusConstraint(t *testing.T) {
	database := openMigrated(t)

	_, err := database.Exec(
		`INSERT INTO operation_queue (id, type, payload, timestamp, status, updated_at)
		 VALUES ('op-1', 'create-transaction', '{}', 1, 'bogus', 1)`)
	if err == nil {
		t.Error("status outside pending/failed should violate the check constraint")
	}
}
