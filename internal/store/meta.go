// Package store provides the sync metadata key-value store.
package store

import (
	"context"
	"database/sql"
	"strconv"
	"time"
)

// Metadata keys.
const (
	metaLastSyncAt      = "last_sync_at"
	metaLastWindowStart = "last_window_start"
)

// Meta persists small sync bookkeeping values (last pass time, last pull
// window) in the sync_metadata table.
type Meta struct {
	db *sql.DB
}

// NewMeta creates a Meta store over an opened database.
func NewMeta(db *sql.DB) *Meta {
	return &Meta{db: db}
}

// Get returns the value for key. ok is false when the key is unset.
func (m *Meta) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := m.db.QueryRowContext(ctx,
		"SELECT value FROM sync_metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set writes a key-value pair.
func (m *Meta) Set(ctx context.Context, key, value string) error {
	_, err := m.db.ExecContext(ctx, `
	INSERT INTO sync_metadata (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().Unix())
	return err
}

// LastSyncAt returns the time of the last successful pass, zero if none.
func (m *Meta) LastSyncAt(ctx context.Context) (time.Time, error) {
	value, ok, err := m.Get(ctx, metaLastSyncAt)
	if err != nil || !ok {
		return time.Time{}, err
	}
	sec, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, 0), nil
}

// SetLastSyncAt records the time of a successful pass.
func (m *Meta) SetLastSyncAt(ctx context.Context, t time.Time) error {
	return m.Set(ctx, metaLastSyncAt, strconv.FormatInt(t.Unix(), 10))
}

// LastWindowStart returns the start of the last pull window, zero if none.
func (m *Meta) LastWindowStart(ctx context.Context) (int64, error) {
	value, ok, err := m.Get(ctx, metaLastWindowStart)
	if err != nil || !ok {
		return 0, err
	}
	return strconv.ParseInt(value, 10, 64)
}

// SetLastWindowStart records the start of the last pull window.
func (m *Meta) SetLastWindowStart(ctx context.Context, windowStart int64) error {
	return m.Set(ctx, metaLastWindowStart, strconv.FormatInt(windowStart, 10))
}
