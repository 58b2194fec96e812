// Package store provides storage quota management for the local mirror.
package store

import (
	"context"
	"time"

	apperrors "github.com/fintrack-app/fintrack/backend/internal/errors"
	"github.com/fintrack-app/fintrack/backend/internal/logging"
	"github.com/fintrack-app/fintrack/backend/internal/models"
)

// QuotaConfig bounds the mirror's storage footprint. When usage crosses the
// high-water mark, transactions older than the retention window are evicted
// until usage falls below the low-water mark.
type QuotaConfig struct {
	MaxBytes        int64   // 0 disables quota checks
	HighWater       float64 // fraction of MaxBytes that triggers eviction
	LowWater        float64 // eviction target fraction
	RetentionMonths int     // records younger than this are never evicted
}

func (q QuotaConfig) withDefaults() QuotaConfig {
	if q.HighWater <= 0 {
		q.HighWater = 0.85
	}
	if q.LowWater <= 0 {
		q.LowWater = 0.60
	}
	if q.RetentionMonths <= 0 {
		q.RetentionMonths = 24
	}
	return q
}

// evictBatchSize bounds a single eviction delete so the write lock is not
// held across the whole backlog.
const evictBatchSize = 500

// fileUsage reports the database footprint via SQLite page accounting.
func (m *Mirror) fileUsage() (int64, error) {
	var pageCount, pageSize int64
	if err := m.db.QueryRow("PRAGMA page_count").Scan(&pageCount); err != nil {
		return 0, err
	}
	if err := m.db.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		return 0, err
	}
	return pageCount * pageSize, nil
}

// Usage returns the current storage footprint in bytes.
func (m *Mirror) Usage() (int64, error) {
	return m.usage()
}

// ensureCapacity runs before every bulk write. Near the high-water mark it
// evicts confirmed transactions older than the retention window, oldest
// first, until usage drops below the low-water mark. If eviction cannot
// free enough space a STORAGE_EXHAUSTED error is returned; a raw
// out-of-space failure never reaches the caller from here.
func (m *Mirror) ensureCapacity(ctx context.Context) error {
	if m.quota.MaxBytes <= 0 {
		return nil
	}

	usage, err := m.usage()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to measure storage usage", err)
	}
	high := int64(float64(m.quota.MaxBytes) * m.quota.HighWater)
	if usage < high {
		return nil
	}

	low := int64(float64(m.quota.MaxBytes) * m.quota.LowWater)
	cutoff := time.Now().AddDate(0, -m.quota.RetentionMonths, 0).Unix()
	evicted := 0

	for usage >= low {
		n, err := m.evictOldest(ctx, cutoff)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrDatabase, "eviction failed", err)
		}
		if n == 0 {
			break
		}
		evicted += n

		usage, err = m.usage()
		if err != nil {
			return apperrors.Wrap(apperrors.ErrDatabase, "failed to measure storage usage", err)
		}
	}

	if evicted > 0 {
		logging.Warn("Evicted aged mirror records to reclaim storage",
			map[string]interface{}{"evicted": evicted, "usage_bytes": usage})
	}

	if usage >= high {
		return apperrors.Newf(apperrors.ErrStorageExhausted,
			"mirror storage exhausted: %d of %d bytes used after eviction", usage, m.quota.MaxBytes)
	}
	return nil
}

// evictOldest deletes one batch of confirmed, non-template transactions
// older than cutoff. Pending-id records are unconfirmed local writes and
// are never evicted.
func (m *Mirror) evictOldest(ctx context.Context, cutoff int64) (int, error) {
	res, err := m.db.ExecContext(ctx, `
	DELETE FROM transactions WHERE id IN (
		SELECT id FROM transactions
		WHERE date < ? AND fixed = 0 AND id NOT LIKE ?
		ORDER BY date ASC
		LIMIT ?
	)`, cutoff, models.PendingLikePattern, evictBatchSize)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
