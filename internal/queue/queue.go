// Package queue implements the durable operation queue: an ordered,
// at-least-once log of pending mutations that survives process restart and
// is drained against the remote service when connectivity returns.
package queue

import (
	"context"
	"database/sql"
	"time"

	apperrors "github.com/fintrack-app/fintrack/backend/internal/errors"
	"github.com/fintrack-app/fintrack/backend/internal/logging"
	"github.com/fintrack-app/fintrack/backend/internal/models"
	"github.com/fintrack-app/fintrack/backend/internal/ops"
	"github.com/fintrack-app/fintrack/backend/internal/uuid"
)

// DefaultMaxRetries bounds replay attempts before an operation is marked
// terminally failed.
const DefaultMaxRetries = 3

// Queue is the durable operation queue over the operation_queue table.
type Queue struct {
	db *sql.DB
}

// New creates a Queue over an opened database.
func New(db *sql.DB) *Queue {
	return &Queue{db: db}
}

const queueColumns = `id, type, payload, timestamp, retries, status, failure_reason, updated_at`

// Enqueue appends a typed operation. The id and enqueue timestamp are
// assigned here; the timestamp defines replay order.
func (q *Queue) Enqueue(ctx context.Context, payload ops.Payload) (*models.QueuedOperation, error) {
	data, err := ops.Encode(payload)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrMalformedPayload, "failed to encode payload", err)
	}

	now := time.Now()
	op := &models.QueuedOperation{
		ID:        uuid.New(),
		Type:      string(payload.OpType()),
		Payload:   data,
		Timestamp: now.UnixMilli(),
		Retries:   0,
		Status:    models.OpStatusPending,
		UpdatedAt: now.Unix(),
	}

	_, err = q.db.ExecContext(ctx, `
	INSERT INTO operation_queue (`+queueColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		op.ID, op.Type, string(op.Payload), op.Timestamp, op.Retries,
		op.Status, op.FailureReason, op.UpdatedAt)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to enqueue operation", err)
	}

	logging.Debug("Enqueued operation",
		map[string]interface{}{"op_id": op.ID, "type": op.Type})
	return op, nil
}

// DequeueAll returns all pending operations in ascending timestamp order.
// Terminally failed operations are skipped but remain stored. The rowid
// tiebreak keeps replay deterministic for operations enqueued within the
// same millisecond.
func (q *Queue) DequeueAll(ctx context.Context) ([]*models.QueuedOperation, error) {
	rows, err := q.db.QueryContext(ctx, `
	SELECT `+queueColumns+` FROM operation_queue
	WHERE status = ?
	ORDER BY timestamp ASC, rowid ASC`, models.OpStatusPending)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to read queue", err)
	}
	return scanOperations(rows)
}

// List returns every queued operation, including terminally failed ones,
// in timestamp order. Failed operations stay enumerable so they are never
// silently lost.
func (q *Queue) List(ctx context.Context) ([]*models.QueuedOperation, error) {
	rows, err := q.db.QueryContext(ctx, `
	SELECT `+queueColumns+` FROM operation_queue
	ORDER BY timestamp ASC, rowid ASC`)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to read queue", err)
	}
	return scanOperations(rows)
}

// ListFailed returns the terminally failed operations.
func (q *Queue) ListFailed(ctx context.Context) ([]*models.QueuedOperation, error) {
	rows, err := q.db.QueryContext(ctx, `
	SELECT `+queueColumns+` FROM operation_queue
	WHERE status = ?
	ORDER BY timestamp ASC, rowid ASC`, models.OpStatusFailed)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to read queue", err)
	}
	return scanOperations(rows)
}

// MarkSucceeded durably removes a confirmed operation. The operation is
// only considered gone once the delete commits.
func (q *Queue) MarkSucceeded(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, "DELETE FROM operation_queue WHERE id = ?", id)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to remove operation", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to remove operation", err)
	}
	if n == 0 {
		return apperrors.Newf(apperrors.ErrOpNotFound, "operation %s not found", id)
	}
	return nil
}

// MarkRetried persists an updated retry count in place.
func (q *Queue) MarkRetried(ctx context.Context, id string, retries int) error {
	res, err := q.db.ExecContext(ctx,
		"UPDATE operation_queue SET retries = ?, updated_at = ? WHERE id = ?",
		retries, time.Now().Unix(), id)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to update retry count", err)
	}
	return requireRow(res, id)
}

// MarkFailed transitions an operation to terminal failure. It stays in the
// queue, visible to the operator, and is skipped by future drains.
func (q *Queue) MarkFailed(ctx context.Context, id, reason string) error {
	res, err := q.db.ExecContext(ctx,
		"UPDATE operation_queue SET status = ?, failure_reason = ?, updated_at = ? WHERE id = ?",
		models.OpStatusFailed, reason, time.Now().Unix(), id)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to mark operation failed", err)
	}
	if err := requireRow(res, id); err != nil {
		return err
	}
	logging.Warn("Operation marked terminally failed",
		map[string]interface{}{"op_id": id, "reason": reason})
	return nil
}

// UpdateData replaces an operation's payload in place. Multi-step
// operations checkpoint partial progress through this so an interrupted
// replay resumes instead of re-creating confirmed rows.
func (q *Queue) UpdateData(ctx context.Context, id string, payload ops.Payload) error {
	data, err := ops.Encode(payload)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrMalformedPayload, "failed to encode payload", err)
	}
	res, err := q.db.ExecContext(ctx,
		"UPDATE operation_queue SET payload = ?, updated_at = ? WHERE id = ?",
		string(data), time.Now().Unix(), id)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to update payload", err)
	}
	return requireRow(res, id)
}

// RetryFailed resets terminally failed operations to pending with a fresh
// retry budget. Invoked from the operator-facing queue view.
func (q *Queue) RetryFailed(ctx context.Context) (int, error) {
	res, err := q.db.ExecContext(ctx,
		"UPDATE operation_queue SET status = ?, retries = 0, failure_reason = '', updated_at = ? WHERE status = ?",
		models.OpStatusPending, time.Now().Unix(), models.OpStatusFailed)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrDatabase, "failed to reset failed operations", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrDatabase, "failed to reset failed operations", err)
	}
	if n > 0 {
		logging.Info("Reset failed operations for retry", map[string]interface{}{"count": n})
	}
	return int(n), nil
}

// Size returns the number of stored operations, terminal ones included.
func (q *Queue) Size(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM operation_queue").Scan(&n)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrDatabase, "failed to count queue", err)
	}
	return n, nil
}

// Clear removes all operations. Used by clear-all-data and sign-out.
func (q *Queue) Clear(ctx context.Context) error {
	if _, err := q.db.ExecContext(ctx, "DELETE FROM operation_queue"); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to clear queue", err)
	}
	logging.Info("Operation queue cleared")
	return nil
}

// DecodePayload decodes an operation's stored payload into its typed form.
func DecodePayload(op *models.QueuedOperation) (ops.Payload, error) {
	p, err := ops.Decode(ops.Type(op.Type), op.Payload)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrMalformedPayload, "failed to decode payload", err)
	}
	return p, nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to check affected rows", err)
	}
	if n == 0 {
		return apperrors.Newf(apperrors.ErrOpNotFound, "operation %s not found", id)
	}
	return nil
}

func scanOperations(rows *sql.Rows) ([]*models.QueuedOperation, error) {
	defer rows.Close()
	var result []*models.QueuedOperation
	for rows.Next() {
		var op models.QueuedOperation
		var payload string
		if err := rows.Scan(&op.ID, &op.Type, &payload, &op.Timestamp,
			&op.Retries, &op.Status, &op.FailureReason, &op.UpdatedAt); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to scan operation", err)
		}
		op.Payload = []byte(payload)
		result = append(result, &op)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to read queue", err)
	}
	return result, nil
}
