// Package models provides data model definitions for the FinTrack core.
package models

import (
	"encoding/json"
	"time"
)

// Operation statuses. A failed operation stays in the queue so it remains
// visible to the operator; drains skip it.
const (
	OpStatusPending = "pending"
	OpStatusFailed  = "failed"
)

// QueuedOperation is a pending mutation awaiting replay against the remote
// service. Timestamp defines replay order.
type QueuedOperation struct {
	ID            string          `db:"id" json:"id"`
	Type          string          `db:"type" json:"type"`
	Payload       json.RawMessage `db:"payload" json:"payload"`
	Timestamp     int64           `db:"timestamp" json:"timestamp"` // unix milliseconds
	Retries       int             `db:"retries" json:"retries"`
	Status        string          `db:"status" json:"status"`
	FailureReason string          `db:"failure_reason" json:"failure_reason,omitempty"`
	UpdatedAt     int64           `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for QueuedOperation.
func (QueuedOperation) TableName() string {
	return "operation_queue"
}

// Time returns the enqueue Timestamp as time.Time.
func (o *QueuedOperation) Time() time.Time {
	return time.UnixMilli(o.Timestamp)
}
