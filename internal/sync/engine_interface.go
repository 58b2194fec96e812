package sync

import (
	"context"
	"time"
)

// Orchestrator defines the interface for sync pass execution.
// This interface allows for mocking in tests and alternative implementations.
type Orchestrator interface {
	// SyncAll performs one full synchronization pass: drain then pull.
	// Returns the pass result with statistics or an error if the pass fails.
	SyncAll(ctx context.Context) (*Result, error)

	// SetEventHandler sets the event handler for sync notifications.
	SetEventHandler(h EventHandler)

	// SetOnline records the connectivity signal.
	SetOnline(online bool)

	// IsOnline reports the last connectivity signal.
	IsOnline() bool

	// State returns the engine's current lifecycle position.
	State() State

	// LastSync returns the timestamp of the last successful pass.
	LastSync() time.Time

	// LastError returns the last pass-level error.
	LastError() error

	// PendingOps returns the number of operations waiting to be replayed.
	PendingOps(ctx context.Context) (int, error)
}

var _ Orchestrator = (*Engine)(nil)
