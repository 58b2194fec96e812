// Package conflict implements the pre-flight checks run before an edit or
// delete is replayed against the remote service, comparing the operation's
// assumptions against current server state.
package conflict

import (
	"context"
	"encoding/json"
	"sort"

	apperrors "github.com/fintrack-app/fintrack/backend/internal/errors"
	"github.com/fintrack-app/fintrack/backend/internal/logging"
	"github.com/fintrack-app/fintrack/backend/internal/remote"
)

// Outcome is the detector's verdict for an operation.
type Outcome int

const (
	// Proceed means the operation may be dispatched as queued.
	Proceed Outcome = iota

	// Noop means the operation's effect already holds server-side and it
	// should be dequeued without a remote call.
	Noop

	// Warn means a concurrent change was detected; the operation still
	// applies (last write wins) but the operator is notified that server
	// state will be overwritten.
	Warn
)

func (o Outcome) String() string {
	switch o {
	case Noop:
		return "noop"
	case Warn:
		return "warn"
	default:
		return "proceed"
	}
}

// Detector runs pre-flight state comparisons against the remote service.
type Detector struct {
	remote remote.Service
}

// NewDetector creates a Detector over the remote boundary.
func NewDetector(svc remote.Service) *Detector {
	return &Detector{remote: svc}
}

// CheckDelete decides whether a queued delete still has work to do. A
// target already absent server-side is an already-satisfied delete: Noop.
func (d *Detector) CheckDelete(ctx context.Context, table, id string) (Outcome, error) {
	_, err := d.remote.Get(ctx, table, id)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			logging.Debug("Delete target already absent server-side",
				map[string]interface{}{"table": table, "id": id})
			return Noop, nil
		}
		return Proceed, err
	}
	return Proceed, nil
}

// CheckEdit compares the fields the edit assumed unchanged (base) against
// their current server values. An absent target surfaces as a NOT_FOUND
// error so the caller can decide between skip and surface. Divergence
// yields Warn together with the diverged field names: the edit still
// applies, last write wins.
func (d *Detector) CheckEdit(ctx context.Context, table, id string, base map[string]interface{}) (Outcome, []string, error) {
	current, err := d.remote.Get(ctx, table, id)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return Proceed, nil, apperrors.Newf(apperrors.ErrNotFound,
				"edit target %s/%s not found server-side", table, id)
		}
		return Proceed, nil, err
	}

	var diverged []string
	for field, assumed := range base {
		actual, ok := current[field]
		if !ok {
			continue
		}
		if !valueEqual(assumed, actual) {
			diverged = append(diverged, field)
		}
	}
	if len(diverged) == 0 {
		return Proceed, nil, nil
	}

	sort.Strings(diverged)
	logging.Warn("Concurrent edit detected, queued edit overwrites server state",
		map[string]interface{}{"table": table, "id": id, "fields": diverged})
	return Warn, diverged, nil
}

// CheckCreateNamed refuses creation of a uniquely named entity when the
// owner already has a record with that name server-side.
func (d *Detector) CheckCreateNamed(ctx context.Context, table, ownerID, name string) error {
	existing, err := d.remote.QueryByName(ctx, table, ownerID, name)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return apperrors.Newf(apperrors.ErrDuplicateName,
			"%s named %q already exists for owner", table, name)
	}
	return nil
}

// valueEqual compares two JSON-decoded values structurally. Numbers pass
// through a canonical JSON encoding so int64 and float64 renderings of
// the same value compare equal.
func valueEqual(a, b interface{}) bool {
	aj, aerr := json.Marshal(a)
	bj, berr := json.Marshal(b)
	if aerr != nil || berr != nil {
		return false
	}
	return string(aj) == string(bj)
}
