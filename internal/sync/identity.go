// Package sync implements the offline-first synchronization core: the
// orchestrator that drains the operation queue against the remote service
// and refreshes the local mirror from server state.
package sync

import (
	"github.com/fintrack-app/fintrack/backend/internal/models"
	"github.com/fintrack-app/fintrack/backend/internal/ops"
)

// IdentityMap maps locally minted pending ids to server-confirmed ids. It
// is scoped to a single sync pass: built fresh at pass start, populated as
// creation operations succeed, consulted to rewrite dependent operations'
// references before dispatch, and discarded at pass end. Strict replay
// order guarantees a dependent operation only ever needs ids minted
// earlier in the same pass.
type IdentityMap struct {
	byToken map[string]string
}

// NewIdentityMap creates an empty pass-scoped map.
func NewIdentityMap() *IdentityMap {
	return &IdentityMap{byToken: make(map[string]string)}
}

// Record registers the server-confirmed id for a pending id. Confirmed
// inputs are ignored.
func (im *IdentityMap) Record(pending models.EntityID, serverID string) {
	token, ok := pending.Token()
	if !ok || serverID == "" {
		return
	}
	im.byToken[token] = serverID
}

// Resolve returns the confirmed id when a mapping is known, the input
// unchanged otherwise. Confirmed ids pass through untouched.
func (im *IdentityMap) Resolve(id models.EntityID) models.EntityID {
	token, ok := id.Token()
	if !ok {
		return id
	}
	if serverID, ok := im.byToken[token]; ok {
		return models.ConfirmedID(serverID)
	}
	return id
}

// ResolvePayload rewrites every identifier-bearing field of a payload.
func (im *IdentityMap) ResolvePayload(p ops.Payload) {
	p.ResolveIDs(im.Resolve)
}

// Len returns the number of recorded mappings.
func (im *IdentityMap) Len() int {
	return len(im.byToken)
}
