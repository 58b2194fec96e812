// Package models provides data model definitions for the FinTrack core.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// tempPrefix is the reserved marker for locally minted identifiers. It only
// appears in the stored/wire form of an EntityID; code never matches on it
// directly.
const tempPrefix = "temp-"

// PendingLikePattern matches the stored form of pending ids in SQL LIKE
// clauses, for storage-layer filters that must exclude unconfirmed rows.
const PendingLikePattern = tempPrefix + "%"

// EntityID identifies a mirror entity. It is either confirmed (assigned by
// the server) or pending (minted locally for a record the server has not
// acknowledged yet). A pending id must never reach the remote service as an
// existing-record identifier.
type EntityID struct {
	value   string
	pending bool
}

// ConfirmedID returns an EntityID for a server-assigned identifier.
func ConfirmedID(serverID string) EntityID {
	return EntityID{value: serverID}
}

// PendingID returns an EntityID for a locally minted token.
func PendingID(token string) EntityID {
	return EntityID{value: token, pending: true}
}

// ParseEntityID reads the stored form of an id. Values carrying the
// reserved local marker parse as pending.
func ParseEntityID(s string) EntityID {
	if strings.HasPrefix(s, tempPrefix) {
		return EntityID{value: strings.TrimPrefix(s, tempPrefix), pending: true}
	}
	return EntityID{value: s}
}

// IsPending reports whether the id is still unconfirmed.
func (id EntityID) IsPending() bool {
	return id.pending
}

// IsZero reports whether the id is unset.
func (id EntityID) IsZero() bool {
	return id.value == ""
}

// ServerID returns the confirmed identifier. ok is false for pending or
// unset ids.
func (id EntityID) ServerID() (string, bool) {
	if id.pending || id.value == "" {
		return "", false
	}
	return id.value, true
}

// Token returns the local token of a pending id. ok is false for confirmed
// ids.
func (id EntityID) Token() (string, bool) {
	if !id.pending {
		return "", false
	}
	return id.value, true
}

// String returns the stored form: the server id, or the token behind the
// reserved local marker.
func (id EntityID) String() string {
	if id.pending {
		return tempPrefix + id.value
	}
	return id.value
}

// Value implements driver.Valuer.
func (id EntityID) Value() (driver.Value, error) {
	return id.String(), nil
}

// Scan implements sql.Scanner.
func (id *EntityID) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*id = EntityID{}
	case string:
		*id = ParseEntityID(v)
	case []byte:
		*id = ParseEntityID(string(v))
	default:
		return fmt.Errorf("cannot scan %T into EntityID", value)
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (id EntityID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *EntityID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*id = ParseEntityID(s)
	return nil
}
