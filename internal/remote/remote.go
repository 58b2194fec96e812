// Package remote defines the boundary to the authoritative server. The
// core consumes it as an opaque RPC surface: procedure invocations for
// multi-row mutations, row-level table operations for simple entity kinds,
// and paginated reads for the pull phase. Each call is atomic on its own;
// nothing is atomic across calls.
package remote

import (
	"context"
	"encoding/json"
)

// Procedure names a server-side multi-row mutation.
type Procedure string

const (
	ProcCreateTransaction Procedure = "create_transaction"
	ProcTransfer          Procedure = "create_transfer"
	ProcCreateRecurring   Procedure = "create_recurring"
	ProcCreateInstallment Procedure = "create_installment"
	ProcClearAllData      Procedure = "clear_all_data"
	ProcSignOut           Procedure = "sign_out"
)

// Tables addressed by row-level operations.
const (
	TableTransactions = "transactions"
	TableAccounts     = "accounts"
	TableCategories   = "categories"
)

// Record is the wire shape of a server row.
type Record = map[string]interface{}

// Result is a procedure's success response. ID carries the newly minted
// identifier for creation procedures.
type Result struct {
	ID  string          `json:"id,omitempty"`
	Raw json.RawMessage `json:"raw,omitempty"`
}

// PageRequest describes one page of a bulk read. A response shorter than
// Limit signals end-of-data.
type PageRequest struct {
	Table     string
	OwnerID   string
	Since     int64 // date lower bound, 0 for unbounded
	FixedOnly bool  // recurring templates only
	Limit     int
	Offset    int
}

// Service is the remote service boundary. Implementations translate errors
// into the application error codes the drain loop classifies on:
// REMOTE_UNAVAILABLE for network-class failures, REMOTE_REJECTED for
// validation rejections, NOT_FOUND for missing rows, DUPLICATE_NAME for
// unique-name violations.
type Service interface {
	// Invoke calls a named procedure with a structured payload.
	Invoke(ctx context.Context, proc Procedure, payload interface{}) (*Result, error)

	// Insert creates a row; the result carries the server-minted id.
	Insert(ctx context.Context, table string, record Record) (*Result, error)

	// Update applies field changes to an existing row.
	Update(ctx context.Context, table, id string, updates Record) error

	// Delete removes a row.
	Delete(ctx context.Context, table, id string) error

	// Get fetches a single row, NOT_FOUND when absent.
	Get(ctx context.Context, table, id string) (Record, error)

	// QueryByName fetches the owner's rows matching an exact name, used
	// for duplicate-name preflight on uniquely named entity kinds.
	QueryByName(ctx context.Context, table, ownerID, name string) ([]Record, error)

	// FetchPage reads one page of owner-scoped rows for the pull phase.
	FetchPage(ctx context.Context, req PageRequest) ([]Record, error)
}

// ToRecord converts a typed value to its wire Record form.
func ToRecord(v interface{}) (Record, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// FromRecord converts a wire Record into a typed value.
func FromRecord(rec Record, dest interface{}) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}
