// Package ops defines the closed set of queued operation kinds and their
// typed payloads. Payloads are decoded at the queue boundary so malformed
// data is rejected before it can reach the replay path.
package ops

import (
	"encoding/json"
	"fmt"

	"github.com/fintrack-app/fintrack/backend/internal/models"
)

// Type identifies which remote procedure or table an operation targets.
type Type string

const (
	CreateTransaction      Type = "create-transaction"
	EditTransaction        Type = "edit-transaction"
	DeleteTransaction      Type = "delete-transaction"
	Transfer               Type = "transfer"
	CreateAccount          Type = "create-account"
	EditAccount            Type = "edit-account"
	DeleteAccount          Type = "delete-account"
	CreateCategory         Type = "create-category"
	EditCategory           Type = "edit-category"
	DeleteCategory         Type = "delete-category"
	CreateRecurring        Type = "create-recurring"
	CreateInstallmentSet   Type = "create-installment-set"
	BulkImportTransactions Type = "bulk-import-transactions"
	BulkImportAccounts     Type = "bulk-import-accounts"
	BulkImportCategories   Type = "bulk-import-categories"
	ClearAllData           Type = "clear-all-data"
	SignOut                Type = "sign-out"
)

// ResolveFunc rewrites an identifier: it returns the server-confirmed id
// when a mapping is known and the input unchanged otherwise.
type ResolveFunc func(models.EntityID) models.EntityID

// Payload is the typed body of a queued operation.
type Payload interface {
	OpType() Type

	// ResolveIDs rewrites every identifier-bearing field through resolve.
	ResolveIDs(resolve ResolveFunc)
}

// idKeys is the set of identifier-bearing keys recognized inside an edit's
// updates object.
var idKeys = map[string]bool{
	"id":                    true,
	"account_id":            true,
	"category_id":           true,
	"to_account_id":         true,
	"transaction_id":        true,
	"parent_transaction_id": true,
}

// resolveUpdates rewrites identifier values nested one level inside an
// updates object.
func resolveUpdates(updates map[string]any, resolve ResolveFunc) {
	for k, v := range updates {
		if !idKeys[k] {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		updates[k] = resolve(models.ParseEntityID(s)).String()
	}
}

// resolveTransactionRefs rewrites the foreign references carried by a
// transaction record. The record's own id is left to the caller: creates
// strip it, edits resolve it as the target.
func resolveTransactionRefs(t *models.Transaction, resolve ResolveFunc) {
	t.AccountID = resolve(t.AccountID)
	t.CategoryID = resolve(t.CategoryID)
	t.ParentTransactionID = resolve(t.ParentTransactionID)
	t.LinkedTransactionID = resolve(t.LinkedTransactionID)
}

// Edit is the shared shape of edit operations: a target id, the field
// changes to apply, and a snapshot of the server values the edit assumed
// unchanged when it was queued (used for conflict detection).
type Edit struct {
	ID      models.EntityID `json:"id"`
	OwnerID string          `json:"owner_id"`
	Updates map[string]any  `json:"updates"`
	Base    map[string]any  `json:"base,omitempty"`
}

// ResolveIDs rewrites the target id and any identifier fields inside the
// updates object.
func (e *Edit) ResolveIDs(resolve ResolveFunc) {
	e.ID = resolve(e.ID)
	resolveUpdates(e.Updates, resolve)
}

// Delete is the shared shape of delete operations.
type Delete struct {
	ID      models.EntityID `json:"id"`
	OwnerID string          `json:"owner_id"`
}

// ResolveIDs rewrites the target id.
func (d *Delete) ResolveIDs(resolve ResolveFunc) {
	d.ID = resolve(d.ID)
}

// CreateTransactionPayload creates a single transaction.
type CreateTransactionPayload struct {
	Transaction models.Transaction `json:"transaction"`
}

func (CreateTransactionPayload) OpType() Type { return CreateTransaction }

func (p *CreateTransactionPayload) ResolveIDs(resolve ResolveFunc) {
	resolveTransactionRefs(&p.Transaction, resolve)
}

// EditTransactionPayload applies field changes to an existing transaction.
type EditTransactionPayload struct{ Edit }

func (EditTransactionPayload) OpType() Type { return EditTransaction }

// DeleteTransactionPayload removes a transaction.
type DeleteTransactionPayload struct{ Delete }

func (DeleteTransactionPayload) OpType() Type { return DeleteTransaction }

// TransferPayload creates a linked pair of transactions moving money
// between two accounts. Handled server-side by a single procedure so the
// pair is atomic. IncomingID is the local placeholder of the incoming leg;
// the server mints its own counterpart row, so on success the placeholder
// is dropped from the mirror rather than confirmed.
type TransferPayload struct {
	ID          models.EntityID `json:"id"`
	IncomingID  models.EntityID `json:"incoming_id,omitempty"`
	OwnerID     string          `json:"owner_id"`
	AccountID   models.EntityID `json:"account_id"`
	ToAccountID models.EntityID `json:"to_account_id"`
	Amount      int64           `json:"amount"`
	Description string          `json:"description"`
	Date        int64           `json:"date"`
}

func (TransferPayload) OpType() Type { return Transfer }

func (p *TransferPayload) ResolveIDs(resolve ResolveFunc) {
	p.AccountID = resolve(p.AccountID)
	p.ToAccountID = resolve(p.ToAccountID)
}

// CreateAccountPayload creates an account.
type CreateAccountPayload struct {
	Account models.Account `json:"account"`
}

func (CreateAccountPayload) OpType() Type { return CreateAccount }

func (p *CreateAccountPayload) ResolveIDs(resolve ResolveFunc) {}

// EditAccountPayload applies field changes to an existing account.
type EditAccountPayload struct{ Edit }

func (EditAccountPayload) OpType() Type { return EditAccount }

// DeleteAccountPayload removes an account.
type DeleteAccountPayload struct{ Delete }

func (DeleteAccountPayload) OpType() Type { return DeleteAccount }

// CreateCategoryPayload creates a category.
type CreateCategoryPayload struct {
	Category models.Category `json:"category"`
}

func (CreateCategoryPayload) OpType() Type { return CreateCategory }

func (p *CreateCategoryPayload) ResolveIDs(resolve ResolveFunc) {}

// EditCategoryPayload applies field changes to an existing category.
type EditCategoryPayload struct{ Edit }

func (EditCategoryPayload) OpType() Type { return EditCategory }

// DeleteCategoryPayload removes a category.
type DeleteCategoryPayload struct{ Delete }

func (DeleteCategoryPayload) OpType() Type { return DeleteCategory }

// CreateRecurringPayload creates a recurring transaction template. The
// template itself is not date-bounded; the server materializes occurrences.
type CreateRecurringPayload struct {
	Transaction models.Transaction `json:"transaction"`
	Frequency   string             `json:"frequency"` // monthly, weekly, yearly
}

func (CreateRecurringPayload) OpType() Type { return CreateRecurring }

func (p *CreateRecurringPayload) ResolveIDs(resolve ResolveFunc) {
	resolveTransactionRefs(&p.Transaction, resolve)
}

// CreateInstallmentSetPayload creates Count installment rows derived from
// Template. CreatedIDs accumulates the server ids of rows already created
// so an interrupted replay resumes instead of duplicating them.
type CreateInstallmentSetPayload struct {
	Template   models.Transaction `json:"template"`
	Count      int                `json:"count"`
	CreatedIDs []string           `json:"created_ids"`
}

func (CreateInstallmentSetPayload) OpType() Type { return CreateInstallmentSet }

func (p *CreateInstallmentSetPayload) ResolveIDs(resolve ResolveFunc) {
	resolveTransactionRefs(&p.Template, resolve)
}

// BulkImportTransactionsPayload imports a batch of transactions. CreatedIDs
// checkpoints progress like the installment set.
type BulkImportTransactionsPayload struct {
	Records    []models.Transaction `json:"records"`
	CreatedIDs []string             `json:"created_ids"`
}

func (BulkImportTransactionsPayload) OpType() Type { return BulkImportTransactions }

func (p *BulkImportTransactionsPayload) ResolveIDs(resolve ResolveFunc) {
	for i := range p.Records {
		resolveTransactionRefs(&p.Records[i], resolve)
	}
}

// BulkImportAccountsPayload imports a batch of accounts.
type BulkImportAccountsPayload struct {
	Records    []models.Account `json:"records"`
	CreatedIDs []string         `json:"created_ids"`
}

func (BulkImportAccountsPayload) OpType() Type { return BulkImportAccounts }

func (p *BulkImportAccountsPayload) ResolveIDs(resolve ResolveFunc) {}

// BulkImportCategoriesPayload imports a batch of categories.
type BulkImportCategoriesPayload struct {
	Records    []models.Category `json:"records"`
	CreatedIDs []string          `json:"created_ids"`
}

func (BulkImportCategoriesPayload) OpType() Type { return BulkImportCategories }

func (p *BulkImportCategoriesPayload) ResolveIDs(resolve ResolveFunc) {}

// ClearAllDataPayload wipes all server-side data for the owner.
type ClearAllDataPayload struct {
	OwnerID string `json:"owner_id"`
}

func (ClearAllDataPayload) OpType() Type { return ClearAllData }

func (p *ClearAllDataPayload) ResolveIDs(resolve ResolveFunc) {}

// SignOutPayload ends the owner's remote session.
type SignOutPayload struct {
	OwnerID string `json:"owner_id"`
}

func (SignOutPayload) OpType() Type { return SignOut }

func (p *SignOutPayload) ResolveIDs(resolve ResolveFunc) {}

// Decode unmarshals a raw payload into its typed form. Unknown operation
// types and malformed bodies are rejected here, before replay.
func Decode(t Type, data json.RawMessage) (Payload, error) {
	var p Payload
	switch t {
	case CreateTransaction:
		p = &CreateTransactionPayload{}
	case EditTransaction:
		p = &EditTransactionPayload{}
	case DeleteTransaction:
		p = &DeleteTransactionPayload{}
	case Transfer:
		p = &TransferPayload{}
	case CreateAccount:
		p = &CreateAccountPayload{}
	case EditAccount:
		p = &EditAccountPayload{}
	case DeleteAccount:
		p = &DeleteAccountPayload{}
	case CreateCategory:
		p = &CreateCategoryPayload{}
	case EditCategory:
		p = &EditCategoryPayload{}
	case DeleteCategory:
		p = &DeleteCategoryPayload{}
	case CreateRecurring:
		p = &CreateRecurringPayload{}
	case CreateInstallmentSet:
		p = &CreateInstallmentSetPayload{}
	case BulkImportTransactions:
		p = &BulkImportTransactionsPayload{}
	case BulkImportAccounts:
		p = &BulkImportAccountsPayload{}
	case BulkImportCategories:
		p = &BulkImportCategoriesPayload{}
	case ClearAllData:
		p = &ClearAllDataPayload{}
	case SignOut:
		p = &SignOutPayload{}
	default:
		return nil, fmt.Errorf("unknown operation type %q", t)
	}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("malformed %s payload: %w", t, err)
	}
	return p, nil
}

// Encode marshals a typed payload for storage.
func Encode(p Payload) (json.RawMessage, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", p.OpType(), err)
	}
	return data, nil
}
