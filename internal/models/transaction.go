// Package models provides data model definitions for the FinTrack core.
package models

import "time"

// TransactionType classifies a transaction.
type TransactionType string

const (
	TransactionIncome   TransactionType = "income"
	TransactionExpense  TransactionType = "expense"
	TransactionTransfer TransactionType = "transfer"
)

// Transaction represents a financial movement. Amount is a signed integer
// in minor currency units; expenses are negative.
type Transaction struct {
	ID                  EntityID        `db:"id" json:"id"`
	OwnerID             string          `db:"owner_id" json:"owner_id"`
	Description         string          `db:"description" json:"description"`
	Amount              int64           `db:"amount" json:"amount"`
	Type                TransactionType `db:"type" json:"type"`
	Date                int64           `db:"date" json:"date"`
	Fixed               bool            `db:"fixed" json:"fixed"`
	AccountID           EntityID        `db:"account_id" json:"account_id"`
	CategoryID          EntityID        `db:"category_id" json:"category_id"`
	ParentTransactionID EntityID        `db:"parent_transaction_id" json:"parent_transaction_id,omitempty"`
	LinkedTransactionID EntityID        `db:"linked_transaction_id" json:"linked_transaction_id,omitempty"`
	CreatedAt           int64           `db:"created_at" json:"created_at"`
	UpdatedAt           int64           `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for Transaction.
func (Transaction) TableName() string {
	return "transactions"
}

// DateTime returns the Date as time.Time.
func (t *Transaction) DateTime() time.Time {
	return time.Unix(t.Date, 0)
}

// Touch updates the UpdatedAt timestamp.
func (t *Transaction) Touch() {
	t.UpdatedAt = time.Now().Unix()
}
