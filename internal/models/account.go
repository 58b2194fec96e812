// Package models provides data model definitions for the FinTrack core.
package models

import "time"

// Account represents a money account (wallet, bank, card).
type Account struct {
	ID             EntityID `db:"id" json:"id"`
	OwnerID        string   `db:"owner_id" json:"owner_id"`
	Name           string   `db:"name" json:"name"`
	Type           string   `db:"type" json:"type"`
	OpeningBalance int64    `db:"opening_balance" json:"opening_balance"`
	CreatedAt      int64    `db:"created_at" json:"created_at"`
	UpdatedAt      int64    `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for Account.
func (Account) TableName() string {
	return "accounts"
}

// Touch updates the UpdatedAt timestamp.
func (a *Account) Touch() {
	a.UpdatedAt = time.Now().Unix()
}
