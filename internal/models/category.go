// Package models provides data model definitions for the FinTrack core.
package models

import "time"

// Category represents a spending or income category.
type Category struct {
	ID        EntityID `db:"id" json:"id"`
	OwnerID   string   `db:"owner_id" json:"owner_id"`
	Name      string   `db:"name" json:"name"`
	Kind      string   `db:"kind" json:"kind"` // income, expense
	CreatedAt int64    `db:"created_at" json:"created_at"`
	UpdatedAt int64    `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for Category.
func (Category) TableName() string {
	return "categories"
}

// Touch updates the UpdatedAt timestamp.
func (c *Category) Touch() {
	c.UpdatedAt = time.Now().Unix()
}
