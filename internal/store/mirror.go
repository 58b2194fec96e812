// Package store implements the local mirror of server entities: a durable,
// indexed copy of transactions, accounts and categories that the UI reads
// while offline, refreshed by the sync pull phase.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/fintrack-app/fintrack/backend/internal/logging"
	"github.com/fintrack-app/fintrack/backend/internal/models"
)

// Mirror provides access to the local mirror tables.
type Mirror struct {
	db    *sql.DB
	quota QuotaConfig

	// usage reports current storage footprint in bytes; replaced in tests.
	usage func() (int64, error)
}

// NewMirror creates a Mirror over an opened database.
func NewMirror(db *sql.DB, quota QuotaConfig) *Mirror {
	m := &Mirror{db: db, quota: quota.withDefaults()}
	m.usage = m.fileUsage
	return m
}

// =====================================================
// Transactions
// =====================================================

const transactionColumns = `id, owner_id, description, amount, type, date, fixed,
	account_id, category_id, parent_transaction_id, linked_transaction_id,
	created_at, updated_at`

// UpsertTransactions writes a batch of transactions, replacing rows that
// share an id. Idempotent.
func (m *Mirror) UpsertTransactions(ctx context.Context, records []*models.Transaction) error {
	if len(records) == 0 {
		return nil
	}
	if err := m.ensureCapacity(ctx); err != nil {
		return err
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
	INSERT INTO transactions (` + transactionColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		owner_id = excluded.owner_id,
		description = excluded.description,
		amount = excluded.amount,
		type = excluded.type,
		date = excluded.date,
		fixed = excluded.fixed,
		account_id = excluded.account_id,
		category_id = excluded.category_id,
		parent_transaction_id = excluded.parent_transaction_id,
		linked_transaction_id = excluded.linked_transaction_id,
		created_at = excluded.created_at,
		updated_at = excluded.updated_at
	`
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.ID, r.OwnerID, r.Description, r.Amount,
			r.Type, r.Date, r.Fixed, r.AccountID, r.CategoryID,
			r.ParentTransactionID, r.LinkedTransactionID, r.CreatedAt, r.UpdatedAt); err != nil {
			return fmt.Errorf("failed to upsert transaction %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// QueryTransactions returns the owner's transactions matching the filter.
// Sorting happens in memory so large windows can be ordered by amount
// without a dedicated index.
func (m *Mirror) QueryTransactions(ctx context.Context, ownerID string, filter *TransactionFilter) ([]*models.Transaction, error) {
	if filter == nil {
		filter = &TransactionFilter{}
	}
	query := "SELECT " + transactionColumns + " FROM transactions WHERE owner_id = ?"
	args := []interface{}{ownerID}
	query += filter.whereSQL(&args)

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.Transaction
	for rows.Next() {
		r, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortTransactions(records, filter.SortBy, filter.Descending)
	return paginate(records, filter.Offset, filter.Limit), nil
}

// GetTransaction retrieves a single transaction by id.
func (m *Mirror) GetTransaction(ctx context.Context, id models.EntityID) (*models.Transaction, error) {
	row := m.db.QueryRowContext(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE id = ?", id)
	return scanTransaction(row)
}

// DeleteTransaction removes a transaction by id.
func (m *Mirror) DeleteTransaction(ctx context.Context, id models.EntityID) error {
	_, err := m.db.ExecContext(ctx, "DELETE FROM transactions WHERE id = ?", id)
	return err
}

// ReconcileTransactions makes the owner's ordinary (non-fixed) transactions
// inside the window match serverRecords: every local record dated at or
// after windowStart whose id is confirmed and absent from serverRecords is
// treated as deleted server-side and evicted. Pending-id records and
// records outside the window are never evicted. Idempotent.
func (m *Mirror) ReconcileTransactions(ctx context.Context, ownerID string, serverRecords []*models.Transaction, windowStart int64) error {
	serverIDs := make(map[string]bool, len(serverRecords))
	for _, r := range serverRecords {
		serverIDs[r.ID.String()] = true
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		"SELECT id FROM transactions WHERE owner_id = ? AND fixed = 0 AND date >= ?",
		ownerID, windowStart)
	if err != nil {
		return err
	}
	stale, err := collectStaleIDs(rows, serverIDs)
	if err != nil {
		return err
	}

	for _, id := range stale {
		if _, err := tx.ExecContext(ctx, "DELETE FROM transactions WHERE id = ?", id); err != nil {
			return fmt.Errorf("failed to evict transaction %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	if len(stale) > 0 {
		logging.Info("Evicted server-deleted transactions",
			map[string]interface{}{"owner_id": ownerID, "count": len(stale)})
	}

	return m.UpsertTransactions(ctx, serverRecords)
}

// ReconcileFixedTransactions reconciles recurring templates. Templates are
// not date-bounded, so membership in serverRecords alone decides eviction.
func (m *Mirror) ReconcileFixedTransactions(ctx context.Context, ownerID string, serverRecords []*models.Transaction) error {
	serverIDs := make(map[string]bool, len(serverRecords))
	for _, r := range serverRecords {
		serverIDs[r.ID.String()] = true
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		"SELECT id FROM transactions WHERE owner_id = ? AND fixed = 1", ownerID)
	if err != nil {
		return err
	}
	stale, err := collectStaleIDs(rows, serverIDs)
	if err != nil {
		return err
	}

	for _, id := range stale {
		if _, err := tx.ExecContext(ctx, "DELETE FROM transactions WHERE id = ?", id); err != nil {
			return fmt.Errorf("failed to evict template %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	return m.UpsertTransactions(ctx, serverRecords)
}

// collectStaleIDs drains an id result set and returns the confirmed ids not
// present in serverIDs. Pending ids are local-only writes and always kept.
func collectStaleIDs(rows *sql.Rows, serverIDs map[string]bool) ([]string, error) {
	defer rows.Close()
	var stale []string
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		id := models.ParseEntityID(raw)
		if id.IsPending() || serverIDs[id.String()] {
			continue
		}
		stale = append(stale, raw)
	}
	return stale, rows.Err()
}

// =====================================================
// Accounts
// =====================================================

const accountColumns = `id, owner_id, name, type, opening_balance, created_at, updated_at`

// UpsertAccounts writes a batch of accounts. Idempotent.
func (m *Mirror) UpsertAccounts(ctx context.Context, records []*models.Account) error {
	if len(records) == 0 {
		return nil
	}
	if err := m.ensureCapacity(ctx); err != nil {
		return err
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
	INSERT INTO accounts (` + accountColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		owner_id = excluded.owner_id,
		name = excluded.name,
		type = excluded.type,
		opening_balance = excluded.opening_balance,
		created_at = excluded.created_at,
		updated_at = excluded.updated_at
	`
	for _, r := range records {
		if _, err := tx.ExecContext(ctx, query, r.ID, r.OwnerID, r.Name, r.Type,
			r.OpeningBalance, r.CreatedAt, r.UpdatedAt); err != nil {
			return fmt.Errorf("failed to upsert account %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// QueryAccounts returns all of the owner's accounts ordered by name.
func (m *Mirror) QueryAccounts(ctx context.Context, ownerID string) ([]*models.Account, error) {
	rows, err := m.db.QueryContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE owner_id = ? ORDER BY name", ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.Account
	for rows.Next() {
		var r models.Account
		if err := rows.Scan(&r.ID, &r.OwnerID, &r.Name, &r.Type,
			&r.OpeningBalance, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		records = append(records, &r)
	}
	return records, rows.Err()
}

// DeleteAccount removes an account by id.
func (m *Mirror) DeleteAccount(ctx context.Context, id models.EntityID) error {
	_, err := m.db.ExecContext(ctx, "DELETE FROM accounts WHERE id = ?", id)
	return err
}

// ReconcileAccounts makes the owner's accounts match serverRecords.
// Accounts are not date-bounded; id membership decides eviction, pending
// ids are kept.
func (m *Mirror) ReconcileAccounts(ctx context.Context, ownerID string, serverRecords []*models.Account) error {
	serverIDs := make(map[string]bool, len(serverRecords))
	for _, r := range serverRecords {
		serverIDs[r.ID.String()] = true
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, "SELECT id FROM accounts WHERE owner_id = ?", ownerID)
	if err != nil {
		return err
	}
	stale, err := collectStaleIDs(rows, serverIDs)
	if err != nil {
		return err
	}
	for _, id := range stale {
		if _, err := tx.ExecContext(ctx, "DELETE FROM accounts WHERE id = ?", id); err != nil {
			return fmt.Errorf("failed to evict account %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	return m.UpsertAccounts(ctx, serverRecords)
}

// =====================================================
// Categories
// =====================================================

const categoryColumns = `id, owner_id, name, kind, created_at, updated_at`

// UpsertCategories writes a batch of categories. Idempotent.
func (m *Mirror) UpsertCategories(ctx context.Context, records []*models.Category) error {
	if len(records) == 0 {
		return nil
	}
	if err := m.ensureCapacity(ctx); err != nil {
		return err
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
	INSERT INTO categories (` + categoryColumns + `)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		owner_id = excluded.owner_id,
		name = excluded.name,
		kind = excluded.kind,
		created_at = excluded.created_at,
		updated_at = excluded.updated_at
	`
	for _, r := range records {
		if _, err := tx.ExecContext(ctx, query, r.ID, r.OwnerID, r.Name, r.Kind,
			r.CreatedAt, r.UpdatedAt); err != nil {
			return fmt.Errorf("failed to upsert category %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// QueryCategories returns all of the owner's categories ordered by name.
func (m *Mirror) QueryCategories(ctx context.Context, ownerID string) ([]*models.Category, error) {
	rows, err := m.db.QueryContext(ctx,
		"SELECT "+categoryColumns+" FROM categories WHERE owner_id = ? ORDER BY name", ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.Category
	for rows.Next() {
		var r models.Category
		if err := rows.Scan(&r.ID, &r.OwnerID, &r.Name, &r.Kind,
			&r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		records = append(records, &r)
	}
	return records, rows.Err()
}

// DeleteCategory removes a category by id.
func (m *Mirror) DeleteCategory(ctx context.Context, id models.EntityID) error {
	_, err := m.db.ExecContext(ctx, "DELETE FROM categories WHERE id = ?", id)
	return err
}

// ReconcileCategories makes the owner's categories match serverRecords.
func (m *Mirror) ReconcileCategories(ctx context.Context, ownerID string, serverRecords []*models.Category) error {
	serverIDs := make(map[string]bool, len(serverRecords))
	for _, r := range serverRecords {
		serverIDs[r.ID.String()] = true
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, "SELECT id FROM categories WHERE owner_id = ?", ownerID)
	if err != nil {
		return err
	}
	stale, err := collectStaleIDs(rows, serverIDs)
	if err != nil {
		return err
	}
	for _, id := range stale {
		if _, err := tx.ExecContext(ctx, "DELETE FROM categories WHERE id = ?", id); err != nil {
			return fmt.Errorf("failed to evict category %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	return m.UpsertCategories(ctx, serverRecords)
}

// =====================================================
// Identity confirmation
// =====================================================

// ConfirmTransactionID rewrites a pending transaction id to its
// server-confirmed value, including back-references held by other rows.
func (m *Mirror) ConfirmTransactionID(ctx context.Context, pending models.EntityID, serverID string) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	old := pending.String()
	if _, err := tx.ExecContext(ctx, "UPDATE transactions SET id = ? WHERE id = ?", serverID, old); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "UPDATE transactions SET parent_transaction_id = ? WHERE parent_transaction_id = ?", serverID, old); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "UPDATE transactions SET linked_transaction_id = ? WHERE linked_transaction_id = ?", serverID, old); err != nil {
		return err
	}
	return tx.Commit()
}

// ConfirmAccountID rewrites a pending account id, including transaction
// references to it.
func (m *Mirror) ConfirmAccountID(ctx context.Context, pending models.EntityID, serverID string) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	old := pending.String()
	if _, err := tx.ExecContext(ctx, "UPDATE accounts SET id = ? WHERE id = ?", serverID, old); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "UPDATE transactions SET account_id = ? WHERE account_id = ?", serverID, old); err != nil {
		return err
	}
	return tx.Commit()
}

// ConfirmCategoryID rewrites a pending category id, including transaction
// references to it.
func (m *Mirror) ConfirmCategoryID(ctx context.Context, pending models.EntityID, serverID string) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	old := pending.String()
	if _, err := tx.ExecContext(ctx, "UPDATE categories SET id = ? WHERE id = ?", serverID, old); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "UPDATE transactions SET category_id = ? WHERE category_id = ?", serverID, old); err != nil {
		return err
	}
	return tx.Commit()
}

// Purge removes all mirror data for an owner. Used by clear-all-data.
func (m *Mirror) Purge(ctx context.Context, ownerID string) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"transactions", "accounts", "categories"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE owner_id = ?", ownerID); err != nil {
			return fmt.Errorf("failed to purge %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// =====================================================
// Scan helpers
// =====================================================

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var r models.Transaction
	err := row.Scan(&r.ID, &r.OwnerID, &r.Description, &r.Amount, &r.Type,
		&r.Date, &r.Fixed, &r.AccountID, &r.CategoryID,
		&r.ParentTransactionID, &r.LinkedTransactionID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func sortTransactions(records []*models.Transaction, by SortField, descending bool) {
	less := func(i, j int) bool { return records[i].Date < records[j].Date }
	if by == SortByAmount {
		less = func(i, j int) bool { return records[i].Amount < records[j].Amount }
	}
	if descending {
		inner := less
		less = func(i, j int) bool { return inner(j, i) }
	}
	sort.SliceStable(records, less)
}

func paginate(records []*models.Transaction, offset, limit int) []*models.Transaction {
	if offset > 0 {
		if offset >= len(records) {
			return nil
		}
		records = records[offset:]
	}
	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}
	return records
}
