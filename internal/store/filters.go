// Package store provides query filter building for the local mirror.
package store

// SortField selects the in-memory sort key for transaction queries.
type SortField string

const (
	SortByDate   SortField = "date"
	SortByAmount SortField = "amount"
)

// TransactionFilter constrains and orders QueryTransactions results.
// From/To bound the transaction date (inclusive, 0 means unbounded).
// Offset and Limit paginate after sorting.
type TransactionFilter struct {
	From       int64
	To         int64
	FixedOnly  bool
	SortBy     SortField
	Descending bool
	Offset     int
	Limit      int
}

// whereSQL appends the filter's WHERE fragments, pushing arguments onto
// args. Sorting and pagination are not part of the SQL: they run in memory.
func (f *TransactionFilter) whereSQL(args *[]interface{}) string {
	sql := ""
	if f.From > 0 {
		sql += " AND date >= ?"
		*args = append(*args, f.From)
	}
	if f.To > 0 {
		sql += " AND date <= ?"
		*args = append(*args, f.To)
	}
	if f.FixedOnly {
		sql += " AND fixed = 1"
	}
	return sql
}
