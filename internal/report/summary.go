// Package report derives display-ready summaries from the local mirror.
// Amounts are stored as integer minor units; reports convert them to
// decimal values so rounding is exact at the presentation boundary.
package report

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fintrack-app/fintrack/backend/internal/models"
	"github.com/fintrack-app/fintrack/backend/internal/store"
)

// minorUnitExp converts integer minor units to major units (cents to
// currency units).
const minorUnitExp = -2

// AccountBalance is an account's opening balance plus every settled and
// pending transaction touching it.
type AccountBalance struct {
	AccountID models.EntityID `json:"account_id"`
	Name      string          `json:"name"`
	Balance   decimal.Decimal `json:"balance"`
	Pending   int             `json:"pending"` // rows not yet server-confirmed
}

// CashFlow summarizes income and expense over a period.
type CashFlow struct {
	From    time.Time                  `json:"from"`
	To      time.Time                  `json:"to"`
	Income  decimal.Decimal            `json:"income"`
	Expense decimal.Decimal            `json:"expense"`
	Net     decimal.Decimal            `json:"net"`
	ByKind  map[string]decimal.Decimal `json:"by_kind"`
}

// Reporter computes summaries over the mirror.
type Reporter struct {
	mirror *store.Mirror
}

// NewReporter creates a Reporter over the given mirror.
func NewReporter(mirror *store.Mirror) *Reporter {
	return &Reporter{mirror: mirror}
}

func toMajor(minor int64) decimal.Decimal {
	return decimal.New(minor, minorUnitExp)
}

// AccountBalances computes the current balance of every account from the
// mirror. Pending transactions count toward the balance so the figure
// matches what the user sees after an offline write.
func (r *Reporter) AccountBalances(ctx context.Context, ownerID string) ([]AccountBalance, error) {
	accounts, err := r.mirror.QueryAccounts(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	txs, err := r.mirror.QueryTransactions(ctx, ownerID, nil)
	if err != nil {
		return nil, err
	}

	balances := make([]AccountBalance, 0, len(accounts))
	index := make(map[string]int, len(accounts))
	for _, a := range accounts {
		index[a.ID.String()] = len(balances)
		balances = append(balances, AccountBalance{
			AccountID: a.ID,
			Name:      a.Name,
			Balance:   toMajor(a.OpeningBalance),
		})
	}

	// Amounts are signed, so every row contributes directly. Transfer
	// pairs carry opposite signs and cancel across accounts.
	for _, t := range txs {
		i, ok := index[t.AccountID.String()]
		if !ok {
			continue
		}
		balances[i].Balance = balances[i].Balance.Add(toMajor(t.Amount))
		if t.ID.IsPending() {
			balances[i].Pending++
		}
	}
	return balances, nil
}

// PeriodCashFlow sums income and expense between from and to, both
// bounds inclusive.
func (r *Reporter) PeriodCashFlow(ctx context.Context, ownerID string, from, to time.Time) (*CashFlow, error) {
	filter := &store.TransactionFilter{
		From: from.Unix(),
		To:   to.Unix(),
	}
	txs, err := r.mirror.QueryTransactions(ctx, ownerID, filter)
	if err != nil {
		return nil, err
	}

	flow := &CashFlow{
		From:    from,
		To:      to,
		Income:  decimal.Zero,
		Expense: decimal.Zero,
		ByKind:  make(map[string]decimal.Decimal),
	}
	for _, t := range txs {
		amount := toMajor(t.Amount)
		kind := string(t.Type)
		flow.ByKind[kind] = flow.ByKind[kind].Add(amount)
		switch t.Type {
		case models.TransactionIncome:
			flow.Income = flow.Income.Add(amount)
		case models.TransactionExpense:
			// Expense rows are stored negative; report the magnitude.
			flow.Expense = flow.Expense.Add(amount.Neg())
		}
	}
	flow.Net = flow.Income.Sub(flow.Expense)
	return flow, nil
}
