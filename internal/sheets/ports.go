package sheets

import (
	"context"

	"entrate/internal/core"
)

// IncomeMirror is an append-only copy of recorded incomes kept outside the
// document store, one row per income.
type IncomeMirror interface {
	AppendIncome(ctx context.Context, userID string, e core.IncomeEntry) (rowRef string, err error)
	ListIncomes(ctx context.Context, userID string) ([]core.IncomeEntry, error)
}
