// Package store defines the ports for the per-user income document store.
package store

import (
	"context"
	"errors"

	"entrate/internal/core"
)

// Collection is the logical collection holding one record per user.
const Collection = "users"

var ErrNotFound = errors.New("income record not found")

// Update describes a field level change to a user record. UnionIncome adds
// the entry unless an equal one is already present; SetTotal overwrites the
// stored total. Nil fields are left untouched.
type Update struct {
	UnionIncome *core.IncomeEntry
	SetTotal    *core.Money
}

// ApplyResult is returned by an atomic apply. Appended is false when an
// equal entry was already recorded and nothing changed.
type ApplyResult struct {
	Record   core.UserIncomeRecord
	Appended bool
}

// RecordReader reads a user's record. A missing record is ErrNotFound.
type RecordReader interface {
	Get(ctx context.Context, userID string) (core.UserIncomeRecord, error)
}

// RecordUpdater applies an Update, creating the record when it is missing.
type RecordUpdater interface {
	Update(ctx context.Context, userID string, u Update) error
}

// IncomeApplier adds an entry and increments the total in one step.
type IncomeApplier interface {
	ApplyIncome(ctx context.Context, userID string, e core.IncomeEntry) (ApplyResult, error)
}

// UserLister enumerates the users that own a record.
type UserLister interface {
	ListUserIDs(ctx context.Context) ([]string, error)
}

// DocumentStore is everything the income controller needs from the store.
type DocumentStore interface {
	RecordReader
	RecordUpdater
	IncomeApplier
	UserLister
}

// Pinger is implemented by stores that can report readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}
