package income

import (
	"errors"

	"entrate/internal/core"
)

// Outcome classifies how a submission ended.
type Outcome string

const (
	OutcomeSuccess         Outcome = "success"
	OutcomeValidationError Outcome = "validation_error"
	OutcomeUnauthenticated Outcome = "unauthenticated"
	OutcomeRemoteError     Outcome = "remote_error"
)

// Mode selects how the remote write is performed.
type Mode string

const (
	// ModeAtomic applies the entry and the total increment in one store call.
	ModeAtomic Mode = "atomic"
	// ModeReadModifyWrite reads the total, writes total+amount and reads the
	// record back. Concurrent submits can lose updates in this mode.
	ModeReadModifyWrite Mode = "read_modify_write"
)

// ErrReadBack marks a remote error raised after the entry was written: the
// store holds the entry but the confirmed record could not be read.
var ErrReadBack = errors.New("income written, read-back failed")

// SuccessMessage is shown after a valid submission.
const SuccessMessage = "Income added successfully!"

// Result is returned by Controller.Submit.
type Result struct {
	Outcome Outcome
	Entry   core.IncomeEntry
	Errors  core.FieldErrors
	// TotalIncome is the remote confirmed total, set on success.
	TotalIncome core.Money
	// Duplicate is true when an equal entry was already recorded.
	Duplicate bool
	Err       error
}

// OK reports whether the submission was confirmed by the store.
func (r Result) OK() bool { return r.Outcome == OutcomeSuccess }

// Retractable reports whether a failed submission can be withdrawn from the
// local list without diverging from the store.
func (r Result) Retractable() bool {
	return r.Outcome == OutcomeRemoteError && !errors.Is(r.Err, ErrReadBack)
}
