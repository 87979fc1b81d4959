package store

import (
	"fmt"

	"entrate/internal/core"
)

// IncomeDocument is the wire shape of one element of the incomes array.
type IncomeDocument struct {
	IncomeDescription string  `json:"incomeDescription" yaml:"incomeDescription"`
	IncomeAmount      float64 `json:"incomeAmount" yaml:"incomeAmount"`
	Category          string  `json:"category" yaml:"category"`
	Date              string  `json:"date" yaml:"date"`
}

// RecordDocument is the wire shape of a user record.
type RecordDocument struct {
	Incomes     []IncomeDocument `json:"incomes" yaml:"incomes"`
	TotalIncome float64          `json:"totalIncome" yaml:"totalIncome"`
}

// NewIncomeDocument converts an entry to its document form.
func NewIncomeDocument(e core.IncomeEntry) IncomeDocument {
	return IncomeDocument{
		IncomeDescription: e.Description,
		IncomeAmount:      e.Amount.Float(),
		Category:          string(e.Category),
		Date:              e.Date.ISODate(),
	}
}

// NewRecordDocument converts a record to its document form.
func NewRecordDocument(r core.UserIncomeRecord) RecordDocument {
	doc := RecordDocument{
		Incomes:     make([]IncomeDocument, 0, len(r.Incomes)),
		TotalIncome: r.TotalIncome.Float(),
	}
	for _, e := range r.Incomes {
		doc.Incomes = append(doc.Incomes, NewIncomeDocument(e))
	}
	return doc
}

// Entry converts the document back to a validated entry.
func (d IncomeDocument) Entry() (core.IncomeEntry, error) {
	date, err := core.ParseISODate(d.Date)
	if err != nil {
		return core.IncomeEntry{}, fmt.Errorf("income %q: date %q: %w", d.IncomeDescription, d.Date, err)
	}
	e := core.IncomeEntry{
		Description: d.IncomeDescription,
		Amount:      core.MoneyFromFloat(d.IncomeAmount),
		Category:    core.Category(d.Category),
		Date:        date,
	}
	if err := e.Validate(); err != nil {
		return core.IncomeEntry{}, fmt.Errorf("income %q: %w", d.IncomeDescription, err)
	}
	return e, nil
}

// Record converts the document back to the domain record. The stored total
// is kept as is, even if it differs from the sum of the entries.
func (d RecordDocument) Record(userID string) (core.UserIncomeRecord, error) {
	rec := core.UserIncomeRecord{
		UserID:      userID,
		TotalIncome: core.MoneyFromFloat(d.TotalIncome),
	}
	for _, doc := range d.Incomes {
		e, err := doc.Entry()
		if err != nil {
			return core.UserIncomeRecord{}, err
		}
		rec.Incomes = append(rec.Incomes, e)
	}
	return rec, nil
}
