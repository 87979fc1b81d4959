package core

import (
	"errors"
	"strings"
	"time"
)

const (
	CategorySalary       Category = "salary"
	CategoryFreelance    Category = "freelance"
	CategoryRentalIncome Category = "rental income"
	CategoryOther        Category = "other"
)

// MaxDescriptionLength bounds the income description in characters.
const MaxDescriptionLength = 200

// ISODateLayout is the calendar-date layout used on the wire.
const ISODateLayout = "2006-01-02"

type (
	Category string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// IncomeEntry is a single recorded income. Entries are appended to a
	// record and never edited afterwards.
	IncomeEntry struct {
		Description string
		Amount      Money
		Category    Category
		Date        Date
	}

	// UserIncomeRecord is the per-user document holding every recorded
	// income and the running total.
	UserIncomeRecord struct {
		UserID      string
		Incomes     []IncomeEntry
		TotalIncome Money
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrNegativeAmount   = errors.New("negative amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrDescriptionLong  = errors.New("description too long (max 200 characters)")
	ErrInvalidCategory  = errors.New("invalid category")
	ErrMissingDate      = errors.New("missing date")
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrTotalOverflow    = errors.New("total income out of range")
)

var categories = []Category{CategorySalary, CategoryFreelance, CategoryRentalIncome, CategoryOther}

// Categories returns the selectable categories in display order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// Valid reports whether c is one of Categories().
func (c Category) Valid() bool {
	for _, known := range categories {
		if c == known {
			return true
		}
	}
	return false
}

// Label is the human readable name shown in the select box.
func (c Category) Label() string {
	switch c {
	case CategorySalary:
		return "Salary"
	case CategoryFreelance:
		return "Freelance"
	case CategoryRentalIncome:
		return "Rental Income"
	case CategoryOther:
		return "Other"
	}
	return string(c)
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseISODate parses a YYYY-MM-DD calendar date.
func ParseISODate(s string) (Date, error) {
	t, err := time.Parse(ISODateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrMissingDate
	}
	return Date{Time: t}, nil
}

// ISODate returns the calendar day the date was picked on as YYYY-MM-DD.
// The day is read from the date's own location and normalized to UTC
// midnight, so the result does not depend on the zone offset.
func (d Date) ISODate() string {
	y, m, day := d.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC).Format(ISODateLayout)
}

// IsEmpty returns true if the date is zero.
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

// Validate rejects negative amounts.
func (m Money) Validate() error {
	if m.Cents < 0 {
		return ErrNegativeAmount
	}
	return nil
}

// Add returns the sum of both amounts. Totals written to a store go through
// CheckedAdd instead.
func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

// CheckedAdd returns the sum of both amounts, or ErrTotalOverflow when it
// does not fit in int64 cents.
func (m Money) CheckedAdd(o Money) (Money, error) {
	sum := m.Cents + o.Cents
	if (o.Cents > 0 && sum < m.Cents) || (o.Cents < 0 && sum > m.Cents) {
		return m, ErrTotalOverflow
	}
	return Money{Cents: sum}, nil
}

// Validate checks the entry invariants and returns the first violation.
func (e IncomeEntry) Validate() error {
	if strings.TrimSpace(e.Description) == "" {
		return ErrEmptyDescription
	}
	if len([]rune(e.Description)) > MaxDescriptionLength {
		return ErrDescriptionLong
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if !e.Category.Valid() {
		return ErrInvalidCategory
	}
	if e.Date.IsEmpty() {
		return ErrMissingDate
	}
	return nil
}

// Key identifies an entry for set-union purposes: two entries with the same
// description, amount, category and calendar day are the same element.
func (e IncomeEntry) Key() string {
	return e.Description + "\x00" + e.Amount.String() + "\x00" + string(e.Category) + "\x00" + e.Date.ISODate()
}

// Equal reports whether both entries serialize to the same document element.
func (e IncomeEntry) Equal(o IncomeEntry) bool {
	return e.Key() == o.Key()
}

// Sum recomputes the total from the stored entries.
func (r UserIncomeRecord) Sum() Money {
	var total Money
	for _, e := range r.Incomes {
		total = total.Add(e.Amount)
	}
	return total
}

// Contains reports whether an equal entry is already part of the record.
func (r UserIncomeRecord) Contains(e IncomeEntry) bool {
	for _, existing := range r.Incomes {
		if existing.Equal(e) {
			return true
		}
	}
	return false
}
