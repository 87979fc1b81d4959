package core

import (
	"errors"
	"strings"
	"time"
)

// Form field names, shared by the HTML form and the JSON API.
const (
	FieldDescription = "incomeDescription"
	FieldAmount      = "incomeAmount"
	FieldCategory    = "category"
	FieldDate        = "date"
)

// Validation messages shown next to the offending field.
const (
	MsgRequired         = "Required!"
	MsgAmountNegative   = "Amount must be greater than or equal to 0"
	MsgAmountNotNumber  = "Amount must be a number"
	MsgInvalidCategory  = "Invalid category"
	MsgDescriptionLong  = "Description must be at most 200 characters"
	MsgInvalidDateValue = "Invalid date"
)

// IncomeForm holds the raw values typed by the user.
type IncomeForm struct {
	Description string
	Amount      string
	Category    string
	Date        string
}

// FieldErrors maps a form field name to its validation message.
type FieldErrors map[string]string

// Has reports whether field has an error.
func (fe FieldErrors) Has(field string) bool {
	_, ok := fe[field]
	return ok
}

// Empty reports whether there are no errors.
func (fe FieldErrors) Empty() bool { return len(fe) == 0 }

// NewIncomeForm returns the initial form: empty description, amount 0, no
// category and today's date.
func NewIncomeForm(now time.Time) IncomeForm {
	return IncomeForm{
		Amount: "0",
		Date:   now.Format(ISODateLayout),
	}
}

// ParseFormDate accepts YYYY-MM-DD or RFC 3339 and keeps the time of day
// when one is provided.
func ParseFormDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, ErrMissingDate
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return Date{Time: t}, nil
	}
	t, err := time.Parse(ISODateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

// ValidateField checks one field and returns its message, or "" when valid.
func (f IncomeForm) ValidateField(field string) string {
	switch field {
	case FieldDescription:
		desc := strings.TrimSpace(f.Description)
		if desc == "" {
			return MsgRequired
		}
		if len([]rune(desc)) > MaxDescriptionLength {
			return MsgDescriptionLong
		}
	case FieldAmount:
		if strings.TrimSpace(f.Amount) == "" {
			return MsgRequired
		}
		if _, err := ParseAmount(f.Amount); err != nil {
			if errors.Is(err, ErrNegativeAmount) {
				return MsgAmountNegative
			}
			return MsgAmountNotNumber
		}
	case FieldCategory:
		c := strings.TrimSpace(f.Category)
		if c == "" {
			return MsgRequired
		}
		if !Category(c).Valid() {
			return MsgInvalidCategory
		}
	case FieldDate:
		if strings.TrimSpace(f.Date) == "" {
			return MsgRequired
		}
		if _, err := ParseFormDate(f.Date); err != nil {
			return MsgInvalidDateValue
		}
	}
	return ""
}

// Validate checks every field.
func (f IncomeForm) Validate() FieldErrors {
	errs := FieldErrors{}
	for _, field := range []string{FieldDescription, FieldAmount, FieldCategory, FieldDate} {
		if msg := f.ValidateField(field); msg != "" {
			errs[field] = msg
		}
	}
	return errs
}

// Parse validates the form and builds the entry it describes.
func (f IncomeForm) Parse() (IncomeEntry, FieldErrors) {
	if errs := f.Validate(); !errs.Empty() {
		return IncomeEntry{}, errs
	}
	amount, _ := ParseAmount(f.Amount)
	date, _ := ParseFormDate(f.Date)
	return IncomeEntry{
		Description: strings.TrimSpace(f.Description),
		Amount:      amount,
		Category:    Category(strings.TrimSpace(f.Category)),
		Date:        date,
	}, nil
}
