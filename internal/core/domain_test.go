package core

import (
	"testing"
	"time"
)

func TestCategoryValid(t *testing.T) {
	for _, c := range Categories() {
		if !c.Valid() {
			t.Fatalf("expected %q to be valid", c)
		}
	}
	for _, c := range []Category{"", "Salary", "rental", "bonus"} {
		if c.Valid() {
			t.Fatalf("expected %q to be invalid", c)
		}
	}
	if got := CategoryRentalIncome.Label(); got != "Rental Income" {
		t.Errorf("label = %q", got)
	}
}

func TestDateISODateIgnoresZoneOffset(t *testing.T) {
	zones := []*time.Location{
		time.UTC,
		time.FixedZone("UTC-11", -11*3600),
		time.FixedZone("UTC+14", 14*3600),
	}
	for _, loc := range zones {
		for _, hour := range []int{0, 12, 23} {
			d := Date{Time: time.Date(2024, 3, 15, hour, 30, 0, 0, loc)}
			if got := d.ISODate(); got != "2024-03-15" {
				t.Fatalf("zone %s hour %d: got %s", loc, hour, got)
			}
		}
	}
}

func TestIncomeEntryValidate(t *testing.T) {
	good := IncomeEntry{
		Description: "Salary",
		Amount:      Money{Cents: 0},
		Category:    CategorySalary,
		Date:        NewDate(2024, 3, 15),
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	cases := []struct {
		name string
		mod  func(e *IncomeEntry)
		want error
	}{
		{"empty description", func(e *IncomeEntry) { e.Description = "  " }, ErrEmptyDescription},
		{"negative amount", func(e *IncomeEntry) { e.Amount = Money{Cents: -1} }, ErrNegativeAmount},
		{"bad category", func(e *IncomeEntry) { e.Category = "bonus" }, ErrInvalidCategory},
		{"zero date", func(e *IncomeEntry) { e.Date = Date{} }, ErrMissingDate},
	}
	for _, tc := range cases {
		e := good
		tc.mod(&e)
		if err := e.Validate(); err != tc.want {
			t.Errorf("%s: got %v want %v", tc.name, err, tc.want)
		}
	}
}

func TestUserIncomeRecordSumAndContains(t *testing.T) {
	a := IncomeEntry{Description: "Job", Amount: Money{Cents: 10000}, Category: CategorySalary, Date: NewDate(2024, 1, 31)}
	b := IncomeEntry{Description: "Gig", Amount: Money{Cents: 2550}, Category: CategoryFreelance, Date: NewDate(2024, 2, 1)}
	r := UserIncomeRecord{UserID: "u1", Incomes: []IncomeEntry{a, b}}
	if got := r.Sum(); got.Cents != 12550 {
		t.Fatalf("sum = %d", got.Cents)
	}
	sameDay := a
	sameDay.Date = Date{Time: time.Date(2024, 1, 31, 18, 0, 0, 0, time.FixedZone("X", 3600))}
	if !r.Contains(sameDay) {
		t.Fatalf("expected entry on same calendar day to match")
	}
	other := a
	other.Amount = Money{Cents: 10001}
	if r.Contains(other) {
		t.Fatalf("different amount must not match")
	}
}
