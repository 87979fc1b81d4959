package memory

import (
	"context"
	"testing"

	"entrate/internal/core"
)

func TestMirrorAppendAndList(t *testing.T) {
	ctx := context.Background()
	m := New()
	e := core.IncomeEntry{Description: "Job", Amount: core.Money{Cents: 100}, Category: core.CategorySalary, Date: core.NewDate(2024, 3, 15)}

	ref, err := m.AppendIncome(ctx, "u1", e)
	if err != nil || ref != "mem:1" {
		t.Fatalf("append: %q %v", ref, err)
	}
	if _, err := m.AppendIncome(ctx, "u2", e); err != nil {
		t.Fatal(err)
	}
	if _, err := m.AppendIncome(ctx, "u1", core.IncomeEntry{}); err == nil {
		t.Fatal("expected validation error")
	}

	got, _ := m.ListIncomes(ctx, "u1")
	if len(got) != 1 || !got[0].Equal(e) {
		t.Fatalf("unexpected list %+v", got)
	}
	if m.Len() != 2 {
		t.Fatalf("len = %d", m.Len())
	}
}
