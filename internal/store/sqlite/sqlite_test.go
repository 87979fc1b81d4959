package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"entrate/internal/core"
	"entrate/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "entrate.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func entry(desc string, cents int64) core.IncomeEntry {
	return core.IncomeEntry{Description: desc, Amount: core.Money{Cents: cents}, Category: core.CategoryFreelance, Date: core.NewDate(2024, 3, 15)}
}

func TestGetMissing(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Get(context.Background(), "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestApplyIncomeCreatesRecord(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	res, err := s.ApplyIncome(ctx, "u1", entry("Logo design", 5000))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !res.Appended || res.Record.TotalIncome.Cents != 5000 || len(res.Record.Incomes) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	got, err := s.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Incomes[0].Date.ISODate() != "2024-03-15" || got.Incomes[0].Category != core.CategoryFreelance {
		t.Fatalf("unexpected entry %+v", got.Incomes[0])
	}
}

func TestApplyIncomeDuplicateKeepsTotal(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	if _, err := s.ApplyIncome(ctx, "u1", entry("Logo", 2550)); err != nil {
		t.Fatal(err)
	}
	res, err := s.ApplyIncome(ctx, "u1", entry("Logo", 2550))
	if err != nil {
		t.Fatal(err)
	}
	if res.Appended || res.Record.TotalIncome.Cents != 2550 || len(res.Record.Incomes) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestUpdateUnionAndSetTotal(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	e := entry("Rent", 80000)
	total := core.Money{Cents: 80000}
	if err := s.Update(ctx, "u2", store.Update{UnionIncome: &e, SetTotal: &total}); err != nil {
		t.Fatalf("update: %v", err)
	}
	total = core.Money{Cents: 160000}
	if err := s.Update(ctx, "u2", store.Update{UnionIncome: &e, SetTotal: &total}); err != nil {
		t.Fatalf("update: %v", err)
	}
	rec, err := s.Get(ctx, "u2")
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Incomes) != 1 || rec.TotalIncome.Cents != 160000 {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestApplyIncomeConcurrent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.ApplyIncome(ctx, "u1", entry("gig", int64(100+i))); err != nil {
				t.Errorf("apply: %v", err)
			}
		}(i)
	}
	wg.Wait()
	rec, err := s.Get(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Incomes) != 20 || rec.TotalIncome != rec.Sum() {
		t.Fatalf("total %d sum %d incomes %d", rec.TotalIncome.Cents, rec.Sum().Cents, len(rec.Incomes))
	}
}

func TestListUserIDsAndPing(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	_, _ = s.ApplyIncome(ctx, "bob", entry("a", 1))
	_, _ = s.ApplyIncome(ctx, "alice", entry("b", 2))
	ids, err := s.ListUserIDs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != "alice" || ids[1] != "bob" {
		t.Fatalf("unexpected ids %v", ids)
	}
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "entrate.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = s.ApplyIncome(ctx, "u1", entry("Job", 100))
	s.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	rec, err := s2.Get(ctx, "u1")
	if err != nil || rec.TotalIncome.Cents != 100 {
		t.Fatalf("unexpected %+v %v", rec, err)
	}
}

func TestApplyIncomeRejectsTotalOverflow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	const big = 9223372036854775800
	if _, err := s.ApplyIncome(ctx, "u1", entry("Bonus", big)); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if _, err := s.ApplyIncome(ctx, "u1", entry("Bonus 2", big)); !errors.Is(err, core.ErrTotalOverflow) {
		t.Fatalf("expected ErrTotalOverflow, got %v", err)
	}
	rec, err := s.Get(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.TotalIncome.Cents != big || len(rec.Incomes) != 1 {
		t.Errorf("rejected apply was not rolled back: total=%d incomes=%d", rec.TotalIncome.Cents, len(rec.Incomes))
	}
}
