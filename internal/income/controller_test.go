package income

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"entrate/internal/core"
	applog "entrate/internal/log"
	"entrate/internal/store"
	"entrate/internal/store/memory"
)

var testNow = time.Date(2024, 3, 20, 10, 0, 0, 0, time.UTC)

type fakeTimer struct{ stopped bool }

func (t *fakeTimer) Stop() bool { t.stopped = true; return true }

type fakeTimers struct {
	mu        sync.Mutex
	fns       []func()
	durations []time.Duration
}

func (f *fakeTimers) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fns = append(f.fns, fn)
	f.durations = append(f.durations, d)
	return &fakeTimer{}
}

func (f *fakeTimers) fire(i int) {
	f.mu.Lock()
	fn := f.fns[i]
	f.mu.Unlock()
	fn()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []core.Money
	err    error
}

func (p *recordingPublisher) PublishIncomeRecorded(_ context.Context, _ string, _ core.IncomeEntry, total core.Money) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, total)
	return p.err
}

// failingStore fails every remote call.
type failingStore struct{ err error }

func (f failingStore) Get(context.Context, string) (core.UserIncomeRecord, error) {
	return core.UserIncomeRecord{}, f.err
}
func (f failingStore) Update(context.Context, string, store.Update) error { return f.err }
func (f failingStore) ApplyIncome(context.Context, string, core.IncomeEntry) (store.ApplyResult, error) {
	return store.ApplyResult{}, f.err
}
func (f failingStore) ListUserIDs(context.Context) ([]string, error) { return nil, f.err }

// gatedStore holds the first two reads until both have happened, so two
// read-modify-write submissions observe the same total.
type gatedStore struct {
	store.DocumentStore
	mu      sync.Mutex
	gets    int
	barrier sync.WaitGroup
}

func newGatedStore(inner store.DocumentStore) *gatedStore {
	g := &gatedStore{DocumentStore: inner}
	g.barrier.Add(2)
	return g
}

func (g *gatedStore) Get(ctx context.Context, userID string) (core.UserIncomeRecord, error) {
	rec, err := g.DocumentStore.Get(ctx, userID)
	g.mu.Lock()
	g.gets++
	n := g.gets
	g.mu.Unlock()
	if n <= 2 {
		g.barrier.Done()
		g.barrier.Wait()
	}
	return rec, err
}

func newTestController(s store.DocumentStore, mode Mode) (*Controller, *fakeTimers) {
	timers := &fakeTimers{}
	c := NewController(s, Options{
		Mode:      mode,
		Logger:    applog.New(applog.Config{Output: io.Discard}),
		Now:       func() time.Time { return testNow },
		AfterFunc: timers.AfterFunc,
	})
	return c, timers
}

func validForm(amount string) core.IncomeForm {
	return core.IncomeForm{Description: "March salary", Amount: amount, Category: "salary", Date: "2024-03-15"}
}

func ptr(s string) *string { return &s }

func seed(t *testing.T, s store.DocumentStore, userID string, cents int64) {
	t.Helper()
	e := core.IncomeEntry{Description: "Opening", Amount: core.Money{Cents: cents}, Category: core.CategoryOther, Date: core.NewDate(2024, 1, 1)}
	if _, err := s.ApplyIncome(context.Background(), userID, e); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestSubmitValidInput(t *testing.T) {
	for _, mode := range []Mode{ModeAtomic, ModeReadModifyWrite} {
		t.Run(string(mode), func(t *testing.T) {
			c, timers := newTestController(memory.New(), mode)
			res := c.Submit(context.Background(), ptr("u1"), validForm("50"))
			if res.Outcome != OutcomeSuccess {
				t.Fatalf("outcome = %s (%v)", res.Outcome, res.Err)
			}

			v := c.Snapshot()
			if len(v.Incomes) != 1 {
				t.Fatalf("expected 1 local income, got %d", len(v.Incomes))
			}
			if v.SuccessMessage != SuccessMessage {
				t.Fatalf("success message = %q", v.SuccessMessage)
			}
			want := core.NewIncomeForm(testNow)
			if v.Form != want {
				t.Fatalf("form not reset: %+v", v.Form)
			}
			if len(timers.durations) != 1 || timers.durations[0] != 2*time.Second {
				t.Fatalf("expected one 2s timer, got %v", timers.durations)
			}

			timers.fire(0)
			if got := c.Snapshot().SuccessMessage; got != "" {
				t.Fatalf("message not cleared: %q", got)
			}
		})
	}
}

func TestSubmitInvalidInputBlocked(t *testing.T) {
	cases := []struct {
		name  string
		form  core.IncomeForm
		field string
	}{
		{"negative amount", core.IncomeForm{Description: "x", Amount: "-1", Category: "salary", Date: "2024-03-15"}, core.FieldAmount},
		{"empty description", core.IncomeForm{Description: "", Amount: "1", Category: "salary", Date: "2024-03-15"}, core.FieldDescription},
		{"empty category", core.IncomeForm{Description: "x", Amount: "1", Category: "", Date: "2024-03-15"}, core.FieldCategory},
		{"missing date", core.IncomeForm{Description: "x", Amount: "1", Category: "salary", Date: ""}, core.FieldDate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := memory.New()
			c, timers := newTestController(s, ModeAtomic)
			res := c.Submit(context.Background(), ptr("u1"), tc.form)
			if res.Outcome != OutcomeValidationError {
				t.Fatalf("outcome = %s", res.Outcome)
			}
			if !res.Errors.Has(tc.field) {
				t.Fatalf("expected error on %s, got %v", tc.field, res.Errors)
			}
			v := c.Snapshot()
			if len(v.Incomes) != 0 || v.SuccessMessage != "" || len(timers.fns) != 0 {
				t.Fatalf("state changed on invalid input: %+v", v)
			}
			if v.Form != tc.form || !v.FormErrors.Has(tc.field) {
				t.Fatalf("form should keep values and errors: %+v", v)
			}
			if _, err := s.Get(context.Background(), "u1"); !errors.Is(err, store.ErrNotFound) {
				t.Fatalf("store must not be written: %v", err)
			}
		})
	}
}

func TestSubmitUnauthenticated(t *testing.T) {
	for _, uid := range []*string{nil, ptr("")} {
		c, _ := newTestController(memory.New(), ModeAtomic)
		res := c.Submit(context.Background(), uid, validForm("10"))
		if res.Outcome != OutcomeUnauthenticated || !errors.Is(res.Err, core.ErrUnauthenticated) {
			t.Fatalf("unexpected result %+v", res)
		}
		if v := c.Snapshot(); len(v.Incomes) != 0 || v.SuccessMessage != "" {
			t.Fatalf("optimistic state applied without identity: %+v", v)
		}
	}
}

func TestScenarioA_AbsentTotal(t *testing.T) {
	for _, mode := range []Mode{ModeAtomic, ModeReadModifyWrite} {
		s := memory.New()
		c, _ := newTestController(s, mode)
		res := c.Submit(context.Background(), ptr("u1"), validForm("50"))
		if !res.OK() || res.TotalIncome.Cents != 5000 {
			t.Fatalf("%s: unexpected result %+v", mode, res)
		}
		if v := c.Snapshot(); !v.TotalLoaded || v.TotalIncome.Cents != 5000 {
			t.Fatalf("%s: local total not refreshed: %+v", mode, v)
		}
		rec, err := s.Get(context.Background(), "u1")
		if err != nil || rec.TotalIncome.Cents != 5000 || len(rec.Incomes) != 1 {
			t.Fatalf("%s: unexpected record %+v %v", mode, rec, err)
		}
	}
}

func TestScenarioB_ExistingTotal(t *testing.T) {
	for _, mode := range []Mode{ModeAtomic, ModeReadModifyWrite} {
		s := memory.New()
		seed(t, s, "u1", 10000)
		c, _ := newTestController(s, mode)
		res := c.Submit(context.Background(), ptr("u1"), validForm("25.50"))
		if !res.OK() || res.TotalIncome.Cents != 12550 {
			t.Fatalf("%s: unexpected result %+v", mode, res)
		}
		rec, _ := s.Get(context.Background(), "u1")
		if len(rec.Incomes) != 2 || rec.Incomes[1].Amount.Cents != 2550 || rec.Incomes[1].Date.ISODate() != "2024-03-15" {
			t.Fatalf("%s: entry not appended: %+v", mode, rec)
		}
	}
}

func TestScenarioC_RemoteFailureKeepsOptimisticState(t *testing.T) {
	remoteErr := errors.New("permission denied")
	c, _ := newTestController(failingStore{err: remoteErr}, ModeAtomic)
	before := c.Snapshot().TotalIncome

	res := c.Submit(context.Background(), ptr("u1"), validForm("40"))
	if res.Outcome != OutcomeRemoteError || !errors.Is(res.Err, remoteErr) {
		t.Fatalf("unexpected result %+v", res)
	}
	v := c.Snapshot()
	if len(v.Incomes) != 1 || v.SuccessMessage != SuccessMessage {
		t.Fatalf("optimistic state lost: %+v", v)
	}
	if v.TotalIncome != before || v.TotalLoaded {
		t.Fatalf("remote total must stay unchanged: %+v", v)
	}
	if v.LocalTotal().Cents != 4000 {
		t.Fatalf("local total = %d", v.LocalTotal().Cents)
	}

	if !c.Rollback(res.Entry) {
		t.Fatal("rollback did not find the entry")
	}
	if len(c.Snapshot().Incomes) != 0 {
		t.Fatal("rollback left the entry")
	}
	c.RestoreForm(validForm("40"))
	v = c.Snapshot()
	if v.Form.Amount != "40" || v.SuccessMessage != "" {
		t.Fatalf("form not restored: %+v", v)
	}
}

func TestScenarioD_ReadModifyWriteLosesUpdate(t *testing.T) {
	inner := memory.New()
	seed(t, inner, "u1", 10000)
	gated := newGatedStore(inner)

	var wg sync.WaitGroup
	for _, amount := range []string{"10", "20"} {
		wg.Add(1)
		go func(amount string) {
			defer wg.Done()
			c, _ := newTestController(gated, ModeReadModifyWrite)
			form := validForm(amount)
			form.Description = "gig " + amount
			if res := c.Submit(context.Background(), ptr("u1"), form); !res.OK() {
				t.Errorf("submit %s: %+v", amount, res)
			}
		}(amount)
	}
	wg.Wait()

	rec, _ := inner.Get(context.Background(), "u1")
	if rec.TotalIncome.Cents != 11000 && rec.TotalIncome.Cents != 12000 {
		t.Fatalf("expected a lost update (110 or 120), got %s", rec.TotalIncome)
	}
	if len(rec.Incomes) != 3 {
		t.Fatalf("both entries should be in the array, got %d", len(rec.Incomes))
	}
}

func TestScenarioD_AtomicKeepsBothUpdates(t *testing.T) {
	s := memory.New()
	seed(t, s, "u1", 10000)

	var wg sync.WaitGroup
	for _, amount := range []string{"10", "20"} {
		wg.Add(1)
		go func(amount string) {
			defer wg.Done()
			c, _ := newTestController(s, ModeAtomic)
			form := validForm(amount)
			form.Description = "gig " + amount
			if res := c.Submit(context.Background(), ptr("u1"), form); !res.OK() {
				t.Errorf("submit %s: %+v", amount, res)
			}
		}(amount)
	}
	wg.Wait()

	rec, _ := s.Get(context.Background(), "u1")
	if rec.TotalIncome.Cents != 13000 {
		t.Fatalf("total = %s, want 130.00", rec.TotalIncome)
	}
}

func TestDuplicateSubmission(t *testing.T) {
	cases := []struct {
		mode      Mode
		wantTotal int64
	}{
		{ModeAtomic, 5000},
		{ModeReadModifyWrite, 10000},
	}
	for _, tc := range cases {
		s := memory.New()
		c, _ := newTestController(s, tc.mode)
		first := c.Submit(context.Background(), ptr("u1"), validForm("50"))
		second := c.Submit(context.Background(), ptr("u1"), validForm("50"))
		if first.Duplicate || !second.Duplicate {
			t.Fatalf("%s: duplicate flags %v %v", tc.mode, first.Duplicate, second.Duplicate)
		}
		rec, _ := s.Get(context.Background(), "u1")
		if len(rec.Incomes) != 1 || rec.TotalIncome.Cents != tc.wantTotal {
			t.Fatalf("%s: unexpected record %+v", tc.mode, rec)
		}
		if got := len(c.Snapshot().Incomes); got != 2 {
			t.Fatalf("%s: local list should hold both submissions, got %d", tc.mode, got)
		}
	}
}

func TestSuccessMessageTimerGeneration(t *testing.T) {
	c, timers := newTestController(memory.New(), ModeAtomic)
	c.Submit(context.Background(), ptr("u1"), validForm("1"))
	c.Submit(context.Background(), ptr("u1"), validForm("2"))

	// The first timer fires late; the second submission still owns the message.
	timers.fire(0)
	if got := c.Snapshot().SuccessMessage; got != SuccessMessage {
		t.Fatalf("stale timer cleared the message")
	}
	timers.fire(1)
	if got := c.Snapshot().SuccessMessage; got != "" {
		t.Fatalf("message not cleared: %q", got)
	}
}

func TestSuccessMessageClearsWithRealTimer(t *testing.T) {
	c := NewController(memory.New(), Options{
		SuccessMessageTTL: 20 * time.Millisecond,
		Logger:            applog.New(applog.Config{Output: io.Discard}),
	})
	defer c.Close()
	c.Submit(context.Background(), ptr("u1"), validForm("1"))
	deadline := time.Now().Add(2 * time.Second)
	for c.Snapshot().SuccessMessage != "" {
		if time.Now().After(deadline) {
			t.Fatal("success message never cleared")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPublisherCalledOnSuccessOnly(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	c := NewController(memory.New(), Options{
		Publisher: pub,
		Logger:    applog.New(applog.Config{Output: io.Discard}),
		AfterFunc: (&fakeTimers{}).AfterFunc,
	})
	if res := c.Submit(context.Background(), ptr("u1"), validForm("50")); !res.OK() {
		t.Fatalf("publish errors must not fail the submit: %+v", res)
	}
	c.Submit(context.Background(), ptr("u1"), validForm("50"))

	failing := NewController(failingStore{err: errors.New("down")}, Options{
		Publisher: pub,
		Logger:    applog.New(applog.Config{Output: io.Discard}),
		AfterFunc: (&fakeTimers{}).AfterFunc,
	})
	failing.Submit(context.Background(), ptr("u1"), validForm("70"))

	if len(pub.events) != 1 || pub.events[0].Cents != 5000 {
		t.Fatalf("unexpected events %v", pub.events)
	}
}

func TestRefresh(t *testing.T) {
	s := memory.New()
	c, _ := newTestController(s, ModeAtomic)
	if err := c.Refresh(context.Background(), "nobody"); err != nil {
		t.Fatalf("missing record should count as zero: %v", err)
	}
	if v := c.Snapshot(); !v.TotalLoaded || v.TotalIncome.Cents != 0 {
		t.Fatalf("unexpected view %+v", v)
	}
	seed(t, s, "u1", 777)
	if err := c.Refresh(context.Background(), "u1"); err != nil {
		t.Fatal(err)
	}
	if got := c.Snapshot().TotalIncome.Cents; got != 777 {
		t.Fatalf("total = %d", got)
	}
	bad, _ := newTestController(failingStore{err: errors.New("down")}, ModeAtomic)
	if err := bad.Refresh(context.Background(), "u1"); err == nil {
		t.Fatal("expected error")
	}
}

func TestSubmitRejectsTotalOverflow(t *testing.T) {
	for _, mode := range []Mode{ModeAtomic, ModeReadModifyWrite} {
		t.Run(string(mode), func(t *testing.T) {
			st := memory.New()
			c, _ := newTestController(st, mode)
			defer c.Close()

			first := validForm("92233720368547758")
			if res := c.Submit(context.Background(), ptr("alice"), first); res.Outcome != OutcomeSuccess {
				t.Fatalf("first submit: %+v", res)
			}
			second := validForm("92233720368547758")
			second.Description = "Second bonus"
			res := c.Submit(context.Background(), ptr("alice"), second)
			if res.Outcome != OutcomeRemoteError || !errors.Is(res.Err, core.ErrTotalOverflow) {
				t.Fatalf("expected overflow remote error, got %+v", res)
			}

			rec, err := st.Get(context.Background(), "alice")
			if err != nil {
				t.Fatal(err)
			}
			if rec.TotalIncome.Cents != 9223372036854775800 || rec.TotalIncome.Cents < 0 {
				t.Errorf("stored total = %d", rec.TotalIncome.Cents)
			}
		})
	}
}

// readBackFailingStore accepts writes but fails reads once an update went
// through.
type readBackFailingStore struct {
	*memory.Store
	updated bool
}

func (s *readBackFailingStore) Update(ctx context.Context, userID string, u store.Update) error {
	s.updated = true
	return s.Store.Update(ctx, userID, u)
}

func (s *readBackFailingStore) Get(ctx context.Context, userID string) (core.UserIncomeRecord, error) {
	if s.updated {
		return core.UserIncomeRecord{}, errors.New("connection reset")
	}
	return s.Store.Get(ctx, userID)
}

func TestResultRetractable(t *testing.T) {
	c, _ := newTestController(failingStore{err: errors.New("down")}, ModeReadModifyWrite)
	defer c.Close()
	if res := c.Submit(context.Background(), ptr("alice"), validForm("10")); !res.Retractable() {
		t.Errorf("failure before the write should be retractable: %+v", res)
	}

	st := &readBackFailingStore{Store: memory.New()}
	c2, _ := newTestController(st, ModeReadModifyWrite)
	defer c2.Close()
	res := c2.Submit(context.Background(), ptr("alice"), validForm("10"))
	if res.Outcome != OutcomeRemoteError || !errors.Is(res.Err, ErrReadBack) {
		t.Fatalf("expected read-back error, got %+v", res)
	}
	if res.Retractable() {
		t.Error("an entry already written must not be retractable")
	}
	if (Result{Outcome: OutcomeSuccess}).Retractable() {
		t.Error("a confirmed result is not retractable")
	}
}
