// Package income implements the income form workflow: validation, the
// optimistic local update and the remote write to the user's record.
package income

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"entrate/internal/core"
	applog "entrate/internal/log"
	"entrate/internal/store"
)

// EventPublisher is notified after a confirmed remote write.
type EventPublisher interface {
	PublishIncomeRecorded(ctx context.Context, userID string, e core.IncomeEntry, total core.Money) error
}

// Timer is the part of *time.Timer the controller uses.
type Timer interface {
	Stop() bool
}

// Options configures a Controller. Zero values get defaults.
type Options struct {
	Mode              Mode
	RemoteTimeout     time.Duration
	SuccessMessageTTL time.Duration
	Publisher         EventPublisher
	Logger            *applog.Logger
	Now               func() time.Time
	AfterFunc         func(d time.Duration, f func()) Timer
}

func (o Options) withDefaults() Options {
	if o.Mode == "" {
		o.Mode = ModeAtomic
	}
	if o.RemoteTimeout <= 0 {
		o.RemoteTimeout = 7 * time.Second
	}
	if o.SuccessMessageTTL <= 0 {
		o.SuccessMessageTTL = 2 * time.Second
	}
	if o.Logger == nil {
		o.Logger = applog.New(applog.Config{Component: applog.ComponentIncome})
	} else {
		o.Logger = o.Logger.WithComponent(applog.ComponentIncome)
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.AfterFunc == nil {
		o.AfterFunc = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
	return o
}

// View is a copy of the state rendered by the income page.
type View struct {
	Incomes        []core.IncomeEntry
	TotalIncome    core.Money
	TotalLoaded    bool
	SuccessMessage string
	Form           core.IncomeForm
	FormErrors     core.FieldErrors
}

// LocalTotal sums the locally listed incomes. It can differ from the
// remote confirmed TotalIncome.
func (v View) LocalTotal() core.Money {
	return core.UserIncomeRecord{Incomes: v.Incomes}.Sum()
}

// Controller owns the view state of one browser session. It is safe for
// concurrent use.
type Controller struct {
	store      store.DocumentStore
	opts       Options
	structured *applog.StructuredLogger

	mu             sync.Mutex
	incomes        []core.IncomeEntry
	total          core.Money
	totalLoaded    bool
	form           core.IncomeForm
	formErrors     core.FieldErrors
	successMessage string
	messageGen     uint64
	messageTimer   Timer
}

// NewController creates a controller writing to s.
func NewController(s store.DocumentStore, opts Options) *Controller {
	opts = opts.withDefaults()
	return &Controller{
		store:      s,
		opts:       opts,
		structured: applog.NewStructuredLogger(opts.Logger),
		form:       core.NewIncomeForm(opts.Now()),
	}
}

// Snapshot returns a copy of the current view state.
func (c *Controller) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := View{
		Incomes:        append([]core.IncomeEntry(nil), c.incomes...),
		TotalIncome:    c.total,
		TotalLoaded:    c.totalLoaded,
		SuccessMessage: c.successMessage,
		Form:           c.form,
	}
	if len(c.formErrors) > 0 {
		v.FormErrors = make(core.FieldErrors, len(c.formErrors))
		for k, msg := range c.formErrors {
			v.FormErrors[k] = msg
		}
	}
	return v
}

// LocalTotal sums the entries in the local list.
func (c *Controller) LocalTotal() core.Money {
	return c.Snapshot().LocalTotal()
}

// Refresh loads the remote total for userID. A missing record counts as
// zero.
func (c *Controller) Refresh(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.RemoteTimeout)
	defer cancel()
	total := core.Money{}
	rec, err := c.store.Get(ctx, userID)
	switch {
	case err == nil:
		total = rec.TotalIncome
	case errors.Is(err, store.ErrNotFound):
	default:
		return fmt.Errorf("load income record: %w", err)
	}
	c.mu.Lock()
	c.total = total
	c.totalLoaded = true
	c.mu.Unlock()
	return nil
}

// Submit validates form and records the entry for userID.
//
// A valid entry is appended to the local list, the success message is set
// and the form is reset before the remote write starts, so the optimistic
// state survives a remote failure. A nil or empty userID is rejected before
// anything changes.
func (c *Controller) Submit(ctx context.Context, userID *string, form core.IncomeForm) Result {
	entry, fieldErrs := form.Parse()
	if fieldErrs != nil {
		c.mu.Lock()
		c.form = form
		c.formErrors = fieldErrs
		c.mu.Unlock()
		return Result{Outcome: OutcomeValidationError, Errors: fieldErrs}
	}
	if userID == nil || *userID == "" {
		c.structured.LogIncomeSubmitted(ctx, "", entry.Description, entry.Amount.Cents, string(entry.Category), entry.Date.ISODate(), string(OutcomeUnauthenticated))
		return Result{Outcome: OutcomeUnauthenticated, Entry: entry, Err: core.ErrUnauthenticated}
	}
	uid := *userID

	c.applyOptimistic(entry)

	rec, duplicate, err := c.writeRemote(ctx, uid, entry)
	if err != nil {
		c.structured.LogError(ctx, "Failed to record income", err, applog.OpApply,
			applog.NewFields().WithUserID(uid).WithIncome(entry.Description, entry.Amount.Cents, string(entry.Category), entry.Date.ISODate()))
		return Result{Outcome: OutcomeRemoteError, Entry: entry, Err: err}
	}

	c.mu.Lock()
	c.total = rec.TotalIncome
	c.totalLoaded = true
	c.mu.Unlock()

	c.structured.LogIncomeSubmitted(ctx, uid, entry.Description, entry.Amount.Cents, string(entry.Category), entry.Date.ISODate(), string(OutcomeSuccess))
	c.publish(ctx, uid, entry, rec.TotalIncome, duplicate)

	return Result{Outcome: OutcomeSuccess, Entry: entry, TotalIncome: rec.TotalIncome, Duplicate: duplicate}
}

// Rollback removes the most recent local copy of entry. It reports whether
// one was found.
func (c *Controller) Rollback(entry core.IncomeEntry) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.incomes) - 1; i >= 0; i-- {
		if c.incomes[i].Equal(entry) {
			c.incomes = append(c.incomes[:i], c.incomes[i+1:]...)
			return true
		}
	}
	return false
}

// RestoreForm puts the submitted values back into the form and withdraws
// the success message, used after a rollback so the user can retry.
func (c *Controller) RestoreForm(form core.IncomeForm) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.form = form
	c.formErrors = nil
	c.successMessage = ""
	c.messageGen++
	if c.messageTimer != nil {
		c.messageTimer.Stop()
		c.messageTimer = nil
	}
}

// Close stops the pending success message timer.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.messageTimer != nil {
		c.messageTimer.Stop()
		c.messageTimer = nil
	}
}

func (c *Controller) applyOptimistic(entry core.IncomeEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.incomes = append(c.incomes, entry)
	c.form = core.NewIncomeForm(c.opts.Now())
	c.formErrors = nil
	c.successMessage = SuccessMessage

	c.messageGen++
	gen := c.messageGen
	if c.messageTimer != nil {
		c.messageTimer.Stop()
	}
	c.messageTimer = c.opts.AfterFunc(c.opts.SuccessMessageTTL, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		// A newer submission owns the message now.
		if c.messageGen == gen {
			c.successMessage = ""
			c.messageTimer = nil
		}
	})
}

func (c *Controller) writeRemote(ctx context.Context, userID string, entry core.IncomeEntry) (core.UserIncomeRecord, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.RemoteTimeout)
	defer cancel()

	if c.opts.Mode == ModeAtomic {
		res, err := c.store.ApplyIncome(ctx, userID, entry)
		if err != nil {
			return core.UserIncomeRecord{}, false, fmt.Errorf("apply income: %w", err)
		}
		return res.Record, !res.Appended, nil
	}

	current, err := c.store.Get(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return core.UserIncomeRecord{}, false, fmt.Errorf("read income record: %w", err)
	}
	duplicate := current.Contains(entry)
	newTotal, err := current.TotalIncome.CheckedAdd(entry.Amount)
	if err != nil {
		return core.UserIncomeRecord{}, false, fmt.Errorf("increment total: %w", err)
	}
	if err := c.store.Update(ctx, userID, store.Update{UnionIncome: &entry, SetTotal: &newTotal}); err != nil {
		return core.UserIncomeRecord{}, false, fmt.Errorf("update income record: %w", err)
	}
	rec, err := c.store.Get(ctx, userID)
	if err != nil {
		return core.UserIncomeRecord{}, false, fmt.Errorf("re-read income record: %w: %w", ErrReadBack, err)
	}
	return rec, duplicate, nil
}

func (c *Controller) publish(ctx context.Context, userID string, entry core.IncomeEntry, total core.Money, duplicate bool) {
	if c.opts.Publisher == nil || duplicate {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.RemoteTimeout)
	defer cancel()
	if err := c.opts.Publisher.PublishIncomeRecorded(pubCtx, userID, entry, total); err != nil {
		c.opts.Logger.WarnContext(ctx, "Failed to publish income event",
			applog.FieldUserID, userID, applog.FieldError, err)
	}
}
