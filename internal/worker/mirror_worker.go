// Package worker copies recorded incomes from the document store to the
// spreadsheet mirror.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"entrate/internal/amqp"
	"entrate/internal/core"
	applog "entrate/internal/log"
	"entrate/internal/sheets"
	"entrate/internal/store"
)

// RecordSource is the read side of the document store used by the worker.
type RecordSource interface {
	store.RecordReader
	store.UserLister
}

// MirrorWorker appends incomes to the mirror once. Both the event handler
// and the backfill skip entries the mirror already holds, so redelivered
// messages and repeated backfills are harmless.
type MirrorWorker struct {
	source      RecordSource
	mirror      sheets.IncomeMirror
	concurrency int
	logger      *slog.Logger
}

// BackfillStats summarizes one backfill run.
type BackfillStats struct {
	Users    int
	Appended int64
}

// NewMirrorWorker creates a worker mirroring source into mirror with at
// most concurrency users backfilled in parallel.
func NewMirrorWorker(source RecordSource, mirror sheets.IncomeMirror, concurrency int, logger *slog.Logger) *MirrorWorker {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MirrorWorker{
		source:      source,
		mirror:      mirror,
		concurrency: concurrency,
		logger:      logger.With(applog.FieldComponent, applog.ComponentWorker),
	}
}

// HandleIncomeRecorded mirrors the entry carried by msg.
func (w *MirrorWorker) HandleIncomeRecorded(ctx context.Context, msg *amqp.IncomeRecordedMessage) error {
	entry, err := msg.IncomeEntry()
	if err != nil {
		return fmt.Errorf("decode entry: %w", err)
	}
	mirrored, err := w.mirror.ListIncomes(ctx, msg.UserID)
	if err != nil {
		return fmt.Errorf("list mirrored incomes: %w", err)
	}
	for _, m := range mirrored {
		if m.Equal(entry) {
			w.logger.DebugContext(ctx, "Income already mirrored",
				applog.FieldMessageID, msg.MessageID,
				applog.FieldUserID, msg.UserID)
			return nil
		}
	}
	ref, err := w.mirror.AppendIncome(ctx, msg.UserID, entry)
	if err != nil {
		return fmt.Errorf("append to mirror: %w", err)
	}
	w.logger.InfoContext(ctx, "Income mirrored",
		applog.FieldMessageID, msg.MessageID,
		applog.FieldUserID, msg.UserID,
		applog.FieldAmountCents, entry.Amount.Cents,
		applog.FieldSheetsRef, ref)
	return nil
}

// Backfill mirrors every stored income that is missing from the mirror.
// Users are processed concurrently up to the configured limit; the first
// error cancels the run.
func (w *MirrorWorker) Backfill(ctx context.Context) (BackfillStats, error) {
	ids, err := w.source.ListUserIDs(ctx)
	if err != nil {
		return BackfillStats{}, fmt.Errorf("list users: %w", err)
	}

	var appended atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			n, err := w.backfillUser(gctx, id)
			appended.Add(int64(n))
			if err != nil {
				return fmt.Errorf("backfill user %s: %w", id, err)
			}
			return nil
		})
	}
	err = g.Wait()
	stats := BackfillStats{Users: len(ids), Appended: appended.Load()}
	if err != nil {
		return stats, err
	}
	w.logger.InfoContext(ctx, "Backfill completed", "users", stats.Users, "appended", stats.Appended)
	return stats, nil
}

func (w *MirrorWorker) backfillUser(ctx context.Context, userID string) (int, error) {
	rec, err := w.source.Get(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("read record: %w", err)
	}
	mirrored, err := w.mirror.ListIncomes(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("list mirrored incomes: %w", err)
	}
	seen := make(map[string]struct{}, len(mirrored))
	for _, m := range mirrored {
		seen[m.Key()] = struct{}{}
	}
	n := 0
	for _, e := range missing(rec.Incomes, seen) {
		if _, err := w.mirror.AppendIncome(ctx, userID, e); err != nil {
			return n, fmt.Errorf("append to mirror: %w", err)
		}
		n++
	}
	return n, nil
}

func missing(incomes []core.IncomeEntry, seen map[string]struct{}) []core.IncomeEntry {
	var out []core.IncomeEntry
	for _, e := range incomes {
		if _, ok := seen[e.Key()]; !ok {
			out = append(out, e)
		}
	}
	return out
}

// RunPeriodicBackfill runs Backfill every interval until ctx is done.
// Failed runs are logged and retried on the next tick.
func (w *MirrorWorker) RunPeriodicBackfill(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.Backfill(ctx); err != nil && ctx.Err() == nil {
				w.logger.ErrorContext(ctx, "Periodic backfill failed", "error", err)
			}
		}
	}
}
