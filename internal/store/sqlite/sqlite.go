// Package sqlite implements the income document store on SQLite. A record
// is a row in income_records and its incomes are rows in income_entries; the
// unique key on income_entries gives the incomes array set semantics.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"entrate/internal/core"
	"entrate/internal/store"

	_ "modernc.org/sqlite"
)

// Store is a DocumentStore backed by a SQLite database.
type Store struct {
	db *sql.DB
}

var (
	_ store.DocumentStore = (*Store)(nil)
	_ store.Pinger        = (*Store)(nil)
)

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// DSN returns the connection string used for dbPath.
func DSN(dbPath string) string {
	return dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// Open opens (creating if needed) the database at dbPath and migrates it.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := DSN(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time; transactions below rely on it.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Get(ctx context.Context, userID string) (core.UserIncomeRecord, error) {
	return loadRecord(ctx, s.db, userID)
}

func (s *Store) Update(ctx context.Context, userID string, u store.Update) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := ensureRecord(ctx, tx, userID); err != nil {
			return err
		}
		if u.UnionIncome != nil {
			if _, err := insertEntry(ctx, tx, userID, *u.UnionIncome); err != nil {
				return err
			}
		}
		if u.SetTotal != nil {
			if _, err := tx.ExecContext(ctx,
				`UPDATE income_records SET total_income_cents = ?, updated_at = CURRENT_TIMESTAMP WHERE user_id = ?`,
				u.SetTotal.Cents, userID); err != nil {
				return fmt.Errorf("set total: %w", err)
			}
		}
		return nil
	})
}

// ApplyIncome inserts e and increments the total in one transaction.
func (s *Store) ApplyIncome(ctx context.Context, userID string, e core.IncomeEntry) (store.ApplyResult, error) {
	var res store.ApplyResult
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := ensureRecord(ctx, tx, userID); err != nil {
			return err
		}
		appended, err := insertEntry(ctx, tx, userID, e)
		if err != nil {
			return err
		}
		if appended {
			var current core.Money
			if err := tx.QueryRowContext(ctx,
				`SELECT total_income_cents FROM income_records WHERE user_id = ?`, userID).Scan(&current.Cents); err != nil {
				return fmt.Errorf("read total: %w", err)
			}
			total, err := current.CheckedAdd(e.Amount)
			if err != nil {
				return fmt.Errorf("increment total: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE income_records SET total_income_cents = ?, updated_at = CURRENT_TIMESTAMP WHERE user_id = ?`,
				total.Cents, userID); err != nil {
				return fmt.Errorf("increment total: %w", err)
			}
		}
		rec, err := loadRecord(ctx, tx, userID)
		if err != nil {
			return err
		}
		res = store.ApplyResult{Record: rec, Appended: appended}
		return nil
	})
	if err != nil {
		return store.ApplyResult{}, err
	}
	if !res.Appended {
		slog.DebugContext(ctx, "Income already recorded", "user_id", userID, "income_description", e.Description)
	}
	return res, nil
}

func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM income_records ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func ensureRecord(ctx context.Context, tx *sql.Tx, userID string) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO income_records (user_id) VALUES (?) ON CONFLICT(user_id) DO NOTHING`, userID); err != nil {
		return fmt.Errorf("ensure record: %w", err)
	}
	return nil
}

// insertEntry adds the entry unless an equal one exists and reports whether
// a row was written.
func insertEntry(ctx context.Context, tx *sql.Tx, userID string, e core.IncomeEntry) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO income_entries (user_id, description, amount_cents, category, income_date)
		 VALUES (?, ?, ?, ?, ?) ON CONFLICT DO NOTHING`,
		userID, e.Description, e.Amount.Cents, string(e.Category), e.Date.ISODate())
	if err != nil {
		return false, fmt.Errorf("insert income: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func loadRecord(ctx context.Context, q querier, userID string) (core.UserIncomeRecord, error) {
	rec := core.UserIncomeRecord{UserID: userID}
	err := q.QueryRowContext(ctx,
		`SELECT total_income_cents FROM income_records WHERE user_id = ?`, userID).Scan(&rec.TotalIncome.Cents)
	if errors.Is(err, sql.ErrNoRows) {
		return core.UserIncomeRecord{}, store.ErrNotFound
	}
	if err != nil {
		return core.UserIncomeRecord{}, fmt.Errorf("get record: %w", err)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT description, amount_cents, category, income_date FROM income_entries WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return core.UserIncomeRecord{}, fmt.Errorf("list incomes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			e        core.IncomeEntry
			category string
			date     string
		)
		if err := rows.Scan(&e.Description, &e.Amount.Cents, &category, &date); err != nil {
			return core.UserIncomeRecord{}, fmt.Errorf("scan income: %w", err)
		}
		e.Category = core.Category(category)
		if e.Date, err = core.ParseISODate(date); err != nil {
			return core.UserIncomeRecord{}, fmt.Errorf("income date %q: %w", date, err)
		}
		rec.Incomes = append(rec.Incomes, e)
	}
	if err := rows.Err(); err != nil {
		return core.UserIncomeRecord{}, fmt.Errorf("iterate incomes: %w", err)
	}
	return rec, nil
}
