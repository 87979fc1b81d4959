package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"entrate/internal/core"
	"entrate/internal/store"
)

// Store keeps user records in process memory. A single mutex serializes
// every operation, which makes ApplyIncome atomic.
type Store struct {
	mu      sync.Mutex
	records map[string]core.UserIncomeRecord
}

var _ store.DocumentStore = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{records: make(map[string]core.UserIncomeRecord)}
}

// Seed is the YAML layout accepted by NewFromFile:
//
//	users:
//	  alice:
//	    totalIncome: 100
//	    incomes:
//	      - {incomeDescription: Job, incomeAmount: 100, category: salary, date: "2024-01-31"}
type Seed struct {
	Users map[string]store.RecordDocument `yaml:"users"`
}

// NewFromFile builds a store seeded from a YAML file. An empty path or a
// missing file yields an empty store.
func NewFromFile(path string) (*Store, error) {
	s := New()
	path = strings.TrimSpace(path)
	if path == "" {
		return s, nil
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed Seed
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	for userID, doc := range seed.Users {
		rec, err := doc.Record(userID)
		if err != nil {
			return nil, fmt.Errorf("seed user %q: %w", userID, err)
		}
		s.records[userID] = rec
	}
	return s, nil
}

func (s *Store) Get(_ context.Context, userID string) (core.UserIncomeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[userID]
	if !ok {
		return core.UserIncomeRecord{}, store.ErrNotFound
	}
	return clone(rec), nil
}

func (s *Store) Update(_ context.Context, userID string, u store.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[userID]
	if !ok {
		rec = core.UserIncomeRecord{UserID: userID}
	}
	if u.UnionIncome != nil && !rec.Contains(*u.UnionIncome) {
		rec.Incomes = append(rec.Incomes, *u.UnionIncome)
	}
	if u.SetTotal != nil {
		rec.TotalIncome = *u.SetTotal
	}
	s.records[userID] = rec
	return nil
}

// ApplyIncome appends e unless an equal entry exists and increments the
// total by its amount.
func (s *Store) ApplyIncome(_ context.Context, userID string, e core.IncomeEntry) (store.ApplyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[userID]
	if !ok {
		rec = core.UserIncomeRecord{UserID: userID}
	}
	appended := false
	if !rec.Contains(e) {
		total, err := rec.TotalIncome.CheckedAdd(e.Amount)
		if err != nil {
			return store.ApplyResult{}, fmt.Errorf("increment total: %w", err)
		}
		rec.Incomes = append(rec.Incomes, e)
		rec.TotalIncome = total
		appended = true
	}
	s.records[userID] = rec
	return store.ApplyResult{Record: clone(rec), Appended: appended}, nil
}

func (s *Store) ListUserIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func clone(r core.UserIncomeRecord) core.UserIncomeRecord {
	r.Incomes = append([]core.IncomeEntry(nil), r.Incomes...)
	return r
}
