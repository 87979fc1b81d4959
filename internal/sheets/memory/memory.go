package memory

import (
	"context"
	"fmt"
	"sync"

	"entrate/internal/core"
	"entrate/internal/sheets"
)

type row struct {
	userID string
	entry  core.IncomeEntry
}

// Mirror keeps mirrored rows in memory. It stands in for the spreadsheet
// when no spreadsheet is configured.
type Mirror struct {
	mu   sync.Mutex
	rows []row
}

var _ sheets.IncomeMirror = (*Mirror)(nil)

// New returns an empty mirror.
func New() *Mirror { return &Mirror{} }

// AppendIncome stores the row and returns a synthetic row reference.
func (m *Mirror) AppendIncome(_ context.Context, userID string, e core.IncomeEntry) (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, row{userID: userID, entry: e})
	return fmt.Sprintf("mem:%d", len(m.rows)), nil
}

// ListIncomes returns the entries mirrored for userID.
func (m *Mirror) ListIncomes(_ context.Context, userID string) ([]core.IncomeEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.IncomeEntry
	for _, r := range m.rows {
		if r.userID == userID {
			out = append(out, r.entry)
		}
	}
	return out, nil
}

// Len returns the number of mirrored rows across all users.
func (m *Mirror) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}
