package google

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"entrate/internal/core"
)

var errShortRow = errors.New("row has fewer than 5 columns")

func formatIncomeRow(userID string, e core.IncomeEntry, recordedAt time.Time) []any {
	return []any{
		userID,
		e.Date.ISODate(),
		e.Description,
		string(e.Category),
		e.Amount.Float(),
		recordedAt.UTC().Format(time.RFC3339),
	}
}

// parseIncomeRow reads a row written by formatIncomeRow. Amounts may come
// back as numbers or as text with a decimal comma.
func parseIncomeRow(row []any) (string, core.IncomeEntry, error) {
	if len(row) < 5 {
		return "", core.IncomeEntry{}, errShortRow
	}
	cells := toStrings(row)
	userID := cells[0]
	if userID == "" {
		return "", core.IncomeEntry{}, errors.New("empty user id")
	}
	date, err := core.ParseISODate(cells[1])
	if err != nil {
		return "", core.IncomeEntry{}, fmt.Errorf("date %q: %w", cells[1], err)
	}
	amount, err := core.ParseAmount(cells[4])
	if err != nil {
		return "", core.IncomeEntry{}, fmt.Errorf("amount %q: %w", cells[4], err)
	}
	e := core.IncomeEntry{
		Description: cells[2],
		Amount:      amount,
		Category:    core.Category(strings.ToLower(cells[3])),
		Date:        date,
	}
	if err := e.Validate(); err != nil {
		return "", core.IncomeEntry{}, err
	}
	return userID, e, nil
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		switch x := v.(type) {
		case float64:
			out[i] = strconv.FormatFloat(x, 'f', -1, 64)
		default:
			out[i] = strings.TrimSpace(fmt.Sprint(v))
		}
	}
	return out
}
