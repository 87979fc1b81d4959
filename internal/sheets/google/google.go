package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"entrate/internal/core"
	applog "entrate/internal/log"
	"entrate/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Incomes sheet layout: one header row, then
// user id | date | description | category | amount | recorded at.
const (
	columnRange = "A:F"
	dataRange   = "A2:F"
)

// Client mirrors incomes into a Google Sheets tab.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	incomesSheet  string
	now           func() time.Time
}

var _ sheets.IncomeMirror = (*Client)(nil)

// New creates a client on top of an existing service.
func New(svc *gsheet.Service, spreadsheetID, incomesSheet string) (*Client, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if strings.TrimSpace(incomesSheet) == "" {
		incomesSheet = "Incomes"
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, incomesSheet: incomesSheet, now: time.Now}, nil
}

// NewFromEnv creates a Sheets client using service account credentials.
// Credentials come from GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE
// or GOOGLE_APPLICATION_CREDENTIALS, in that order.
func NewFromEnv(ctx context.Context, spreadsheetID, incomesSheet string) (*Client, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	creds, err := credentialsFromEnv()
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created",
		applog.FieldComponent, applog.ComponentSheets,
		"spreadsheet_id", spreadsheetID,
		"sheet", incomesSheet)
	return New(svc, spreadsheetID, incomesSheet)
}

func credentialsFromEnv() ([]byte, error) {
	if inline := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")); inline != "" {
		return []byte(inline), nil
	}
	path := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if path == "" {
		path = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if path == "" {
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return raw, nil
}

// AppendIncome adds one row for the entry and returns the updated range.
func (c *Client) AppendIncome(ctx context.Context, userID string, e core.IncomeEntry) (string, error) {
	if err := e.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	rng := fmt.Sprintf("%s!%s", c.incomesSheet, columnRange)
	vr := &gsheet.ValueRange{Values: [][]any{formatIncomeRow(userID, e, c.now())}}
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to %s: %w", c.incomesSheet, err)
	}
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		return resp.Updates.UpdatedRange, nil
	}
	return rng, nil
}

// ListIncomes returns the mirrored incomes of userID in sheet order.
// Rows that cannot be parsed are skipped and logged.
func (c *Client) ListIncomes(ctx context.Context, userID string) ([]core.IncomeEntry, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!%s", c.incomesSheet, dataRange)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).
		ValueRenderOption("UNFORMATTED_VALUE").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	var out []core.IncomeEntry
	for i, row := range resp.Values {
		owner, e, err := parseIncomeRow(row)
		if err != nil {
			slog.WarnContext(ctx, "Skipping unreadable income row",
				applog.FieldComponent, applog.ComponentSheets,
				"row", i+2,
				"error", err)
			continue
		}
		if owner == userID {
			out = append(out, e)
		}
	}
	return out, nil
}
