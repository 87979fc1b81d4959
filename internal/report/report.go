// Package report renders a stored income record for the command line.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"entrate/internal/core"
	"entrate/internal/store"
)

// Format names accepted by Write.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatXLSX  = "xlsx"
)

// CategoryTotal is the sum of one category's incomes.
type CategoryTotal struct {
	Category core.Category
	Count    int
	Total    core.Money
}

// ByCategory groups the record's incomes in category display order.
func ByCategory(rec core.UserIncomeRecord) []CategoryTotal {
	sums := map[core.Category]*CategoryTotal{}
	for _, e := range rec.Incomes {
		ct, ok := sums[e.Category]
		if !ok {
			ct = &CategoryTotal{Category: e.Category}
			sums[e.Category] = ct
		}
		ct.Count++
		ct.Total = ct.Total.Add(e.Amount)
	}
	var out []CategoryTotal
	for _, c := range core.Categories() {
		if ct, ok := sums[c]; ok {
			out = append(out, *ct)
		}
	}
	return out
}

// Write renders rec in the requested format. xlsx output is binary.
func Write(w io.Writer, format string, rec core.UserIncomeRecord) error {
	switch format {
	case FormatTable, "":
		WriteTable(w, rec)
		return nil
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(store.NewRecordDocument(rec))
	case FormatXLSX:
		return WriteXLSX(w, rec)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

// WriteTable prints the incomes of rec followed by per-category totals.
func WriteTable(w io.Writer, rec core.UserIncomeRecord) {
	incomes := append([]core.IncomeEntry(nil), rec.Incomes...)
	sort.SliceStable(incomes, func(i, j int) bool {
		return incomes[i].Date.Before(incomes[j].Date.Time)
	})

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Incomes for %s", rec.UserID)
	t.AppendHeader(table.Row{"Date", "Description", "Category", "Amount"})
	for _, e := range incomes {
		t.AppendRow(table.Row{e.Date.ISODate(), e.Description, e.Category.Label(), e.Amount.String()})
	}
	t.AppendSeparator()

	sum := rec.Sum()
	t.AppendFooter(table.Row{"", "", "Total", text.Bold.Sprint(rec.TotalIncome.String())})
	if sum != rec.TotalIncome {
		t.AppendFooter(table.Row{"", "", "Sum of entries", text.FgYellow.Sprint(sum.String())})
	}
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Footer = text.FormatDefault
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight, AlignFooter: text.AlignRight},
	})
	t.Render()

	cats := table.NewWriter()
	cats.SetOutputMirror(w)
	cats.AppendHeader(table.Row{"Category", "Entries", "Total"})
	for _, ct := range ByCategory(rec) {
		cats.AppendRow(table.Row{ct.Category.Label(), ct.Count, ct.Total.String()})
	}
	cats.SetStyle(table.StyleRounded)
	cats.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
	})
	cats.Render()
}
