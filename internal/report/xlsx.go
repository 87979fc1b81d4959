package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"entrate/internal/core"
)

const (
	incomesSheet    = "Incomes"
	categoriesSheet = "Categories"
)

// WriteXLSX writes rec as a workbook with an Incomes and a Categories sheet.
func WriteXLSX(w io.Writer, rec core.UserIncomeRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), incomesSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(incomesSheet, "A1", &[]any{"Date", "Description", "Category", "Amount"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	row := 2
	for _, e := range rec.Incomes {
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(incomesSheet, cell, &[]any{e.Date.ISODate(), e.Description, string(e.Category), e.Amount.Float()}); err != nil {
			return fmt.Errorf("write row %d: %w", row, err)
		}
		row++
	}
	totalCell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(incomesSheet, totalCell, &[]any{"Total", "", "", rec.TotalIncome.Float()}); err != nil {
		return fmt.Errorf("write total: %w", err)
	}
	if err := f.SetColWidth(incomesSheet, "B", "B", 40); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	if _, err := f.NewSheet(categoriesSheet); err != nil {
		return fmt.Errorf("add sheet: %w", err)
	}
	if err := f.SetSheetRow(categoriesSheet, "A1", &[]any{"Category", "Entries", "Total"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, ct := range ByCategory(rec) {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(categoriesSheet, cell, &[]any{string(ct.Category), ct.Count, ct.Total.Float()}); err != nil {
			return fmt.Errorf("write category %s: %w", ct.Category, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
