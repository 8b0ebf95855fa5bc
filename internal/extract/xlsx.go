package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	docerrors "github.com/Aman-CERP/docrag/internal/errors"
)

// XLSX extracts workbooks, one page per non-empty sheet. Each cell becomes
// a "A1: value" line, with "  (formula: =...)" appended for formula cells.
// Lines are ordered by cell reference as text.
type XLSX struct{}

var _ Extractor = (*XLSX)(nil)

// NewXLSX creates a spreadsheet extractor for .xlsx and .xlsm files.
// Legacy binary .xls workbooks are rejected.
func NewXLSX() *XLSX {
	return &XLSX{}
}

// Extract implements Extractor.
func (x *XLSX) Extract(ctx context.Context, file string) ([]Page, error) {
	wb, err := excelize.OpenFile(file)
	if err != nil {
		if strings.EqualFold(filepath.Ext(file), ".xls") {
			return nil, docerrors.New(docerrors.ErrCodeUnsupportedType,
				"legacy binary .xls workbooks are not supported", err).
				WithDetail("path", file).
				WithSuggestion("Save the workbook as .xlsx and ingest again")
		}
		return nil, openError(file, err)
	}
	defer func() { _ = wb.Close() }()

	var pages []Page
	for i, sheet := range wb.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		text, cells, err := sheetText(wb, sheet)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
		}
		if text == "" {
			continue
		}
		pages = append(pages, Page{
			Number:     i + 1,
			Text:       text,
			SheetTitle: sheet,
			TotalCells: cells,
		})
	}
	return pages, nil
}

// sheetText renders the sheet's cells and returns the cell count, which
// covers every cell up to the last non-empty one of each row.
func sheetText(wb *excelize.File, sheet string) (string, int, error) {
	rows, err := wb.GetRows(sheet)
	if err != nil {
		return "", 0, err
	}

	type line struct {
		ref, text string
	}
	var (
		lines []line
		cells int
	)
	for r, row := range rows {
		for c, value := range row {
			cells++
			ref, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return "", 0, err
			}
			formula, err := wb.GetCellFormula(sheet, ref)
			if err != nil {
				return "", 0, err
			}
			// Formula cells without a cached result show their formula.
			if value == "" && formula != "" {
				value = "=" + formula
			}
			if value == "" {
				continue
			}
			text := ref + ": " + value
			if formula != "" {
				text += "  (formula: =" + formula + ")"
			}
			lines = append(lines, line{ref, text})
		}
	}

	sort.SliceStable(lines, func(i, j int) bool { return lines[i].ref < lines[j].ref })

	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.text
	}
	return strings.Join(out, "\n"), cells, nil
}
