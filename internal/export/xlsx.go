// Package export renders purchase orders as spreadsheets.
package export

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/xuri/excelize/v2"

	"github.com/clickconstruction/pipetooling/internal/bom"
)

const sheet = "Purchase Order"

var headers = []string{"#", "Part", "Part ID", "Quantity", "Supply House", "Unit Price", "Extended", "Source Template"}

var widths = []float64{6, 32, 20, 10, 18, 12, 12, 20}

// sheetWriter is the part of *excelize.File the layout uses.
type sheetWriter interface {
	SetCellValue(sheet, cell string, value any) error
	SetCellStyle(sheet, topLeft, bottomRight string, styleID int) error
	SetColWidth(sheet, startCol, endCol string, width float64) error
}

// PurchaseOrderXLSX lays out the order's items in sequence order with an
// extended-cost column and a total row. parts supplies display names;
// unknown parts show their id. The caller closes the returned file.
func PurchaseOrderXLSX(po bom.PurchaseOrder, items []bom.LineItem, parts map[string]bom.Part) (*excelize.File, string, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		f.Close()
		return nil, "", fmt.Errorf("rename sheet: %w", err)
	}

	header, err := f.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Bold: true, Size: 11},
		Fill:   excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{{Type: "bottom", Color: "000000", Style: 1}},
	})
	if err != nil {
		f.Close()
		return nil, "", fmt.Errorf("header style: %w", err)
	}
	total, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, "", fmt.Errorf("total style: %w", err)
	}

	if err := writeSheet(f, items, parts, header, total); err != nil {
		f.Close()
		return nil, "", err
	}
	return f, Filename(po), nil
}

// writeSheet stops at the first failed write.
func writeSheet(w sheetWriter, items []bom.LineItem, parts map[string]bom.Part, headerStyle, totalStyle int) error {
	last, _ := excelize.ColumnNumberToName(len(headers))

	for i, h := range headers {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := w.SetCellValue(sheet, col+"1", h); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	if err := w.SetCellStyle(sheet, "A1", last+"1", headerStyle); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	var sum float64
	for i, it := range items {
		row := i + 2
		name := it.PartID
		if p, ok := parts[it.PartID]; ok && p.Name != "" {
			name = p.Name
		}
		extended := it.Quantity * it.PriceAtTime
		sum += extended

		cells := []any{it.SequenceOrder, name, it.PartID, it.Quantity, nil, it.PriceAtTime, extended, nil}
		if it.SelectedSupplySourceID != nil {
			cells[4] = *it.SelectedSupplySourceID
		}
		if it.SourceTemplateID != nil {
			cells[7] = *it.SourceTemplateID
		}
		for c, v := range cells {
			if v == nil {
				continue
			}
			col, _ := excelize.ColumnNumberToName(c + 1)
			if err := w.SetCellValue(sheet, fmt.Sprintf("%s%d", col, row), v); err != nil {
				return fmt.Errorf("write row %d (part %s): %w", row, it.PartID, err)
			}
		}
	}

	totalRow := len(items) + 2
	if err := w.SetCellValue(sheet, fmt.Sprintf("B%d", totalRow), "Total"); err != nil {
		return fmt.Errorf("write total: %w", err)
	}
	if err := w.SetCellValue(sheet, fmt.Sprintf("G%d", totalRow), sum); err != nil {
		return fmt.Errorf("write total: %w", err)
	}
	if err := w.SetCellStyle(sheet, fmt.Sprintf("A%d", totalRow), fmt.Sprintf("%s%d", last, totalRow), totalStyle); err != nil {
		return fmt.Errorf("style total: %w", err)
	}

	for i, width := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := w.SetColWidth(sheet, col, col, width); err != nil {
			return fmt.Errorf("set width %s: %w", col, err)
		}
	}
	return nil
}

// Filename is the download name for a purchase order export.
func Filename(po bom.PurchaseOrder) string {
	name := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return '-'
		}
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '-'
		}
		return r
	}, po.Name)
	if name == "" {
		name = po.ID
	}
	return "PO_" + name + ".xlsx"
}
