package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/clickconstruction/pipetooling/internal/bom"
)

func TestPurchaseOrderXLSX(t *testing.T) {
	hajoca := "hajoca"
	kit := "toilet-kit"
	po := bom.PurchaseOrder{ID: "po-1", Name: "Maple St - Takeoff 2026/03/14"}
	items := []bom.LineItem{
		{PartID: "wax-ring", Quantity: 3, PriceAtTime: 2, SelectedSupplySourceID: &hajoca, SequenceOrder: 6, SourceTemplateID: &kit},
		{PartID: "braided-line", Quantity: 6, SequenceOrder: 7, SourceTemplateID: &kit},
	}
	parts := map[string]bom.Part{"wax-ring": {ID: "wax-ring", Name: "Wax Ring"}}

	f, name, err := PurchaseOrderXLSX(po, items, parts)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, "PO_Maple St - Takeoff 2026-03-14.xlsx", name)

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	r, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer r.Close()
	rows, err := r.GetRows(sheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.Equal(t, headers, rows[0])
	assert.Equal(t, []string{"6", "Wax Ring", "wax-ring", "3", "hajoca", "2", "6", "toilet-kit"}, rows[1])
	assert.Equal(t, "braided-line", rows[2][1])
	assert.Equal(t, "", rows[2][4])
	assert.Equal(t, "Total", rows[3][1])
	assert.Equal(t, "6", rows[3][6])
}

type failingSheet struct {
	failAt int
	calls  int
}

func (s *failingSheet) SetCellValue(_, _ string, _ any) error {
	s.calls++
	if s.calls == s.failAt {
		return assert.AnError
	}
	return nil
}

func (s *failingSheet) SetCellStyle(_, _, _ string, _ int) error { return nil }

func (s *failingSheet) SetColWidth(_, _, _ string, _ float64) error { return nil }

func TestWriteSheet_StopsAtFirstError(t *testing.T) {
	items := []bom.LineItem{{PartID: "wax-ring", Quantity: 1, SequenceOrder: 1}}

	// the first value after the header row belongs to row 2
	w := &failingSheet{failAt: len(headers) + 1}
	err := writeSheet(w, items, nil, 0, 0)
	require.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "row 2")
	assert.Equal(t, len(headers)+1, w.calls)

	w = &failingSheet{failAt: 1}
	require.ErrorIs(t, writeSheet(w, items, nil, 0, 0), assert.AnError)
	assert.Equal(t, 1, w.calls)
}

func TestFilename_ReplacesControlCharacters(t *testing.T) {
	assert.Equal(t, "PO_Line-Two.xlsx", Filename(bom.PurchaseOrder{Name: "Line\nTwo"}))
	assert.Equal(t, "PO_po-9.xlsx", Filename(bom.PurchaseOrder{ID: "po-9"}))
}
