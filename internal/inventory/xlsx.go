package inventory

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/erauner12/certview-mirror/internal/store"
)

// Required header names, matched case-insensitively after trimming.
const (
	colSerialNumber = "certificate serial number"
	colName         = "certificate name"
	colStatus       = "certificate status"
)

// ParseWorkbook reads the first sheet of an xlsx workbook into staging
// rows. The first row is the header; data rows with a blank serial number
// are skipped.
func ParseWorkbook(r io.Reader) ([]store.InventoryRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &InputError{Reason: fmt.Sprintf("unreadable workbook: %v", err)}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &InputError{Reason: "workbook has no sheets"}
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, &InputError{Reason: fmt.Sprintf("read sheet %q: %v", sheets[0], err)}
	}
	if len(rows) == 0 {
		return nil, &InputError{Reason: "workbook has no header row"}
	}

	index := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}

	var missing []string
	for _, col := range []string{colSerialNumber, colName, colStatus} {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &InputError{MissingColumns: missing}
	}

	out := make([]store.InventoryRow, 0, len(rows)-1)
	for _, row := range rows[1:] {
		serial := strings.TrimSpace(cell(row, index[colSerialNumber]))
		if serial == "" {
			continue
		}
		out = append(out, store.InventoryRow{
			SerialNumber:      serial,
			CertificateName:   strings.TrimSpace(cell(row, index[colName])),
			CertificateStatus: strings.TrimSpace(cell(row, index[colStatus])),
		})
	}
	return out, nil
}

// cell reads a column by index. excelize trims trailing empty cells from
// each row, so short rows are expected.
func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}
