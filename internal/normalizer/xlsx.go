package normalizer

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// ExcelizeReader reads workbooks with github.com/xuri/excelize/v2.
type ExcelizeReader struct{}

// Rows implements SheetReader.
func (r *ExcelizeReader) Rows(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("Rows: opening workbook: %w", err)
	}
	defer f.Close()

	var all [][]string
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("Rows: reading sheet %q: %w", sheet, err)
		}
		all = append(all, rows...)
	}
	return all, nil
}
