package ingest

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/linnemanlabs/ventwatch/internal/emission"
)

// ParseXLSX decodes the first worksheet of a workbook. Row 1 is the header.
// Cells are read unformatted, so numbers keep full precision and date cells
// arrive as serial day counts that are converted to UTC timestamps.
func ParseXLSX(r io.Reader) ([]emission.ImportRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only workbook

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, &emission.ValidationError{Field: "file", Reason: "workbook has no sheets"}
	}
	cells, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(cells) == 0 {
		return nil, &emission.ValidationError{Field: "file", Reason: "empty"}
	}

	h, err := newHeader(cells[0], detectionColumns)
	if err != nil {
		return nil, err
	}
	recs := make([]record, 0, len(cells)-1)
	date1904 := workbookUses1904(f)
	for i, row := range cells[1:] {
		serialToTimestamp(row, h["detected_at_utc"], date1904)
		recs = append(recs, record{line: i + 2, fields: row})
	}
	return detectionRows(h, recs), nil
}

// serialToTimestamp rewrites a numeric date cell in place. Text cells are left
// for parseTime.
func serialToTimestamp(row []string, col int, date1904 bool) {
	if col >= len(row) {
		return
	}
	serial, err := strconv.ParseFloat(strings.TrimSpace(row[col]), 64)
	if err != nil {
		return
	}
	t, err := excelize.ExcelDateToTime(serial, date1904)
	if err != nil {
		return
	}
	row[col] = t.Round(time.Millisecond).UTC().Format(time.RFC3339Nano)
}

func workbookUses1904(f *excelize.File) bool {
	props, err := f.GetWorkbookProps()
	if err != nil || props.Date1904 == nil {
		return false
	}
	return *props.Date1904
}
