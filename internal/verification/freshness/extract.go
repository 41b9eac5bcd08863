// Package freshness verifies that an uploaded tabular document carries
// recent enough records. Extraction and classification are pure; the
// Service persists their outcome on the owning file.
package freshness

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// Extraction errors. The Service records these as a status+message pair on
// the owning file instead of letting them abort the caller's request.
var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrMissingDateColumn = errors.New("no date column found")
	ErrNoValidDates      = errors.New("no valid dates found")
	ErrUnreadable        = errors.New("file could not be parsed")
)

// dateColumn is the header token the extractor looks for, compared
// case-insensitively after trimming whitespace.
const dateColumn = "fecha"

// Extraction is the result of scanning a document's date column.
type Extraction struct {
	// MostRecent is the maximum valid date found in the column.
	MostRecent time.Time
	// RowCount is the number of data rows before invalid dates were
	// discarded, kept for diagnostics.
	RowCount int
}

// Extract loads a tabular document and returns the most recent date in its
// "fecha" column. Only .xlsx, .xls and .csv are accepted. Rows whose date
// cell cannot be coerced are discarded; if nothing remains the extraction
// fails with ErrNoValidDates. Pure read, no side effects.
func Extract(content []byte, ext string) (Extraction, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(strings.TrimSpace(ext)) {
	case ".xlsx":
		rows, err = readXLSX(content)
	case ".xls":
		rows, err = readXLS(content)
	case ".csv":
		rows, err = readCSV(content)
	default:
		return Extraction{}, ErrUnsupportedFormat
	}
	if err != nil {
		return Extraction{}, err
	}
	return extractFromRows(rows)
}

func extractFromRows(rows [][]string) (Extraction, error) {
	if len(rows) == 0 {
		return Extraction{}, ErrMissingDateColumn
	}

	col := -1
	for i, header := range rows[0] {
		if strings.EqualFold(strings.TrimSpace(header), dateColumn) {
			col = i
			break
		}
	}
	if col < 0 {
		return Extraction{}, ErrMissingDateColumn
	}

	data := rows[1:]
	var (
		mostRecent time.Time
		found      bool
	)
	for _, row := range data {
		if col >= len(row) {
			continue
		}
		parsed, ok := parseDate(row[col])
		if !ok {
			continue
		}
		if !found || parsed.After(mostRecent) {
			mostRecent = parsed
			found = true
		}
	}
	if !found {
		return Extraction{RowCount: len(data)}, ErrNoValidDates
	}
	return Extraction{MostRecent: mostRecent, RowCount: len(data)}, nil
}

// dateLayouts covers the formats seen in uploaded registers. Order matters:
// ISO first, then day-first variants common in es-CL spreadsheets.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"02/01/2006",
	"02-01-2006",
	"2/1/2006",
	"02/01/06",
	"2006/01/02",
	"01-02-06", // excelize default date style
	"1/2/06 15:04",
}

func parseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func readCSV(content []byte) ([][]string, error) {
	reader := csv.NewReader(bytes.NewReader(content))
	// Uploaded registers are rarely rectangular; tolerate ragged rows.
	reader.FieldsPerRecord = -1
	var rows [][]string
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errors.Join(ErrUnreadable, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func readXLSX(content []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, errors.Join(ErrUnreadable, err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrUnreadable
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, errors.Join(ErrUnreadable, err)
	}
	return rows, nil
}

func readXLS(content []byte) ([][]string, error) {
	wb, err := xls.OpenReader(bytes.NewReader(content), "utf-8")
	if err != nil {
		return nil, errors.Join(ErrUnreadable, err)
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, ErrUnreadable
	}

	var rows [][]string
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			continue
		}
		// Index by absolute column so sparse leading cells keep the
		// header and data columns aligned.
		cells := make([]string, row.LastCol())
		for c := row.FirstCol(); c < row.LastCol(); c++ {
			cells[c] = row.Col(c)
		}
		rows = append(rows, cells)
	}
	return rows, nil
}
