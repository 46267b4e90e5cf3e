package normalizer

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Column headers recognised in uploaded CSV files, matched case-insensitively.
// The column order is free and extra columns are ignored.
const (
	columnGroup = "member_number"
	columnDate  = "date"
	columnItem  = "itemdescription"
)

// CSVReport summarises a CSV parse: how many data rows were seen, how many
// produced records, and how many were dropped for missing required fields or
// unparseable dates.
type CSVReport struct {
	Rows     int `json:"rows"`
	Accepted int `json:"accepted"`
	Dropped  int `json:"dropped"`
	BadDates int `json:"bad_dates"`
}

// ReadCSV parses transaction rows from r. The first row must be a header
// containing Member_number and itemDescription columns; a Date column is
// optional. Returned records are raw; callers pass them through Normalize
// before handing them to the engine.
func ReadCSV(r io.Reader) ([]Record, CSVReport, error) {
	var report CSVReport

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, report, fmt.Errorf("csv is empty")
	}
	if err != nil {
		return nil, report, fmt.Errorf("reading csv header: %w", err)
	}

	groupIdx, dateIdx, itemIdx := -1, -1, -1
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))) {
		case columnGroup:
			groupIdx = i
		case columnDate:
			dateIdx = i
		case columnItem:
			itemIdx = i
		}
	}
	if groupIdx < 0 || itemIdx < 0 {
		return nil, report, fmt.Errorf("csv header missing required columns (need Member_number and itemDescription, got %v)", header)
	}

	logger := slog.Default().With("component", "csv-reader")
	var records []Record
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, report, fmt.Errorf("reading csv row %d: %w", report.Rows+2, err)
		}
		report.Rows++

		if groupIdx >= len(row) || itemIdx >= len(row) {
			report.Dropped++
			continue
		}
		rec := Record{
			Group: row[groupIdx],
			Item:  row[itemIdx],
		}
		if strings.TrimSpace(rec.Group) == "" || strings.TrimSpace(rec.Item) == "" {
			report.Dropped++
			continue
		}
		if dateIdx >= 0 && dateIdx < len(row) {
			date, err := ParseDate(row[dateIdx])
			if err != nil {
				report.BadDates++
			} else {
				rec.Date = date
			}
		}
		records = append(records, rec)
		report.Accepted++
	}

	if report.Dropped > 0 || report.BadDates > 0 {
		logger.Debug("csv parsed with drops",
			"rows", report.Rows,
			"accepted", report.Accepted,
			"dropped", report.Dropped,
			"bad_dates", report.BadDates,
		)
	}
	return records, report, nil
}
