// Package reporter renders mining results as CSV tables, XLSX workbooks, or
// JSON documents for download and offline analysis.
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/smartgrocer/basket-analytics-platform/internal/mining"
	"github.com/smartgrocer/basket-analytics-platform/internal/mining/rules"
	"github.com/xuri/excelize/v2"
)

// Format selects a report output format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
)

// ParseFormat maps a user-supplied format name to a Format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatCSV, FormatXLSX, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown report format %q (want csv, xlsx, or json)", s)
	}
}

// SaveResult writes the result to disk in the given format and returns the
// paths written. CSV produces two files derived from path, one per table;
// the other formats produce exactly the named file.
func SaveResult(path string, result *mining.Result, format Format) ([]string, error) {
	switch format {
	case FormatJSON:
		if err := writeFile(path, func(w io.Writer) error { return WriteJSON(w, result) }); err != nil {
			return nil, err
		}
		return []string{path}, nil
	case FormatXLSX:
		if err := writeFile(path, func(w io.Writer) error { return WriteXLSX(w, result) }); err != nil {
			return nil, err
		}
		return []string{path}, nil
	case FormatCSV:
		base := strings.TrimSuffix(path, filepath.Ext(path))
		itemsetsPath := base + "_itemsets.csv"
		rulesPath := base + "_rules.csv"
		if err := writeFile(itemsetsPath, func(w io.Writer) error { return WriteItemsetsCSV(w, result.Itemsets) }); err != nil {
			return nil, err
		}
		if err := writeFile(rulesPath, func(w io.Writer) error { return WriteRulesCSV(w, result.Rules) }); err != nil {
			return nil, err
		}
		return []string{itemsetsPath, rulesPath}, nil
	default:
		return nil, fmt.Errorf("unknown report format %q", format)
	}
}

// WriteJSON writes the result as indented JSON, the same shape the mining
// endpoint returns.
func WriteJSON(w io.Writer, result *mining.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// WriteItemsetsCSV writes the frequent itemsets table. Items within a set
// are joined with ", " inside one cell.
func WriteItemsetsCSV(w io.Writer, itemsets []mining.Itemset) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"itemset", "support"}); err != nil {
		return err
	}
	for _, is := range itemsets {
		if err := cw.Write([]string{is.Items.String(), formatMetric(is.Support)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteRulesCSV writes the association rules table.
func WriteRulesCSV(w io.Writer, rs []rules.Rule) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"antecedent", "consequent", "support", "confidence", "lift"}); err != nil {
		return err
	}
	for _, r := range rs {
		record := []string{
			r.Antecedent.String(),
			r.Consequent.String(),
			formatMetric(r.Support),
			formatMetric(r.Confidence),
			formatMetric(r.Lift),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes a workbook with Itemsets, Rules, and Stats sheets.
func WriteXLSX(w io.Writer, result *mining.Result) error {
	f := excelize.NewFile()
	defer f.Close()

	itemsets := "Itemsets"
	if err := f.SetSheetName(f.GetSheetName(0), itemsets); err != nil {
		return err
	}
	if err := setRow(f, itemsets, 1, "Itemset", "Support"); err != nil {
		return err
	}
	for i, is := range result.Itemsets {
		if err := setRow(f, itemsets, i+2, is.Items.String(), is.Support); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet("Rules"); err != nil {
		return err
	}
	if err := setRow(f, "Rules", 1, "Antecedent", "Consequent", "Support", "Confidence", "Lift"); err != nil {
		return err
	}
	for i, r := range result.Rules {
		if err := setRow(f, "Rules", i+2, r.Antecedent.String(), r.Consequent.String(), r.Support, r.Confidence, r.Lift); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet("Stats"); err != nil {
		return err
	}
	if err := writeStatsSheet(f, result); err != nil {
		return err
	}

	_, err := f.WriteTo(w)
	return err
}

func writeStatsSheet(f *excelize.File, result *mining.Result) error {
	rows := [][]any{
		{"Groups", result.Stats.GroupCount},
		{"Distinct items", result.Stats.ItemCount},
		{"Mean items per group", result.Stats.MeanItemsPerGroup},
		{"Frequent itemsets", len(result.Itemsets)},
		{"Rules", len(result.Rules)},
		{"Levels", result.Summary.Levels},
		{"Candidates generated", result.Summary.CandidatesGenerated},
		{"Candidates pruned", result.Summary.CandidatesPruned},
		{"Duration (ms)", result.Summary.DurationMs},
	}
	for i, row := range rows {
		if err := setRow(f, "Stats", i+1, row...); err != nil {
			return err
		}
	}

	// Top-items ranking follows the scalar block after a spacer row.
	base := len(rows) + 2
	if err := setRow(f, "Stats", base, "Item", "Groups"); err != nil {
		return err
	}
	for i, item := range result.Stats.TopItems {
		if err := setRow(f, "Stats", base+1+i, item.Item, item.Count); err != nil {
			return err
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values ...any) error {
	for i, v := range values {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, fmt.Sprintf("%s%d", col, row), v); err != nil {
			return err
		}
	}
	return nil
}

func formatMetric(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	return nil
}
