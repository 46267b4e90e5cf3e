package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/smartgrocer/basket-analytics-platform/internal/mining"
	"github.com/smartgrocer/basket-analytics-platform/internal/normalizer"
	"github.com/smartgrocer/basket-analytics-platform/internal/reporter"
	"github.com/smartgrocer/basket-analytics-platform/pkg/config"
	"github.com/smartgrocer/basket-analytics-platform/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	analyzeInput   string
	analyzeMinSup  float64
	analyzeMinConf float64
	analyzeMaxLen  int
	analyzeFormat  string
	analyzeOut     string

	analyzeCmd = &cobra.Command{
		Use:   "analyze",
		Short: "Mine frequent itemsets and association rules from a CSV file",
		Long: `Analyze runs the mining engine in-process over a transactions CSV
(Member_number, Date, itemDescription columns) and writes the frequent
itemsets, association rules, and dataset statistics as CSV, XLSX, or JSON.
With --format json and no --out the report goes to stdout.`,
		RunE: runAnalyze,
	}
)

func init() {
	analyzeCmd.Flags().StringVar(&analyzeInput, "input", "", "transactions CSV file (required)")
	analyzeCmd.Flags().Float64Var(&analyzeMinSup, "min-support", 0.5, "minimum itemset support in (0,1]")
	analyzeCmd.Flags().Float64Var(&analyzeMinConf, "min-confidence", 0.6, "minimum rule confidence in (0,1]")
	analyzeCmd.Flags().IntVar(&analyzeMaxLen, "max-len", 0, "maximum itemset length, 0 for unbounded")
	analyzeCmd.Flags().StringVar(&analyzeFormat, "format", "json", "report format: csv, xlsx, or json")
	analyzeCmd.Flags().StringVar(&analyzeOut, "out", "", "output path (default report.<format>)")
	analyzeCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	logger.Setup("warn", "text")

	format, err := reporter.ParseFormat(analyzeFormat)
	if err != nil {
		return err
	}

	records, report, err := readTransactions(analyzeInput)
	if err != nil {
		return err
	}

	engine := mining.NewEngine(config.MiningConfig{Workers: runtime.NumCPU(), TopItems: 10})
	result, err := engine.Run(cmd.Context(), records, mining.Params{
		MinSupport:    analyzeMinSup,
		MinConfidence: analyzeMinConf,
		MaxLen:        analyzeMaxLen,
	})
	if err != nil {
		return err
	}

	if analyzeOut == "" && format == reporter.FormatJSON {
		return reporter.WriteJSON(os.Stdout, result)
	}
	out := analyzeOut
	if out == "" {
		out = "report." + string(format)
	}
	written, err := reporter.SaveResult(out, result, format)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "%d rows read (%d dropped), %d itemsets, %d rules in %dms\n",
		report.Rows, report.Dropped, len(result.Itemsets), len(result.Rules), result.Summary.DurationMs)
	for _, path := range written {
		fmt.Println(path)
	}
	return nil
}

func readTransactions(path string) ([]normalizer.Record, normalizer.CSVReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, normalizer.CSVReport{}, err
	}
	defer f.Close()

	records, report, err := normalizer.ReadCSV(f)
	if err != nil {
		return nil, report, fmt.Errorf("parsing %s: %w", path, err)
	}
	return records, report, nil
}
