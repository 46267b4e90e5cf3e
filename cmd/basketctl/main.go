// Command basketctl is the operator CLI for the basket analytics platform.
//
// It runs the mining engine in-process against local CSV files, producing
// CSV, XLSX, or JSON reports with no services running, and manages the
// gateway's API keys in PostgreSQL.
//
// Usage:
//
//	basketctl analyze --input transactions.csv --format xlsx --out report.xlsx
//	basketctl stats --input transactions.csv
//	basketctl keys create --name dashboard --rate-limit 120
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "basketctl",
	Short:         "Operator CLI for the basket analytics platform",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
