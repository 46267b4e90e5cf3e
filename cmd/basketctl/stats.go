package main

import (
	"encoding/json"
	"os"
	"runtime"

	"github.com/smartgrocer/basket-analytics-platform/internal/mining"
	"github.com/smartgrocer/basket-analytics-platform/pkg/config"
	"github.com/smartgrocer/basket-analytics-platform/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	statsInput string
	statsTop   int

	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Print dataset statistics for a CSV file without mining",
		RunE:  runStats,
	}
)

func init() {
	statsCmd.Flags().StringVar(&statsInput, "input", "", "transactions CSV file (required)")
	statsCmd.Flags().IntVar(&statsTop, "top", 10, "how many top items and groups to rank")
	statsCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	logger.Setup("warn", "text")

	records, _, err := readTransactions(statsInput)
	if err != nil {
		return err
	}

	engine := mining.NewEngine(config.MiningConfig{Workers: runtime.NumCPU(), TopItems: statsTop})
	s, err := engine.DatasetStats(cmd.Context(), records, statsTop)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}
