// Package mining orchestrates a full market-basket analysis run:
// normalization, incidence matrix construction, level-wise frequent-itemset
// mining, association rule generation, and dataset statistics.
package mining

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/smartgrocer/basket-analytics-platform/internal/mining/apriori"
	"github.com/smartgrocer/basket-analytics-platform/internal/mining/itemset"
	"github.com/smartgrocer/basket-analytics-platform/internal/mining/matrix"
	"github.com/smartgrocer/basket-analytics-platform/internal/mining/rules"
	"github.com/smartgrocer/basket-analytics-platform/internal/mining/stats"
	"github.com/smartgrocer/basket-analytics-platform/internal/normalizer"
	"github.com/smartgrocer/basket-analytics-platform/pkg/config"
	"github.com/smartgrocer/basket-analytics-platform/pkg/resilience"
	"github.com/smartgrocer/basket-analytics-platform/pkg/tracing"
)

// Itemset is a frequent itemset with its support rounded for reporting.
type Itemset struct {
	Items   itemset.Itemset `json:"items"`
	Support float64         `json:"support"`
}

// Summary describes the work one run performed.
type Summary struct {
	RecordsIn           int   `json:"records_in"`
	RecordsKept         int   `json:"records_kept"`
	CandidatesGenerated int   `json:"candidates_generated"`
	CandidatesPruned    int   `json:"candidates_pruned"`
	Levels              int   `json:"levels"`
	DurationMs          int64 `json:"duration_ms"`
}

// Result holds everything one run produces. The engine keeps no reference to
// it; results live and die with the caller.
type Result struct {
	Itemsets []Itemset    `json:"itemsets"`
	Rules    []rules.Rule `json:"rules"`
	Stats    stats.Stats  `json:"stats"`
	Summary  Summary      `json:"summary"`
}

// Engine wires the mining stages together under one worker budget.
type Engine struct {
	miner  *apriori.Miner
	cfg    config.MiningConfig
	logger *slog.Logger
}

func NewEngine(cfg config.MiningConfig) *Engine {
	return &Engine{
		miner:  apriori.NewMiner(cfg.Workers),
		cfg:    cfg,
		logger: slog.Default().With("component", "mining"),
	}
}

// DefaultParams returns the configured fallback thresholds, applied when a
// request omits them.
func (e *Engine) DefaultParams() Params {
	return Params{
		MinSupport:    e.cfg.DefaultMinSupport,
		MinConfidence: e.cfg.DefaultMinConfidence,
		MaxLen:        e.cfg.MaxItemsetLen,
	}
}

// Run executes one analysis over raw records. Input is normalized first, so
// callers pass records as ingested. Empty input yields an empty Result, not
// an error; the error conditions are invalid params, ctx cancellation, and
// the configured run timeout.
func (e *Engine) Run(ctx context.Context, records []normalizer.Record, params Params) (*Result, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	var result *Result
	err := resilience.WithTimeout(ctx, e.cfg.RunTimeout, "mining-run", func(ctx context.Context) error {
		run, err := e.mine(ctx, records, params)
		if err != nil {
			return err
		}
		result = run
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) mine(ctx context.Context, records []normalizer.Record, params Params) (*Result, error) {
	start := time.Now()

	ctx, span := tracing.StartChildSpan(ctx, "mining.run")
	defer span.End()

	_, normSpan := tracing.StartChildSpan(ctx, "mining.normalize")
	normalized := normalizer.Normalize(records)
	normSpan.SetAttr("records_in", len(records))
	normSpan.SetAttr("records_kept", len(normalized))
	normSpan.End()

	_, buildSpan := tracing.StartChildSpan(ctx, "mining.matrix")
	mx := matrix.Build(normalized)
	buildSpan.SetAttr("groups", mx.GroupCount())
	buildSpan.SetAttr("items", mx.ItemCount())
	buildSpan.End()

	mineCtx, mineSpan := tracing.StartChildSpan(ctx, "mining.apriori")
	frequents, summary, err := e.miner.Mine(mineCtx, mx, params.MinSupport, params.MaxLen)
	mineSpan.SetAttr("frequent_itemsets", len(frequents))
	mineSpan.End()
	if err != nil {
		return nil, fmt.Errorf("mining itemsets: %w", err)
	}

	ruleCtx, ruleSpan := tracing.StartChildSpan(ctx, "mining.rules")
	ruleSet, err := rules.Generate(ruleCtx, frequents, params.MinConfidence, e.cfg.Workers)
	ruleSpan.SetAttr("rules", len(ruleSet))
	ruleSpan.End()
	if err != nil {
		return nil, fmt.Errorf("generating rules: %w", err)
	}
	if ruleSet == nil {
		ruleSet = []rules.Rule{}
	}

	result := &Result{
		Itemsets: roundItemsets(frequents),
		Rules:    ruleSet,
		Stats:    stats.Compute(mx, normalized, e.cfg.TopItems),
		Summary: Summary{
			RecordsIn:           len(records),
			RecordsKept:         len(normalized),
			CandidatesGenerated: summary.CandidatesGenerated,
			CandidatesPruned:    summary.CandidatesPruned,
			Levels:              summary.Levels,
			DurationMs:          time.Since(start).Milliseconds(),
		},
	}
	e.logger.Info("mining run complete",
		"groups", mx.GroupCount(),
		"items", mx.ItemCount(),
		"itemsets", len(result.Itemsets),
		"rules", len(result.Rules),
		"levels", result.Summary.Levels,
		"duration_ms", result.Summary.DurationMs,
	)
	return result, nil
}

// DatasetStats normalizes records and computes descriptive statistics
// without mining. topN <= 0 falls back to the configured item limit.
func (e *Engine) DatasetStats(ctx context.Context, records []normalizer.Record, topN int) (stats.Stats, error) {
	if err := ctx.Err(); err != nil {
		return stats.Stats{}, err
	}
	if topN <= 0 {
		topN = e.cfg.TopItems
	}

	_, span := tracing.StartChildSpan(ctx, "mining.stats")
	defer span.End()

	normalized := normalizer.Normalize(records)
	mx := matrix.Build(normalized)
	span.SetAttr("groups", mx.GroupCount())
	span.SetAttr("items", mx.ItemCount())
	return stats.Compute(mx, normalized, topN), nil
}

// roundItemsets rounds supports to the reporting precision. Threshold checks
// already happened on the exact values inside the miner.
func roundItemsets(frequents []apriori.FrequentItemset) []Itemset {
	out := make([]Itemset, 0, len(frequents))
	for _, f := range frequents {
		out = append(out, Itemset{
			Items:   f.Items,
			Support: math.Round(f.Support*1000) / 1000,
		})
	}
	return out
}
