// Package rules expands frequent itemsets into association rules and scores
// them. Every non-empty proper subset of a frequent itemset becomes a
// candidate antecedent; confidence filters the candidates and lift orders the
// survivors. All supports come from the mining pass; rule generation never
// rescans the matrix.
package rules

import (
	"context"
	"log/slog"
	"math"
	"sort"

	"github.com/smartgrocer/basket-analytics-platform/internal/mining/apriori"
	"github.com/smartgrocer/basket-analytics-platform/internal/mining/itemset"
	"golang.org/x/sync/errgroup"
)

// Rule is one scored association rule. Support, Confidence, and Lift are
// rounded to three decimals; the confidence threshold was applied to the
// unrounded value before rounding.
type Rule struct {
	Antecedent itemset.Itemset `json:"antecedent"`
	Consequent itemset.Itemset `json:"consequent"`
	Support    float64         `json:"support"`
	Confidence float64         `json:"confidence"`
	Lift       float64         `json:"lift"`
}

// Generate derives all rules meeting minConfidence from the frequent
// itemsets. Rules are sorted by lift descending; ties keep antecedent size
// ascending and then generation order, so output is deterministic.
//
// Workers bounds the per-itemset fan-out. The only error condition is ctx
// cancellation; no qualifying rules is a valid empty result.
func Generate(ctx context.Context, frequents []apriori.FrequentItemset, minConfidence float64, workers int) ([]Rule, error) {
	if workers < 1 {
		workers = 1
	}
	supports := make(map[string]float64, len(frequents))
	for _, f := range frequents {
		supports[f.Items.Key()] = f.Support
	}

	// Each itemset expands independently into its own block; concatenating
	// blocks in itemset order keeps the generation order stable no matter
	// how the goroutines are scheduled.
	blocks := make([][]Rule, len(frequents))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, f := range frequents {
		if len(f.Items) < 2 {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			blocks[i] = expand(f, supports, minConfidence)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Rule
	for _, block := range blocks {
		out = append(out, block...)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Lift != out[j].Lift {
			return out[i].Lift > out[j].Lift
		}
		return len(out[i].Antecedent) < len(out[j].Antecedent)
	})

	slog.Default().With("component", "rules").Debug("rules generated",
		"frequent_itemsets", len(frequents),
		"rules", len(out),
		"min_confidence", minConfidence,
	)
	return out, nil
}

// expand produces the rules of a single frequent itemset, antecedents
// enumerated by size ascending. Subsets of a frequent itemset are themselves
// frequent, so their supports are always in the map; a miss means the caller
// passed a truncated mining result, and the split is skipped.
func expand(f apriori.FrequentItemset, supports map[string]float64, minConfidence float64) []Rule {
	var out []Rule
	for _, antecedent := range f.Items.ProperSubsets() {
		suppA, ok := supports[antecedent.Key()]
		if !ok || suppA == 0 {
			continue
		}
		confidence := f.Support / suppA
		if confidence < minConfidence {
			continue
		}
		consequent := f.Items.Minus(antecedent)
		suppC, ok := supports[consequent.Key()]
		if !ok || suppC == 0 {
			continue
		}
		out = append(out, Rule{
			Antecedent: antecedent,
			Consequent: consequent,
			Support:    round3(f.Support),
			Confidence: round3(confidence),
			Lift:       round3(confidence / suppC),
		})
	}
	return out
}

// round3 rounds to three decimal places, the precision rules are reported at.
func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}
