// Package apriori implements level-wise frequent-itemset mining. Each level k
// joins the frequent (k-1)-itemsets into size-k candidates, prunes candidates
// with an infrequent subset before any counting happens, then counts the
// survivors against the incidence matrix in parallel.
package apriori

import (
	"context"
	"log/slog"

	"github.com/smartgrocer/basket-analytics-platform/internal/mining/itemset"
	"github.com/smartgrocer/basket-analytics-platform/internal/mining/matrix"
	"golang.org/x/sync/errgroup"
)

// FrequentItemset pairs an itemset with its exact, unrounded support.
type FrequentItemset struct {
	Items   itemset.Itemset
	Support float64
}

// Summary reports what a mining pass did, for metrics and run audits.
type Summary struct {
	CandidatesGenerated int
	CandidatesPruned    int
	Levels              int
}

// Miner runs the level-wise search. The worker count bounds the support
// counting fan-out; zero or negative means serial.
type Miner struct {
	workers int
	logger  *slog.Logger
}

// NewMiner creates a Miner with the given counting parallelism.
func NewMiner(workers int) *Miner {
	if workers < 1 {
		workers = 1
	}
	return &Miner{
		workers: workers,
		logger:  slog.Default().With("component", "apriori"),
	}
}

// Mine returns every itemset whose support meets minSupport, in discovery
// order: level 1 first, then level 2, and so on; within a level candidates
// keep their generation order. maxLen caps the largest itemset size, 0 means
// unbounded. Threshold comparison is inclusive and uses unrounded supports.
//
// The only error condition is ctx cancellation; an empty result is a valid
// outcome, not an error.
func (m *Miner) Mine(ctx context.Context, mx *matrix.Matrix, minSupport float64, maxLen int) ([]FrequentItemset, Summary, error) {
	var summary Summary

	n := mx.GroupCount()
	if n == 0 {
		return nil, summary, nil
	}

	frequent := m.seed(mx, minSupport)
	summary.CandidatesGenerated = mx.ItemCount()
	if len(frequent) == 0 {
		m.logger.Debug("no frequent single items", "min_support", minSupport)
		return nil, summary, nil
	}
	summary.Levels = 1

	all := make([]FrequentItemset, len(frequent))
	copy(all, frequent)

	prev := frequent
	for k := 2; maxLen == 0 || k <= maxLen; k++ {
		candidates := generate(prev)
		if len(candidates) == 0 {
			break
		}
		summary.CandidatesGenerated += len(candidates)

		survivors := prune(candidates, prev)
		summary.CandidatesPruned += len(candidates) - len(survivors)
		if len(survivors) == 0 {
			break
		}

		counted, err := m.count(ctx, mx, survivors)
		if err != nil {
			return nil, summary, err
		}

		level := make([]FrequentItemset, 0, len(counted))
		for i, c := range survivors {
			support := float64(counted[i]) / float64(n)
			if support >= minSupport {
				level = append(level, FrequentItemset{Items: c, Support: support})
			}
		}
		m.logger.Debug("level mined",
			"k", k,
			"candidates", len(candidates),
			"pruned", len(candidates)-len(survivors),
			"frequent", len(level),
		)
		if len(level) == 0 {
			break
		}
		summary.Levels = k
		all = append(all, level...)
		prev = level
	}

	return all, summary, nil
}

// seed computes level 1: every distinct item with support at or above the
// threshold, in sorted item order.
func (m *Miner) seed(mx *matrix.Matrix, minSupport float64) []FrequentItemset {
	n := mx.GroupCount()
	frequent := make([]FrequentItemset, 0, mx.ItemCount())
	for _, item := range mx.Items() {
		support := float64(mx.ItemGroupCount(item)) / float64(n)
		if support >= minSupport {
			frequent = append(frequent, FrequentItemset{
				Items:   itemset.Itemset{item},
				Support: support,
			})
		}
	}
	return frequent
}

// generate joins pairs of frequent (k-1)-itemsets into size-k candidates.
// Because itemsets are canonically sorted and the previous level is in
// lexicographic order, two itemsets sharing their first k-2 items produce
// exactly the unions the join step requires, already deduplicated: any size-k
// set whose subsets are all frequent arises from the pair formed by dropping
// its last and second-to-last items.
func generate(prev []FrequentItemset) []itemset.Itemset {
	var candidates []itemset.Itemset
	for i := 0; i < len(prev); i++ {
		for j := i + 1; j < len(prev); j++ {
			a, b := prev[i].Items, prev[j].Items
			if !sharePrefix(a, b) {
				// prev is lexicographically ordered, so later j cannot
				// share a's prefix either.
				break
			}
			candidates = append(candidates, a.Union(b))
		}
	}
	return candidates
}

// sharePrefix reports whether a and b agree on all but their last item.
func sharePrefix(a, b itemset.Itemset) bool {
	for i := 0; i < len(a)-1; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// prune drops candidates with any (k-1)-subset missing from the previous
// level. This runs before counting: an infrequent subset already proves the
// candidate infrequent, so scanning the matrix for it would be wasted work.
func prune(candidates []itemset.Itemset, prev []FrequentItemset) []itemset.Itemset {
	prevKeys := make(map[string]struct{}, len(prev))
	for _, f := range prev {
		prevKeys[f.Items.Key()] = struct{}{}
	}
	survivors := make([]itemset.Itemset, 0, len(candidates))
	for _, c := range candidates {
		ok := true
		for _, sub := range c.WithoutEach() {
			if _, frequent := prevKeys[sub.Key()]; !frequent {
				ok = false
				break
			}
		}
		if ok {
			survivors = append(survivors, c)
		}
	}
	return survivors
}

// count computes the support count of every candidate concurrently. Results
// land in a slice indexed by candidate position, so worker scheduling cannot
// reorder them; the matrix is read-only for the whole run, so no locking is
// needed.
func (m *Miner) count(ctx context.Context, mx *matrix.Matrix, candidates []itemset.Itemset) ([]int, error) {
	counts := make([]int, len(candidates))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for i, c := range candidates {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			counts[i] = mx.SupportCount(c)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return counts, nil
}
