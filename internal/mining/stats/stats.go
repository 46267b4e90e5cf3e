// Package stats derives dataset-level summaries reported alongside mining
// results. All figures come from the same normalized records the miner
// consumes, so counts and supports stay mutually consistent.
package stats

import (
	"math"
	"sort"
	"time"

	"github.com/smartgrocer/basket-analytics-platform/internal/mining/matrix"
	"github.com/smartgrocer/basket-analytics-platform/internal/normalizer"
)

// ItemCount ranks an item by the number of groups containing it.
type ItemCount struct {
	Item  string `json:"item"`
	Count int    `json:"count"`
}

// DateCount is the number of distinct groups observed on one date.
type DateCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Stats summarizes a dataset independently of mining parameters.
type Stats struct {
	GroupCount        int         `json:"group_count"`
	ItemCount         int         `json:"item_count"`
	MeanItemsPerGroup float64     `json:"mean_items_per_group"`
	TopItems          []ItemCount `json:"top_items"`
	GroupsByDate      []DateCount `json:"groups_by_date,omitempty"`
}

// Compute builds summary statistics from a built matrix and the normalized
// records it was built from. Records supply what the matrix discards: the
// order items were first seen (tie-break for TopItems) and dates
// (GroupsByDate). Records without a date are left out of GroupsByDate; if no
// record carries one the slice is empty.
func Compute(mx *matrix.Matrix, records []normalizer.Record, topN int) Stats {
	s := Stats{
		GroupCount: mx.GroupCount(),
		ItemCount:  mx.ItemCount(),
	}
	if s.GroupCount > 0 {
		s.MeanItemsPerGroup = round3(float64(mx.PresenceTotal()) / float64(s.GroupCount))
	}
	s.TopItems = topItems(mx, records, topN)
	s.GroupsByDate = groupsByDate(records)
	return s
}

func topItems(mx *matrix.Matrix, records []normalizer.Record, topN int) []ItemCount {
	items := mx.Items()
	if len(items) == 0 {
		return nil
	}

	firstSeen := make(map[string]int, len(items))
	for i, r := range records {
		if _, ok := firstSeen[r.Item]; !ok {
			firstSeen[r.Item] = i
		}
	}

	ranked := make([]ItemCount, 0, len(items))
	for _, item := range items {
		ranked = append(ranked, ItemCount{Item: item, Count: mx.ItemGroupCount(item)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return firstSeen[ranked[i].Item] < firstSeen[ranked[j].Item]
	})
	if topN > 0 && len(ranked) > topN {
		ranked = ranked[:topN]
	}
	return ranked
}

func groupsByDate(records []normalizer.Record) []DateCount {
	byDate := make(map[time.Time]map[string]struct{})
	for _, r := range records {
		if r.Date.IsZero() {
			continue
		}
		groups, ok := byDate[r.Date]
		if !ok {
			groups = make(map[string]struct{})
			byDate[r.Date] = groups
		}
		groups[r.Group] = struct{}{}
	}
	if len(byDate) == 0 {
		return nil
	}

	dates := make([]time.Time, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	counts := make([]DateCount, 0, len(dates))
	for _, d := range dates {
		counts = append(counts, DateCount{
			Date:  d.Format(normalizer.DateLayout),
			Count: len(byDate[d]),
		})
	}
	return counts
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}
