// Package matrix builds the group-by-item incidence structure that all
// support computations read from. A Matrix is built once per mining run from
// normalized records and is read-only afterwards, so concurrent support
// counting needs no locking.
package matrix

import (
	"sort"

	"github.com/smartgrocer/basket-analytics-platform/internal/mining/itemset"
	"github.com/smartgrocer/basket-analytics-platform/internal/normalizer"
)

// Matrix maps each group to the set of distinct items present in it. Groups
// with zero items cannot exist: a group only appears because a record
// referenced it, and every referenced item appears in at least one group.
type Matrix struct {
	groups     map[string]map[string]struct{}
	groupIDs   []string
	items      []string
	itemGroups map[string]int
}

// Build constructs the Matrix from normalized records. Empty input yields an
// empty matrix with a zero group count; callers treat that as "nothing can be
// frequent" rather than an error.
func Build(records []normalizer.Record) *Matrix {
	m := &Matrix{
		groups:     make(map[string]map[string]struct{}),
		itemGroups: make(map[string]int),
	}
	for _, r := range records {
		items, ok := m.groups[r.Group]
		if !ok {
			items = make(map[string]struct{})
			m.groups[r.Group] = items
		}
		if _, present := items[r.Item]; present {
			continue
		}
		items[r.Item] = struct{}{}
		m.itemGroups[r.Item]++
	}

	m.groupIDs = make([]string, 0, len(m.groups))
	for g := range m.groups {
		m.groupIDs = append(m.groupIDs, g)
	}
	sort.Strings(m.groupIDs)

	m.items = make([]string, 0, len(m.itemGroups))
	for item := range m.itemGroups {
		m.items = append(m.items, item)
	}
	sort.Strings(m.items)

	return m
}

// GroupCount returns N, the number of groups.
func (m *Matrix) GroupCount() int {
	return len(m.groupIDs)
}

// ItemCount returns the number of distinct items.
func (m *Matrix) ItemCount() int {
	return len(m.items)
}

// Items returns the distinct items in sorted order. Callers must not modify
// the returned slice.
func (m *Matrix) Items() []string {
	return m.items
}

// Groups returns the group IDs in sorted order. Callers must not modify the
// returned slice.
func (m *Matrix) Groups() []string {
	return m.groupIDs
}

// GroupItems reports the number of distinct items in a group.
func (m *Matrix) GroupItems(group string) int {
	return len(m.groups[group])
}

// ItemGroupCount reports how many groups contain the given item.
func (m *Matrix) ItemGroupCount(item string) int {
	return m.itemGroups[item]
}

// ContainsAll reports whether every item of set is present in group.
func (m *Matrix) ContainsAll(group string, set itemset.Itemset) bool {
	items, ok := m.groups[group]
	if !ok {
		return false
	}
	if len(set) > len(items) {
		return false
	}
	for _, item := range set {
		if _, present := items[item]; !present {
			return false
		}
	}
	return true
}

// SupportCount returns the number of groups whose item set is a superset of
// set. The empty itemset is contained in every group.
func (m *Matrix) SupportCount(set itemset.Itemset) int {
	if len(set) == 1 {
		return m.itemGroups[set[0]]
	}
	count := 0
	for _, g := range m.groupIDs {
		if m.ContainsAll(g, set) {
			count++
		}
	}
	return count
}

// Support returns SupportCount(set) as a fraction of the group count, 0 when
// the matrix is empty.
func (m *Matrix) Support(set itemset.Itemset) float64 {
	n := len(m.groupIDs)
	if n == 0 {
		return 0
	}
	return float64(m.SupportCount(set)) / float64(n)
}

// PresenceTotal returns the total number of (group, item) presence bits, the
// numerator of the mean-items-per-group statistic.
func (m *Matrix) PresenceTotal() int {
	total := 0
	for _, items := range m.groups {
		total += len(items)
	}
	return total
}
