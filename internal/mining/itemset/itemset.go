// Package itemset defines the canonical set representation shared by the
// mining and rules packages. An Itemset is a sorted, duplicate-free slice of
// items; because the order is canonical, {bread, milk} and {milk, bread}
// produce the same value and the same Key, so itemsets can act as map keys
// regardless of the order items arrived in.
package itemset

import (
	"sort"
	"strings"
)

// keySep joins items in Key. Items are normalized product tokens and never
// contain control characters.
const keySep = "\x1f"

// Itemset is a canonically sorted set of distinct items. Treat it as
// immutable: operations return new slices and never modify receivers.
type Itemset []string

// New builds an Itemset from arbitrary items, sorting and deduplicating.
func New(items ...string) Itemset {
	if len(items) == 0 {
		return nil
	}
	sorted := make([]string, len(items))
	copy(sorted, items)
	sort.Strings(sorted)
	out := sorted[:1]
	for _, item := range sorted[1:] {
		if item != out[len(out)-1] {
			out = append(out, item)
		}
	}
	return Itemset(out)
}

// Key returns the canonical string form used for map keys and cache keys.
func (s Itemset) Key() string {
	return strings.Join(s, keySep)
}

// String renders the itemset for display, items joined with ", ".
func (s Itemset) String() string {
	return strings.Join(s, ", ")
}

// Contains reports whether item is a member of s.
func (s Itemset) Contains(item string) bool {
	i := sort.SearchStrings(s, item)
	return i < len(s) && s[i] == item
}

// Equal reports whether s and other contain exactly the same items.
func (s Itemset) Equal(other Itemset) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Union merges two itemsets into a new sorted itemset.
func (s Itemset) Union(other Itemset) Itemset {
	out := make(Itemset, 0, len(s)+len(other))
	i, j := 0, 0
	for i < len(s) && j < len(other) {
		switch {
		case s[i] < other[j]:
			out = append(out, s[i])
			i++
		case s[i] > other[j]:
			out = append(out, other[j])
			j++
		default:
			out = append(out, s[i])
			i++
			j++
		}
	}
	out = append(out, s[i:]...)
	out = append(out, other[j:]...)
	return out
}

// Minus returns the items of s not present in other.
func (s Itemset) Minus(other Itemset) Itemset {
	out := make(Itemset, 0, len(s))
	for _, item := range s {
		if !other.Contains(item) {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// WithoutEach returns the size-(n-1) subsets of s, one per dropped item, in
// item order. This is the subset family the prune step checks.
func (s Itemset) WithoutEach() []Itemset {
	if len(s) < 2 {
		return nil
	}
	subsets := make([]Itemset, 0, len(s))
	for drop := range s {
		sub := make(Itemset, 0, len(s)-1)
		sub = append(sub, s[:drop]...)
		sub = append(sub, s[drop+1:]...)
		subsets = append(subsets, sub)
	}
	return subsets
}

// ProperSubsets enumerates every non-empty proper subset of s, ordered by
// size ascending and lexicographically within a size. The ordering is part of
// the rule-generation contract: it fixes the discovery order of rules derived
// from one itemset.
func (s Itemset) ProperSubsets() []Itemset {
	n := len(s)
	if n < 2 {
		return nil
	}
	var subsets []Itemset
	for size := 1; size < n; size++ {
		combinations(s, size, func(sub Itemset) {
			subsets = append(subsets, sub)
		})
	}
	return subsets
}

// combinations visits every size-k combination of s in lexicographic order.
// Each visited Itemset is freshly allocated.
func combinations(s Itemset, k int, visit func(Itemset)) {
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}
	for {
		sub := make(Itemset, k)
		for i, j := range idx {
			sub[i] = s[j]
		}
		visit(sub)

		// Advance the rightmost index that can still move.
		i := k - 1
		for i >= 0 && idx[i] == len(s)-k+i {
			i--
		}
		if i < 0 {
			return
		}
		idx[i]++
		for j := i + 1; j < k; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
}
