// Package normalizer turns raw transaction rows into the canonical
// (group, item) records the mining engine consumes. It trims and case-folds
// identifiers, drops incomplete rows, and collapses duplicate (group, item)
// pairs to a single record; purchase multiplicity never matters downstream,
// only presence.
package normalizer

import (
	"strings"
	"time"
)

// DateLayout is the day-month-year format transaction dates arrive in.
const DateLayout = "02-01-2006"

// Record is one normalized (group, item) observation. Date is optional; a
// zero Date excludes the record from date-bucketed statistics but not from
// mining.
type Record struct {
	Group string    `json:"group"`
	Item  string    `json:"item"`
	Date  time.Time `json:"date,omitempty"`
}

// Normalize cleans raw records: identifiers are trimmed and lower-cased,
// records with an empty group or item are dropped, and duplicate
// (group, item) pairs collapse to the first occurrence (its date wins).
// Input order is preserved for the survivors, which fixes the first-seen
// order statistics rely on.
func Normalize(records []Record) []Record {
	if len(records) == 0 {
		return nil
	}
	type pairKey struct {
		group string
		item  string
	}
	seen := make(map[pairKey]struct{}, len(records))
	out := make([]Record, 0, len(records))
	for _, r := range records {
		group := strings.ToLower(strings.TrimSpace(r.Group))
		item := strings.ToLower(strings.TrimSpace(r.Item))
		if group == "" || item == "" {
			continue
		}
		key := pairKey{group: group, item: item}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, Record{Group: group, Item: item, Date: r.Date})
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// ParseDate parses a transaction date in DateLayout. The zero time and nil
// are returned for an empty string so optional dates stay optional.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(DateLayout, s)
}
