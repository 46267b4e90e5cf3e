package matrix

import (
	"math"
	"reflect"
	"testing"

	"github.com/smartgrocer/basket-analytics-platform/internal/mining/itemset"
	"github.com/smartgrocer/basket-analytics-platform/internal/normalizer"
)

// fourBaskets is the reference dataset used across the mining packages:
// g1:{milk,bread} g2:{milk,butter} g3:{milk,bread,butter} g4:{bread}.
func fourBaskets() []normalizer.Record {
	return []normalizer.Record{
		{Group: "g1", Item: "milk"},
		{Group: "g1", Item: "bread"},
		{Group: "g2", Item: "milk"},
		{Group: "g2", Item: "butter"},
		{Group: "g3", Item: "milk"},
		{Group: "g3", Item: "bread"},
		{Group: "g3", Item: "butter"},
		{Group: "g4", Item: "bread"},
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestBuildCounts(t *testing.T) {
	m := Build(fourBaskets())
	if m.GroupCount() != 4 {
		t.Errorf("GroupCount = %d, want 4", m.GroupCount())
	}
	if m.ItemCount() != 3 {
		t.Errorf("ItemCount = %d, want 3", m.ItemCount())
	}
	wantItems := []string{"bread", "butter", "milk"}
	if !reflect.DeepEqual(m.Items(), wantItems) {
		t.Errorf("Items = %v, want %v", m.Items(), wantItems)
	}
	wantGroups := []string{"g1", "g2", "g3", "g4"}
	if !reflect.DeepEqual(m.Groups(), wantGroups) {
		t.Errorf("Groups = %v, want %v", m.Groups(), wantGroups)
	}
}

func TestBuildIgnoresMultiplicity(t *testing.T) {
	m := Build([]normalizer.Record{
		{Group: "g1", Item: "milk"},
		{Group: "g1", Item: "milk"},
		{Group: "g1", Item: "milk"},
	})
	if got := m.ItemGroupCount("milk"); got != 1 {
		t.Errorf("ItemGroupCount(milk) = %d, want 1 (presence, not multiplicity)", got)
	}
	if got := m.GroupItems("g1"); got != 1 {
		t.Errorf("GroupItems(g1) = %d, want 1", got)
	}
}

func TestSupport(t *testing.T) {
	m := Build(fourBaskets())
	tests := []struct {
		name string
		set  itemset.Itemset
		want float64
	}{
		{"milk", itemset.New("milk"), 0.75},
		{"bread", itemset.New("bread"), 0.75},
		{"butter", itemset.New("butter"), 0.5},
		{"milk_bread", itemset.New("milk", "bread"), 0.5},
		{"milk_butter", itemset.New("milk", "butter"), 0.5},
		{"bread_butter", itemset.New("bread", "butter"), 0.25},
		{"all_three", itemset.New("milk", "bread", "butter"), 0.25},
		{"absent_item", itemset.New("yogurt"), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.Support(tt.set); !almostEqual(got, tt.want) {
				t.Errorf("Support(%v) = %v, want %v", tt.set, got, tt.want)
			}
		})
	}
}

func TestSupportIdempotent(t *testing.T) {
	m := Build(fourBaskets())
	set := itemset.New("milk", "bread")
	first := m.Support(set)
	for i := 0; i < 5; i++ {
		if got := m.Support(set); got != first {
			t.Fatalf("Support changed between calls: %v then %v", first, got)
		}
	}
}

func TestAntiMonotonicity(t *testing.T) {
	m := Build(fourBaskets())
	sets := []itemset.Itemset{
		itemset.New("milk"),
		itemset.New("bread"),
		itemset.New("butter"),
		itemset.New("milk", "bread"),
		itemset.New("milk", "butter"),
		itemset.New("bread", "butter"),
		itemset.New("milk", "bread", "butter"),
	}
	isSubset := func(small, big itemset.Itemset) bool {
		for _, item := range small {
			if !big.Contains(item) {
				return false
			}
		}
		return true
	}
	for _, small := range sets {
		for _, big := range sets {
			if len(small) >= len(big) || !isSubset(small, big) {
				continue
			}
			if m.Support(small) < m.Support(big) {
				t.Errorf("support(%v)=%v < support(%v)=%v violates anti-monotonicity",
					small, m.Support(small), big, m.Support(big))
			}
		}
	}
}

func TestEmptyInput(t *testing.T) {
	m := Build(nil)
	if m.GroupCount() != 0 || m.ItemCount() != 0 {
		t.Errorf("empty build has %d groups, %d items", m.GroupCount(), m.ItemCount())
	}
	if got := m.Support(itemset.New("milk")); got != 0 {
		t.Errorf("Support on empty matrix = %v, want 0 (no division by zero)", got)
	}
}

func TestContainsAll(t *testing.T) {
	m := Build(fourBaskets())
	if !m.ContainsAll("g3", itemset.New("milk", "bread", "butter")) {
		t.Error("g3 should contain all three items")
	}
	if m.ContainsAll("g4", itemset.New("milk")) {
		t.Error("g4 should not contain milk")
	}
	if m.ContainsAll("nope", itemset.New("milk")) {
		t.Error("unknown group should contain nothing")
	}
}

func TestPresenceTotal(t *testing.T) {
	m := Build(fourBaskets())
	if got := m.PresenceTotal(); got != 8 {
		t.Errorf("PresenceTotal = %d, want 8", got)
	}
}
