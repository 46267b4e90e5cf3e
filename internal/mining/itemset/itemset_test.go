package itemset

import (
	"reflect"
	"testing"
)

func TestNewCanonicalizes(t *testing.T) {
	tests := []struct {
		name  string
		items []string
		want  Itemset
	}{
		{"already_sorted", []string{"bread", "milk"}, Itemset{"bread", "milk"}},
		{"reversed", []string{"milk", "bread"}, Itemset{"bread", "milk"}},
		{"duplicates", []string{"milk", "milk", "bread"}, Itemset{"bread", "milk"}},
		{"single", []string{"butter"}, Itemset{"butter"}},
		{"empty", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New(tt.items...)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("New(%v) = %v, want %v", tt.items, got, tt.want)
			}
		})
	}
}

func TestKeyOrderIndependent(t *testing.T) {
	a := New("milk", "bread", "butter")
	b := New("butter", "milk", "bread")
	if a.Key() != b.Key() {
		t.Errorf("keys differ for the same set: %q vs %q", a.Key(), b.Key())
	}
	c := New("milk", "bread")
	if a.Key() == c.Key() {
		t.Errorf("distinct sets share key %q", a.Key())
	}
}

func TestKeyDistinguishesJoinedItems(t *testing.T) {
	// "whole milk"+"bread" must not collide with "whole"+"milk bread".
	a := New("whole milk", "bread")
	b := New("whole", "milk bread")
	if a.Key() == b.Key() {
		t.Errorf("key collision between %v and %v", a, b)
	}
}

func TestContains(t *testing.T) {
	s := New("bread", "butter", "milk")
	for _, item := range s {
		if !s.Contains(item) {
			t.Errorf("Contains(%q) = false, want true", item)
		}
	}
	if s.Contains("yogurt") {
		t.Error("Contains(yogurt) = true, want false")
	}
	if Itemset(nil).Contains("milk") {
		t.Error("empty set claims membership")
	}
}

func TestUnion(t *testing.T) {
	tests := []struct {
		name string
		a, b Itemset
		want Itemset
	}{
		{"disjoint", New("bread"), New("milk"), New("bread", "milk")},
		{"overlapping", New("bread", "milk"), New("butter", "milk"), New("bread", "butter", "milk")},
		{"identical", New("milk"), New("milk"), New("milk")},
		{"empty_right", New("milk"), nil, New("milk")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Union(tt.b); !got.Equal(tt.want) {
				t.Errorf("Union = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMinus(t *testing.T) {
	s := New("bread", "butter", "milk")
	got := s.Minus(New("butter"))
	if !got.Equal(New("bread", "milk")) {
		t.Errorf("Minus = %v, want [bread milk]", got)
	}
	if res := s.Minus(s); res != nil {
		t.Errorf("Minus(self) = %v, want nil", res)
	}
}

func TestWithoutEach(t *testing.T) {
	s := New("a", "b", "c")
	subs := s.WithoutEach()
	want := []Itemset{New("b", "c"), New("a", "c"), New("a", "b")}
	if len(subs) != len(want) {
		t.Fatalf("got %d subsets, want %d", len(subs), len(want))
	}
	for i := range want {
		if !subs[i].Equal(want[i]) {
			t.Errorf("subset %d = %v, want %v", i, subs[i], want[i])
		}
	}
	if got := New("a").WithoutEach(); got != nil {
		t.Errorf("singleton WithoutEach = %v, want nil", got)
	}
}

func TestProperSubsetsOrdering(t *testing.T) {
	s := New("a", "b", "c")
	subs := s.ProperSubsets()
	want := []Itemset{
		New("a"), New("b"), New("c"),
		New("a", "b"), New("a", "c"), New("b", "c"),
	}
	if len(subs) != len(want) {
		t.Fatalf("got %d subsets, want %d", len(subs), len(want))
	}
	for i := range want {
		if !subs[i].Equal(want[i]) {
			t.Errorf("subset %d = %v, want %v", i, subs[i], want[i])
		}
	}
}

func TestProperSubsetsCount(t *testing.T) {
	// 2^n - 2 proper non-empty subsets.
	for n, want := range map[int]int{2: 2, 3: 6, 4: 14, 5: 30} {
		items := make([]string, n)
		for i := range items {
			items[i] = string(rune('a' + i))
		}
		if got := len(New(items...).ProperSubsets()); got != want {
			t.Errorf("n=%d: got %d subsets, want %d", n, got, want)
		}
	}
}

func TestImmutability(t *testing.T) {
	base := New("b", "d", "f")
	_ = base.Union(New("a", "c"))
	_ = base.Minus(New("d"))
	_ = base.WithoutEach()
	if !base.Equal(New("b", "d", "f")) {
		t.Errorf("receiver mutated: %v", base)
	}
}
