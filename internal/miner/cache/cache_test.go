package cache

import (
	"strings"
	"testing"

	"github.com/smartgrocer/basket-analytics-platform/internal/mining"
	"github.com/smartgrocer/basket-analytics-platform/pkg/config"
)

func testCache() *ResultCache {
	return New(nil, config.RedisConfig{})
}

func TestBuildKeyShape(t *testing.T) {
	c := testCache()
	key := c.buildKey("groceries", 3, mining.Params{MinSupport: 0.5, MinConfidence: 0.6})

	if !strings.HasPrefix(key, "mine:groceries:") {
		t.Errorf("key = %q, want mine:groceries: prefix", key)
	}
	// 16 hash bytes hex-encoded.
	if got := len(key) - len("mine:groceries:"); got != 32 {
		t.Errorf("hash suffix length = %d, want 32", got)
	}
}

func TestBuildKeyDeterministic(t *testing.T) {
	c := testCache()
	params := mining.Params{MinSupport: 0.5, MinConfidence: 0.6, MaxLen: 3}

	a := c.buildKey("groceries", 7, params)
	b := c.buildKey("groceries", 7, params)
	if a != b {
		t.Errorf("same inputs produced different keys: %q vs %q", a, b)
	}
}

func TestBuildKeyDistinguishesInputs(t *testing.T) {
	c := testCache()
	base := mining.Params{MinSupport: 0.5, MinConfidence: 0.6}

	keys := map[string]string{
		"base":       c.buildKey("groceries", 1, base),
		"revision":   c.buildKey("groceries", 2, base),
		"dataset":    c.buildKey("retail", 1, base),
		"support":    c.buildKey("groceries", 1, mining.Params{MinSupport: 0.4, MinConfidence: 0.6}),
		"confidence": c.buildKey("groceries", 1, mining.Params{MinSupport: 0.5, MinConfidence: 0.7}),
		"max_len":    c.buildKey("groceries", 1, mining.Params{MinSupport: 0.5, MinConfidence: 0.6, MaxLen: 2}),
	}
	seen := make(map[string]string, len(keys))
	for name, key := range keys {
		if prev, dup := seen[key]; dup {
			t.Errorf("inputs %q and %q collided on key %q", name, prev, key)
		}
		seen[key] = name
	}
}
