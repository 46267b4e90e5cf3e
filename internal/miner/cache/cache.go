// Package cache is the miner's Redis-backed result cache. Keys incorporate
// the dataset revision, so cached results age out on their own as new
// transactions arrive.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/smartgrocer/basket-analytics-platform/internal/mining"
	"github.com/smartgrocer/basket-analytics-platform/pkg/config"
	pkgredis "github.com/smartgrocer/basket-analytics-platform/pkg/redis"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "mine:"

type ResultCache struct {
	client *pkgredis.Client
	cfg    config.RedisConfig
	group  singleflight.Group
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

func New(client *pkgredis.Client, cfg config.RedisConfig) *ResultCache {
	return &ResultCache{
		client: client,
		cfg:    cfg,
		logger: slog.Default().With("component", "result-cache"),
	}
}

func (c *ResultCache) Get(ctx context.Context, dataset string, revision uint64, params mining.Params) (*mining.Result, bool) {
	key := c.buildKey(dataset, revision, params)
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		return nil, false
	}
	var result mining.Result
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	c.logger.Debug("cache hit", "dataset", dataset, "key", key)
	return &result, true
}

func (c *ResultCache) Set(ctx context.Context, dataset string, revision uint64, params mining.Params, result *mining.Result) {
	key := c.buildKey(dataset, revision, params)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.cfg.CacheTTL); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result or computes and stores it. The
// singleflight group collapses concurrent identical requests into one run.
func (c *ResultCache) GetOrCompute(
	ctx context.Context,
	dataset string,
	revision uint64,
	params mining.Params,
	computeFn func() (*mining.Result, error),
) (*mining.Result, bool, error) {
	if result, ok := c.Get(ctx, dataset, revision, params); ok {
		return result, true, nil
	}
	key := c.buildKey(dataset, revision, params)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if result, ok := c.Get(ctx, dataset, revision, params); ok {
			return result, nil
		}
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, dataset, revision, params, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*mining.Result), false, nil
}

// Invalidate drops every cached mining result.
func (c *ResultCache) Invalidate(ctx context.Context) error {
	deleted, err := c.client.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return nil
}

// InvalidateDataset drops cached results for one dataset.
func (c *ResultCache) InvalidateDataset(ctx context.Context, dataset string) error {
	deleted, err := c.client.FlushByPattern(ctx, keyPrefix+dataset+":*")
	if err != nil {
		return fmt.Errorf("invalidating cache for %s: %w", dataset, err)
	}
	c.logger.Info("cache invalidate", "dataset", dataset, "keys_deleted", deleted)
	return nil
}

func (c *ResultCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// buildKey hashes revision and params under a per-dataset prefix, so one
// dataset's keys stay globbable while the key itself is fixed-width.
func (c *ResultCache) buildKey(dataset string, revision uint64, params mining.Params) string {
	raw := fmt.Sprintf("rev=%d|%s", revision, params.Key())
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%s:%x", keyPrefix, dataset, hash[:16])
}
