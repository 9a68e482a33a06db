// Package cache stores finished search results in Redis, keyed by the
// normalized query, so repeated queries skip scoring and title lookup.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/internal/searcher/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/redis"
)

const keyPrefix = "search:"

// Store is the subset of the Redis client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Key identifies a cacheable query. Token order is part of the key because
// it decides how equal scores are ordered.
type Key struct {
	Mode    string
	Query   string
	Limit   int
	Weights merger.Weights
}

type QueryCache struct {
	store   Store
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(store Store, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		store:   store,
		ttl:     ttl,
		metrics: m,
		logger:  logger.WithComponent("query-cache"),
	}
}

func (c *QueryCache) Get(ctx context.Context, key Key) (*executor.SearchResult, bool) {
	k := c.buildKey(key)
	data, err := c.store.Get(ctx, k)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", k, "error", err)
		}
		c.miss()
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", k, "error", err)
		c.miss()
		return nil, false
	}
	c.hit()
	c.logger.Debug("cache hit", "query", key.Query, "key", k)
	return &result, true
}

func (c *QueryCache) Set(ctx context.Context, key Key, result *executor.SearchResult) {
	k := c.buildKey(key)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", k, "error", err)
		return
	}
	if err := c.store.Set(ctx, k, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", k, "error", err)
	}
}

// GetOrCompute returns the cached result for key or runs computeFn once for
// all concurrent callers with the same key. Failed computations are not
// cached.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	key Key,
	computeFn func() (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	if result, ok := c.Get(ctx, key); ok {
		return result, true, nil
	}
	val, err, _ := c.group.Do(c.buildKey(key), func() (interface{}, error) {
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.SearchResult), false, nil
}

func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) hit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

func (c *QueryCache) buildKey(key Key) string {
	hash := sha256.Sum256([]byte(normalizeKey(key)))
	return fmt.Sprintf("%s%s:%x", keyPrefix, key.Mode, hash[:16])
}

// normalizeKey reduces a key to the inputs that change the result: the token
// sequence, the limit and, for fused queries, the normalized weights.
func normalizeKey(key Key) string {
	var b strings.Builder
	b.WriteString(key.Mode)
	b.WriteByte('|')
	b.WriteString(strings.Join(tokenizer.Tokenize(key.Query), "\x1f"))
	b.WriteString("|limit=")
	b.WriteString(strconv.Itoa(key.Limit))
	if key.Mode == executor.ModeFused {
		w := key.Weights.Normalize()
		b.WriteString("|w=")
		b.WriteString(strconv.FormatFloat(w.Body, 'g', -1, 64))
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(w.Title, 'g', -1, 64))
	}
	return b.String()
}
