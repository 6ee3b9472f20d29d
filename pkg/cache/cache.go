package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ayodejiio/gatelink/internal/models"
)

// takeQuotaScript increments the daily, lifetime and rolling-hour counters
// in one atomic round trip. Concurrent visits to the same link must never
// lose an update, so the three INCRs happen server-side.
const takeQuotaScript = `
local daily = redis.call('INCR', KEYS[1])
if daily == 1 then
    redis.call('EXPIRE', KEYS[1], ARGV[1])
end
local total = redis.call('INCR', KEYS[2])
local rate = redis.call('INCR', KEYS[3])
if rate == 1 then
    redis.call('EXPIRE', KEYS[3], ARGV[2])
end
return {daily, total, rate}
`

type Cache struct {
	client         *redis.Client
	policyTTL      time.Duration
	quotaScriptSHA string
}

func NewCache(redisURL string, policyTTL time.Duration) (*Cache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	quotaScriptSHA, err := client.ScriptLoad(ctx, takeQuotaScript).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load quota script: %w", err)
	}

	return &Cache{
		client:         client,
		policyTTL:      policyTTL,
		quotaScriptSHA: quotaScriptSHA,
	}, nil
}

// GetPolicy retrieves a cached link policy by slug. A miss returns nil
// without error.
func (c *Cache) GetPolicy(ctx context.Context, slug string) (*models.LinkPolicy, error) {
	key := fmt.Sprintf("policy:%s", slug)
	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get error: %w", err)
	}
	var pol models.LinkPolicy
	if err := json.Unmarshal(val, &pol); err != nil {
		return nil, fmt.Errorf("cache decode error: %w", err)
	}
	return &pol, nil
}

// SetPolicy caches a link policy under its slug.
func (c *Cache) SetPolicy(ctx context.Context, pol *models.LinkPolicy) error {
	data, err := json.Marshal(pol)
	if err != nil {
		return fmt.Errorf("cache encode error: %w", err)
	}
	key := fmt.Sprintf("policy:%s", pol.Slug)
	if err := c.client.Set(ctx, key, data, c.policyTTL).Err(); err != nil {
		return fmt.Errorf("cache set error: %w", err)
	}
	return nil
}

// InvalidatePolicy drops a cached policy so the next lookup hits Postgres.
func (c *Cache) InvalidatePolicy(ctx context.Context, slug string) error {
	return c.client.Del(ctx, fmt.Sprintf("policy:%s", slug)).Err()
}

// TakeQuota atomically increments the three counters for one evaluated
// visit and returns the post-increment values. The daily key is scoped to
// the UTC date; the rate key is scoped to (slug, ip) with a rolling window.
func (c *Cache) TakeQuota(ctx context.Context, slug, ip string, rateWindow time.Duration) (daily, total, rate int64, err error) {
	day := time.Now().UTC().Format("2006-01-02")
	keys := []string{
		fmt.Sprintf("q:day:%s:%s", slug, day),
		fmt.Sprintf("q:total:%s", slug),
		fmt.Sprintf("q:rate:%s:%s", slug, ip),
	}
	args := []interface{}{
		int((48 * time.Hour).Seconds()),
		int(rateWindow.Seconds()),
	}

	result, err := c.client.EvalSha(ctx, c.quotaScriptSHA, keys, args...).Result()
	if err != nil {
		return 0, 0, 0, fmt.Errorf("quota script error: %w", err)
	}

	vals, ok := result.([]interface{})
	if !ok || len(vals) != 3 {
		return 0, 0, 0, fmt.Errorf("quota script returned unexpected shape: %v", result)
	}
	counts := make([]int64, 3)
	for i, v := range vals {
		n, ok := v.(int64)
		if !ok {
			return 0, 0, 0, fmt.Errorf("quota script returned non-integer: %v", v)
		}
		counts[i] = n
	}
	return counts[0], counts[1], counts[2], nil
}

// ResetQuota clears the daily and lifetime counters for a link.
func (c *Cache) ResetQuota(ctx context.Context, slug string) error {
	day := time.Now().UTC().Format("2006-01-02")
	keys := []string{
		fmt.Sprintf("q:day:%s:%s", slug, day),
		fmt.Sprintf("q:total:%s", slug),
	}
	return c.client.Del(ctx, keys...).Err()
}

// CheckRateLimit applies a fixed-window limit keyed by identifier. Used
// for the API-wide per-IP limiter, separate from link quotas.
func (c *Cache) CheckRateLimit(ctx context.Context, identifier string, limit int, window time.Duration) (bool, error) {
	key := fmt.Sprintf("rl:%s", identifier)

	pipe := c.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit check error: %w", err)
	}

	count := incr.Val()
	return count <= int64(limit), nil
}

// IncrementMetric increments a counter metric.
func (c *Cache) IncrementMetric(ctx context.Context, metric string) error {
	key := fmt.Sprintf("metric:%s", metric)
	return c.client.Incr(ctx, key).Err()
}

// GetMetric retrieves a metric value.
func (c *Cache) GetMetric(ctx context.Context, metric string) (int64, error) {
	key := fmt.Sprintf("metric:%s", metric)
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var count int64
	if _, err := fmt.Sscanf(val, "%d", &count); err != nil {
		return 0, err
	}
	return count, nil
}

// Ping reports whether the Redis connection is healthy.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}
