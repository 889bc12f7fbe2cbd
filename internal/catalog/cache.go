package catalog

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache wraps Redis helpers for JSON list payloads. Keys embed a
// version counter so a single INCR invalidates every cached listing
// after a catalog mutation.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewCache constructs a cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl, prefix: "catalog"}
}

func (c *Cache) version(ctx context.Context) string {
	v, err := c.client.Get(ctx, c.prefix+":ver").Result()
	if err != nil {
		return "0"
	}
	return v
}

func (c *Cache) key(ctx context.Context, suffix string) string {
	return c.prefix + ":v" + c.version(ctx) + ":" + suffix
}

// GetJSON unmarshals a cached JSON payload into dst. It reports whether the key existed.
func (c *Cache) GetJSON(ctx context.Context, suffix string, dst any) (bool, error) {
	if c == nil || c.client == nil || suffix == "" {
		return false, nil
	}
	data, err := c.client.Get(ctx, c.key(ctx, suffix)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON serialises v as JSON and stores it with the configured TTL.
func (c *Cache) SetJSON(ctx context.Context, suffix string, v any) error {
	if c == nil || c.client == nil || suffix == "" || c.ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(ctx, suffix), data, c.ttl).Err()
}

// Invalidate bumps the version counter, orphaning all cached listings.
// Stale entries expire on their own TTL.
func (c *Cache) Invalidate(ctx context.Context) {
	if c == nil || c.client == nil {
		return
	}
	_ = c.client.Incr(ctx, c.prefix+":ver").Err()
}

// ListKey builds the cache suffix for a listing request.
func ListKey(params ListParams) string {
	return params.Query + ":" + params.Sort + ":" + params.Order + ":" +
		strconv.Itoa(params.Page) + ":" + strconv.Itoa(params.Limit)
}
