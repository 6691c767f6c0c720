package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/sitechat-backend/internal/platform/logger"
)

// JSONCache stores JSON values under a key prefix. A nil client turns every
// call into a miss, so callers never need a separate code path.
type JSONCache struct {
	rdb    *goredis.Client
	log    *logger.Logger
	prefix string
}

func NewJSONCache(rdb *goredis.Client, log *logger.Logger, prefix string) *JSONCache {
	return &JSONCache{rdb: rdb, log: log.With("component", "JSONCache", "prefix", prefix), prefix: prefix}
}

// Get decodes the cached value into out and reports a hit.
func (c *JSONCache) Get(ctx context.Context, key string, out any) bool {
	if c == nil || c.rdb == nil {
		return false
	}
	raw, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			c.log.Warn("cache get failed", "key", key, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		c.log.Warn("cache decode failed", "key", key, "error", err)
		return false
	}
	return true
}

func (c *JSONCache) Set(ctx context.Context, key string, v any, ttl time.Duration) {
	if c == nil || c.rdb == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, c.prefix+key, raw, ttl).Err(); err != nil {
		c.log.Warn("cache set failed", "key", key, "error", err)
	}
}

func (c *JSONCache) Delete(ctx context.Context, key string) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, c.prefix+key).Err(); err != nil {
		c.log.Warn("cache delete failed", "key", key, "error", err)
	}
}
