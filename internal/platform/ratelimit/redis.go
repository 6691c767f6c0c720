package ratelimit

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Redis shares counters across processes with INCR + PEXPIRE in one pipeline.
type Redis struct {
	rdb *goredis.Client
	now func() time.Time
}

func NewRedis(rdb *goredis.Client) *Redis {
	return &Redis{rdb: rdb, now: time.Now}
}

func (r *Redis) Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	now := r.now()
	start := windowStart(now, window)
	reset := start.Add(window)
	if limit <= 0 {
		return allowAll(limit, reset), nil
	}
	k := bucketKey(key, start)

	var incr *goredis.IntCmd
	_, err := r.rdb.Pipelined(ctx, func(p goredis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.PExpire(ctx, k, window+time.Second)
		return nil
	})
	if err != nil {
		return allowAll(limit, reset), fmt.Errorf("ratelimit redis: %w", err)
	}
	return decide(incr.Val(), limit, reset), nil
}
