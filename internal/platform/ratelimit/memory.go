package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Memory keeps per-window counters in a bounded expiring LRU. Counts are
// per process.
type Memory struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, int64]
	now   func() time.Time
}

// NewMemory bounds the cache at size keys. ttl must cover the longest window
// in use; zero means two hours.
func NewMemory(size int, ttl time.Duration) *Memory {
	if size <= 0 {
		size = 100_000
	}
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &Memory{
		cache: expirable.NewLRU[string, int64](size, nil, ttl),
		now:   time.Now,
	}
}

func (m *Memory) Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	now := m.now()
	start := windowStart(now, window)
	reset := start.Add(window)
	if limit <= 0 {
		return allowAll(limit, reset), nil
	}
	k := bucketKey(key, start)

	m.mu.Lock()
	count, _ := m.cache.Get(k)
	count++
	m.cache.Add(k, count)
	m.mu.Unlock()

	return decide(count, limit, reset), nil
}
