package ratelimit

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/sitechat-backend/internal/platform/envutil"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
)

// Result describes one fixed-window decision.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is how long until the window resets, rounded up to a second.
func (r Result) RetryAfter(now time.Time) time.Duration {
	d := r.ResetAt.Sub(now)
	if d <= 0 {
		return time.Second
	}
	if t := d.Truncate(time.Second); t != d {
		return t + time.Second
	}
	return d
}

// Limiter counts hits per key in fixed windows. Implementations fail open:
// on a backend error they still return an allowed Result alongside the error.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
}

// Rule is a named limit applied by the HTTP middleware.
type Rule struct {
	Scope  string
	Limit  int
	Window time.Duration
}

type Rules struct {
	WidgetChat   Rule
	WidgetConfig Rule
	PublicAPI    Rule
	Dashboard    Rule
	Train        Rule
}

func RulesFromEnv() Rules {
	return Rules{
		WidgetChat:   Rule{Scope: "widget_chat", Limit: envutil.Int("RATE_LIMIT_WIDGET_PER_MIN", 20), Window: time.Minute},
		WidgetConfig: Rule{Scope: "widget_config", Limit: envutil.Int("RATE_LIMIT_WIDGET_CONFIG_PER_MIN", 60), Window: time.Minute},
		PublicAPI:    Rule{Scope: "public_api", Limit: envutil.Int("RATE_LIMIT_API_PER_MIN", 60), Window: time.Minute},
		Dashboard:    Rule{Scope: "dashboard", Limit: envutil.Int("RATE_LIMIT_DASHBOARD_PER_MIN", 300), Window: time.Minute},
		Train:        Rule{Scope: "train", Limit: envutil.Int("RATE_LIMIT_TRAIN_PER_HOUR", 5), Window: time.Hour},
	}
}

// New picks the Redis backend when rdb is set and the in-memory one otherwise.
func New(log *logger.Logger, rdb *goredis.Client) Limiter {
	if rdb != nil {
		log.Info("rate limiter using redis")
		return NewRedis(rdb)
	}
	log.Info("rate limiter using in-memory window counters")
	return NewMemory(envutil.Int("RATE_LIMIT_MEMORY_KEYS", 100_000), 0)
}

func windowStart(now time.Time, window time.Duration) time.Time {
	return now.Truncate(window)
}

func bucketKey(key string, start time.Time) string {
	return fmt.Sprintf("rl:%s:%d", key, start.Unix())
}

func decide(count int64, limit int, reset time.Time) Result {
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   count <= int64(limit),
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   reset,
	}
}

func allowAll(limit int, reset time.Time) Result {
	return Result{Allowed: true, Limit: limit, Remaining: limit, ResetAt: reset}
}
