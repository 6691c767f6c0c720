package redisx

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/sitechat-backend/internal/platform/envutil"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
)

// NewFromEnv connects using REDIS_URL or REDIS_ADDR. It returns (nil, nil)
// when neither is set so callers can fall back to in-process state.
func NewFromEnv(log *logger.Logger) (*goredis.Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	var opts *goredis.Options
	if raw := envutil.String("REDIS_URL", ""); raw != "" {
		parsed, err := goredis.ParseURL(raw)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		opts = parsed
	} else if addr := envutil.String("REDIS_ADDR", ""); addr != "" {
		opts = &goredis.Options{
			Addr:     addr,
			Password: envutil.String("REDIS_PASSWORD", ""),
			DB:       envutil.Int("REDIS_DB", 0),
		}
	} else {
		log.Info("redis not configured; using in-memory fallbacks")
		return nil, nil
	}
	opts.DialTimeout = 5 * time.Second

	rdb := goredis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	log.Info("redis connected", "addr", opts.Addr, "db", opts.DB)
	return rdb, nil
}
