package redisx

import (
	"context"
	"testing"
	"time"

	"github.com/yungbote/sitechat-backend/internal/platform/logger"
)

func TestNilClientCacheMisses(t *testing.T) {
	c := NewJSONCache(nil, logger.Nop(), "t:")
	ctx := context.Background()
	c.Set(ctx, "k", map[string]string{"a": "b"}, time.Minute)
	var out map[string]string
	if c.Get(ctx, "k", &out) {
		t.Fatalf("expected miss without redis")
	}
	c.Delete(ctx, "k")
}

func TestNewFromEnvUnconfigured(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	t.Setenv("REDIS_ADDR", "")
	rdb, err := NewFromEnv(logger.Nop())
	if err != nil || rdb != nil {
		t.Fatalf("expected nil client, got %v err=%v", rdb, err)
	}
}
