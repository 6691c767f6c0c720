package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/sitechat-backend/internal/observability"
	"github.com/yungbote/sitechat-backend/internal/platform/ctxutil"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
	"github.com/yungbote/sitechat-backend/internal/platform/ratelimit"
)

// KeyFunc picks the bucket for a request. An empty key skips limiting.
type KeyFunc func(c *gin.Context) string

type RateLimiter struct {
	log     *logger.Logger
	limiter ratelimit.Limiter
	now     func() time.Time
}

func NewRateLimiter(log *logger.Logger, limiter ratelimit.Limiter) *RateLimiter {
	return &RateLimiter{
		log:     log.With("middleware", "RateLimiter"),
		limiter: limiter,
		now:     time.Now,
	}
}

func (rl *RateLimiter) Limit(rule ratelimit.Rule, key KeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Check(c, rule, key(c)) {
			return
		}
		c.Next()
	}
}

// Check counts one hit for key under rule and writes the rate limit headers.
// When the window is exhausted it aborts with 429 and returns false.
func (rl *RateLimiter) Check(c *gin.Context, rule ratelimit.Rule, key string) bool {
	if rl == nil || rl.limiter == nil || key == "" || rule.Limit <= 0 {
		return true
	}
	res, err := rl.limiter.Allow(c.Request.Context(), rule.Scope+":"+key, rule.Limit, rule.Window)
	if err != nil {
		rl.log.Warn("rate limiter backend error", "scope", rule.Scope, "error", err)
	}
	observability.Current().IncRateLimit(rule.Scope, res.Allowed)

	h := c.Writer.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
	if res.Allowed {
		return true
	}

	retry := res.RetryAfter(rl.now())
	h.Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error": gin.H{
			"message": fmt.Sprintf("rate limit exceeded, retry in %ds", int(math.Ceil(retry.Seconds()))),
			"code":    "rate_limited",
		},
	})
	return false
}

// ByUser keys dashboard traffic on the authenticated user.
func ByUser(c *gin.Context) string {
	if id := ctxutil.UserID(c.Request.Context()); id != uuid.Nil {
		return id.String()
	}
	return ""
}

// ByAPIKey keys public API traffic on the calling key.
func ByAPIKey(c *gin.Context) string {
	if rd := ctxutil.GetRequestData(c.Request.Context()); rd != nil && rd.APIKeyID != uuid.Nil {
		return rd.APIKeyID.String()
	}
	return ""
}

// ByParam keys on a route parameter, e.g. the bot id for training.
func ByParam(name string) KeyFunc {
	return func(c *gin.Context) string {
		return c.Param(name)
	}
}
