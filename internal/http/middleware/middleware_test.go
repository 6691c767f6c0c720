package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	types "github.com/yungbote/sitechat-backend/internal/domain"
	"github.com/yungbote/sitechat-backend/internal/platform/apierr"
	"github.com/yungbote/sitechat-backend/internal/platform/ctxutil"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
	"github.com/yungbote/sitechat-backend/internal/platform/ratelimit"
	"github.com/yungbote/sitechat-backend/internal/services"
)

func init() { gin.SetMode(gin.TestMode) }

type fakeAuth struct {
	valid  string
	userID uuid.UUID
}

func (f fakeAuth) SetContextFromToken(ctx context.Context, token string) (context.Context, error) {
	if token != f.valid {
		return ctx, errors.New("bad token")
	}
	return ctxutil.WithRequestData(ctx, &ctxutil.RequestData{UserID: f.userID}), nil
}

type fakeKeys struct {
	services.APIKeyService
	key *types.APIKey
	err error
}

func (f fakeKeys) Authenticate(ctx context.Context, raw string) (*types.APIKey, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.key, nil
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var body struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code, body.Error.Message
}

func TestRequireAuth(t *testing.T) {
	userID := uuid.New()
	am := NewAuthMiddleware(logger.Nop(), fakeAuth{valid: "good", userID: userID})

	r := gin.New()
	r.GET("/api/me", am.RequireAuth(), func(c *gin.Context) {
		c.String(http.StatusOK, ctxutil.UserID(c.Request.Context()).String())
	})

	cases := []struct {
		name   string
		header string
		query  string
		status int
	}{
		{name: "missing", status: http.StatusUnauthorized},
		{name: "invalid", header: "Bearer nope", status: http.StatusUnauthorized},
		{name: "not bearer", header: "Basic good", status: http.StatusUnauthorized},
		{name: "header", header: "Bearer good", status: http.StatusOK},
		{name: "query", query: "?token=good", status: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/me"+tc.query, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			require.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, userID.String(), rec.Body.String())
				return
			}
			code, _ := decodeError(t, rec)
			assert.Equal(t, "unauthorized", code)
		})
	}
}

func TestRequireAPIKey(t *testing.T) {
	key := &types.APIKey{ID: uuid.New(), WorkspaceID: uuid.New()}

	handler := func(c *gin.Context) {
		rd := ctxutil.GetRequestData(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"key": rd.APIKeyID, "workspace": rd.WorkspaceID})
	}

	t.Run("ok", func(t *testing.T) {
		r := gin.New()
		r.POST("/v1/x", NewAPIKeyMiddleware(logger.Nop(), fakeKeys{key: key}).RequireAPIKey(), handler)
		req := httptest.NewRequest(http.MethodPost, "/v1/x", nil)
		req.Header.Set("Authorization", "Bearer sk_live_whatever")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, key.ID.String(), body["key"])
		assert.Equal(t, key.WorkspaceID.String(), body["workspace"])
	})

	t.Run("rejected", func(t *testing.T) {
		rejected := apierr.New(http.StatusUnauthorized, "unauthorized", errors.New("invalid api key"))
		r := gin.New()
		r.POST("/v1/x", NewAPIKeyMiddleware(logger.Nop(), fakeKeys{err: rejected}).RequireAPIKey(), handler)
		req := httptest.NewRequest(http.MethodPost, "/v1/x", nil)
		req.Header.Set("Authorization", "Bearer sk_live_revoked")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		code, msg := decodeError(t, rec)
		assert.Equal(t, "unauthorized", code)
		assert.Equal(t, "invalid api key", msg)
	})

	t.Run("backend failure", func(t *testing.T) {
		r := gin.New()
		r.POST("/v1/x", NewAPIKeyMiddleware(logger.Nop(), fakeKeys{err: errors.New("db down")}).RequireAPIKey(), handler)
		req := httptest.NewRequest(http.MethodPost, "/v1/x", nil)
		req.Header.Set("Authorization", "Bearer sk_live_x")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		code, msg := decodeError(t, rec)
		assert.Equal(t, "internal_error", code)
		assert.NotContains(t, msg, "db down")
	})
}

func TestRateLimit(t *testing.T) {
	rl := NewRateLimiter(logger.Nop(), ratelimit.NewMemory(10, time.Hour))
	rule := ratelimit.Rule{Scope: "test", Limit: 2, Window: time.Minute}

	r := gin.New()
	r.POST("/bots/:id/train", rl.Limit(rule, ByParam("id")), func(c *gin.Context) {
		c.Status(http.StatusAccepted)
	})

	do := func(id string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/bots/"+id+"/train", nil))
		return rec
	}

	first := do("a")
	require.Equal(t, http.StatusAccepted, first.Code)
	assert.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, first.Header().Get("X-RateLimit-Reset"))

	require.Equal(t, http.StatusAccepted, do("a").Code)

	limited := do("a")
	require.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "0", limited.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, limited.Header().Get("Retry-After"))
	code, _ := decodeError(t, limited)
	assert.Equal(t, "rate_limited", code)

	assert.Equal(t, http.StatusAccepted, do("b").Code)
}

type failingLimiter struct{}

func (failingLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (ratelimit.Result, error) {
	return ratelimit.Result{Allowed: true, Limit: limit, Remaining: limit, ResetAt: time.Now().Add(window)}, errors.New("redis down")
}

func TestRateLimitFailsOpen(t *testing.T) {
	rl := NewRateLimiter(logger.Nop(), failingLimiter{})
	r := gin.New()
	r.GET("/x", rl.Limit(ratelimit.Rule{Scope: "s", Limit: 1, Window: time.Minute}, func(*gin.Context) string { return "k" }), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimitSkipsEmptyKey(t *testing.T) {
	rl := NewRateLimiter(logger.Nop(), ratelimit.NewMemory(10, time.Hour))
	r := gin.New()
	r.GET("/x", rl.Limit(ratelimit.Rule{Scope: "s", Limit: 1, Window: time.Minute}, ByUser), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
	}
}

func TestCORS(t *testing.T) {
	t.Run("dashboard", func(t *testing.T) {
		r := gin.New()
		r.Use(CORS([]string{"https://app.example.com"}))
		r.OPTIONS("/api/bots", func(c *gin.Context) { c.Status(http.StatusNoContent) })

		req := httptest.NewRequest(http.MethodOptions, "/api/bots", nil)
		req.Header.Set("Origin", "https://app.example.com")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("dashboard rejects unknown", func(t *testing.T) {
		r := gin.New()
		r.Use(CORS([]string{"https://app.example.com"}))
		r.GET("/api/bots", func(c *gin.Context) { c.Status(http.StatusOK) })

		req := httptest.NewRequest(http.MethodGet, "/api/bots", nil)
		req.Header.Set("Origin", "https://evil.example")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("public", func(t *testing.T) {
		r := gin.New()
		r.Use(PublicCORS())
		r.GET("/api/widget/bots/x/config", func(c *gin.Context) { c.Status(http.StatusOK) })

		req := httptest.NewRequest(http.MethodGet, "/api/widget/bots/x/config", nil)
		req.Header.Set("Origin", "https://customer.example")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	})
}
