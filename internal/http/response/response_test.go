package response

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/sitechat-backend/internal/platform/apierr"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
)

func init() { gin.SetMode(gin.TestMode) }

func serve(h gin.HandlerFunc) *httptest.ResponseRecorder {
	r := gin.New()
	r.GET("/x", h)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	return rec
}

func TestRespondAPIError(t *testing.T) {
	rec := serve(func(c *gin.Context) {
		RespondAPIError(c, logger.Nop(), apierr.NotFound("bot"))
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":{"message":"bot not found","code":"not_found"}}`, rec.Body.String())

	wrapped := serve(func(c *gin.Context) {
		err := apierr.Conflict("job_in_progress", "a training job is already running")
		RespondAPIError(c, logger.Nop(), errors.Join(errors.New("enqueue"), err))
	})
	require.Equal(t, http.StatusConflict, wrapped.Code)
	assert.Contains(t, wrapped.Body.String(), `"code":"job_in_progress"`)

	internal := serve(func(c *gin.Context) {
		RespondAPIError(c, logger.Nop(), errors.New("pq: connection refused"))
	})
	require.Equal(t, http.StatusInternalServerError, internal.Code)
	assert.JSONEq(t, `{"error":{"message":"internal server error","code":"internal_error"}}`, internal.Body.String())
}

func TestSSEFraming(t *testing.T) {
	rec := serve(func(c *gin.Context) {
		sse := NewSSE(c)
		require.False(t, sse.Started())
		require.NoError(t, sse.Event("delta", gin.H{"delta": "Hel"}))
		require.NoError(t, sse.Event("delta", gin.H{"delta": "lo"}))
		sse.Done()
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t,
		"event: delta\ndata: {\"delta\":\"Hel\"}\n\n"+
			"event: delta\ndata: {\"delta\":\"lo\"}\n\n"+
			"data: [DONE]\n\n",
		rec.Body.String())
}
