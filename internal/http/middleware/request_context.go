package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/sitechat-backend/internal/platform/ctxutil"
)

const (
	headerTraceID   = "X-Trace-Id"
	headerRequestID = "X-Request-Id"

	maxRequestIDLen = 64
)

// Surfaces group routes by who calls them.
const (
	SurfaceWidget    = "widget"
	SurfacePublicAPI = "public_api"
	SurfaceDashboard = "dashboard"
	SurfaceWebhook   = "webhook"
	SurfaceHealth    = "health"
	SurfaceUnmatched = "unmatched"
)

// AttachRequestContext assigns the request and trace ids used by logs and
// job payloads, echoes them as response headers, and tags the active span
// with the surface plus the bot and workspace the request touched.
func AttachRequestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		span := trace.SpanFromContext(ctx)
		reqID := requestIDFrom(c.GetHeader(headerRequestID))
		traceID := traceIDFrom(span.SpanContext(), c.GetHeader(headerTraceID))

		c.Request = c.Request.WithContext(ctxutil.WithTraceData(ctx, &ctxutil.TraceData{
			TraceID:   traceID,
			RequestID: reqID,
		}))
		c.Set("trace_id", traceID)
		c.Set("request_id", reqID)
		c.Writer.Header().Set(headerTraceID, traceID)
		c.Writer.Header().Set(headerRequestID, reqID)

		route := c.FullPath()
		if span.IsRecording() {
			span.SetAttributes(
				attribute.String("sitechat.request_id", reqID),
				attribute.String("sitechat.surface", RouteSurface(route)),
			)
		}

		c.Next()

		if !span.IsRecording() {
			return
		}
		// Auth runs inside c.Next, so the caller is only known now.
		span.SetAttributes(resourceAttrs(c, route)...)
		if c.Writer.Status() == http.StatusTooManyRequests {
			span.AddEvent("sitechat.rate_limited")
		}
	}
}

// RouteSurface maps a gin route template to the surface serving it.
func RouteSurface(route string) string {
	switch {
	case route == "":
		return SurfaceUnmatched
	case route == "/widget.js" || strings.HasPrefix(route, "/api/widget/"):
		return SurfaceWidget
	case strings.HasPrefix(route, "/v1/"):
		return SurfacePublicAPI
	case route == "/api/billing/webhook":
		return SurfaceWebhook
	case route == "/healthcheck" || route == "/metrics":
		return SurfaceHealth
	default:
		return SurfaceDashboard
	}
}

func resourceAttrs(c *gin.Context, route string) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if strings.Contains(route, "/bots/:id") {
		if id, err := uuid.Parse(c.Param("id")); err == nil {
			attrs = append(attrs, attribute.String("sitechat.bot_id", id.String()))
		}
	}
	wsID := uuid.Nil
	if strings.Contains(route, "/workspaces/:id") {
		wsID, _ = uuid.Parse(c.Param("id"))
	}
	if rd := ctxutil.GetRequestData(c.Request.Context()); rd != nil {
		if wsID == uuid.Nil {
			wsID = rd.WorkspaceID
		}
		if rd.APIKeyID != uuid.Nil {
			attrs = append(attrs, attribute.String("sitechat.api_key_id", rd.APIKeyID.String()))
		}
		if rd.UserID != uuid.Nil {
			attrs = append(attrs, attribute.String("sitechat.user_id", rd.UserID.String()))
		}
	}
	if wsID != uuid.Nil {
		attrs = append(attrs, attribute.String("sitechat.workspace_id", wsID.String()))
	}
	return attrs
}

// requestIDFrom keeps a caller-supplied id only when it is short and made of
// characters safe to echo into headers and logs.
func requestIDFrom(header string) string {
	id := strings.TrimSpace(header)
	if id == "" || len(id) > maxRequestIDLen {
		return uuid.New().String()
	}
	for _, r := range id {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_' || r == '.' || r == ':') {
			return uuid.New().String()
		}
	}
	return id
}

// traceIDFrom prefers the active span, then a well-formed W3C trace id from
// the caller, then a fresh random one in the same format.
func traceIDFrom(sc trace.SpanContext, header string) string {
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	if tid, err := trace.TraceIDFromHex(strings.TrimSpace(header)); err == nil {
		return tid.String()
	}
	return trace.TraceID(uuid.New()).String()
}
