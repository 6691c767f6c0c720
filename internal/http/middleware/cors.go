package middleware

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

var defaultDashboardOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
	"http://127.0.0.1:3000",
	"http://127.0.0.1:5173",
}

// CORS restricts the dashboard API to known front-end origins. An empty list
// falls back to local development hosts.
func CORS(origins []string) gin.HandlerFunc {
	if len(origins) == 0 {
		origins = defaultDashboardOrigins
	}
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", "X-Request-Id"},
		ExposeHeaders:    []string{"X-Request-Id", "X-Trace-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

// PublicCORS is for the widget and public API, which are called from
// arbitrary customer sites. Origin checks happen per bot in the handler.
func PublicCORS() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Authorization", "Content-Type", "X-Request-Id"},
		ExposeHeaders: []string{
			"X-Request-Id",
			"X-RateLimit-Limit",
			"X-RateLimit-Remaining",
			"X-RateLimit-Reset",
			"Retry-After",
		},
		MaxAge: 12 * time.Hour,
	})
}

// CORSByPath sends widget, public API and script traffic through the open
// policy and everything else through the dashboard policy. It runs globally
// so preflight requests for unregistered OPTIONS routes are still answered.
func CORSByPath(dashboard, public gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if isPublicPath(c.Request.URL.Path) {
			public(c)
			return
		}
		dashboard(c)
	}
}

func isPublicPath(p string) bool {
	return p == "/widget.js" ||
		strings.HasPrefix(p, "/api/widget/") ||
		strings.HasPrefix(p, "/v1/")
}
