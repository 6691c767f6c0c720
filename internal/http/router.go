package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/sitechat-backend/internal/http/handlers"
	httpMW "github.com/yungbote/sitechat-backend/internal/http/middleware"
	"github.com/yungbote/sitechat-backend/internal/observability"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
	"github.com/yungbote/sitechat-backend/internal/platform/ratelimit"
)

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	ServiceName string
	CORSOrigins []string

	AuthMiddleware   *httpMW.AuthMiddleware
	APIKeyMiddleware *httpMW.APIKeyMiddleware
	RateLimiter      *httpMW.RateLimiter
	RateRules        ratelimit.Rules

	HealthHandler    *httpH.HealthHandler
	MeHandler        *httpH.MeHandler
	WorkspaceHandler *httpH.WorkspaceHandler
	BotHandler       *httpH.BotHandler
	APIKeyHandler    *httpH.APIKeyHandler
	JobHandler       *httpH.JobHandler
	BillingHandler   *httpH.BillingHandler
	IssueHandler     *httpH.IssueHandler
	WidgetHandler    *httpH.WidgetHandler
	PublicAPIHandler *httpH.PublicAPIHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	log := cfg.Log
	if log == nil {
		log = logger.Nop()
	}
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachRequestContext())
	r.Use(httpMW.RequestLogger(log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORSByPath(httpMW.CORS(cfg.CORSOrigins), httpMW.PublicCORS()))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		if cfg.Metrics != nil {
			r.GET("/metrics", cfg.HealthHandler.Metrics)
		}
	}

	// Widget (public)
	if cfg.WidgetHandler != nil {
		r.GET("/widget.js", cfg.WidgetHandler.Script)
		widget := r.Group("/api/widget")
		widget.GET("/bots/:id/config", cfg.WidgetHandler.Config)
		widget.POST("/bots/:id/chat", cfg.WidgetHandler.Chat)
	}

	// Public API (API key)
	if cfg.PublicAPIHandler != nil && cfg.APIKeyMiddleware != nil {
		v1 := r.Group("/v1")
		v1.Use(cfg.APIKeyMiddleware.RequireAPIKey())
		v1.Use(cfg.RateLimiter.Limit(cfg.RateRules.PublicAPI, httpMW.ByAPIKey))
		v1.POST("/bots/:id/chat", cfg.PublicAPIHandler.Chat)
	}

	api := r.Group("/api")

	// Stripe calls this; the payload signature is the authentication.
	if cfg.BillingHandler != nil {
		api.POST("/billing/webhook", cfg.BillingHandler.Webhook)
	}

	protected := api.Group("/")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}
		protected.Use(cfg.RateLimiter.Limit(cfg.RateRules.Dashboard, httpMW.ByUser))

		if cfg.MeHandler != nil {
			protected.GET("/me", cfg.MeHandler.GetMe)
		}

		// Workspaces
		if cfg.WorkspaceHandler != nil {
			protected.POST("/workspaces", cfg.WorkspaceHandler.Create)
			protected.GET("/workspaces", cfg.WorkspaceHandler.List)
			protected.GET("/workspaces/:id", cfg.WorkspaceHandler.Get)
			protected.PATCH("/workspaces/:id", cfg.WorkspaceHandler.Rename)
			protected.DELETE("/workspaces/:id", cfg.WorkspaceHandler.Delete)
			protected.GET("/workspaces/:id/members", cfg.WorkspaceHandler.ListMembers)
			protected.POST("/workspaces/:id/members", cfg.WorkspaceHandler.AddMember)
			protected.DELETE("/workspaces/:id/members/:userId", cfg.WorkspaceHandler.RemoveMember)
		}

		// Bots
		if cfg.BotHandler != nil {
			protected.GET("/workspaces/:id/bots", cfg.BotHandler.List)
			protected.POST("/workspaces/:id/bots", cfg.BotHandler.Create)
			protected.GET("/bots/:id", cfg.BotHandler.Get)
			protected.PATCH("/bots/:id", cfg.BotHandler.Update)
			protected.DELETE("/bots/:id", cfg.BotHandler.Delete)
			protected.POST("/bots/:id/avatar", cfg.BotHandler.UploadAvatar)
			protected.POST("/bots/:id/train",
				cfg.RateLimiter.Limit(cfg.RateRules.Train, httpMW.ByParam("id")),
				cfg.BotHandler.Train)
			protected.GET("/bots/:id/pages", cfg.BotHandler.ListPages)
			protected.GET("/bots/:id/conversations", cfg.BotHandler.ListConversations)
			protected.GET("/bots/:id/conversations/:conversationId", cfg.BotHandler.GetTranscript)
			protected.GET("/bots/:id/analytics", cfg.BotHandler.Analytics)
			protected.POST("/bots/:id/chat", cfg.BotHandler.PreviewChat)
		}

		// API keys
		if cfg.APIKeyHandler != nil {
			protected.POST("/workspaces/:id/api-keys", cfg.APIKeyHandler.Create)
			protected.GET("/workspaces/:id/api-keys", cfg.APIKeyHandler.List)
			protected.DELETE("/workspaces/:id/api-keys/:keyId", cfg.APIKeyHandler.Revoke)
		}

		// Jobs
		if cfg.JobHandler != nil {
			protected.GET("/workspaces/:id/jobs", cfg.JobHandler.List)
			protected.GET("/workspaces/:id/jobs/:jobId", cfg.JobHandler.Get)
			protected.POST("/workspaces/:id/jobs/:jobId/cancel", cfg.JobHandler.Cancel)
		}

		// Billing
		if cfg.BillingHandler != nil {
			protected.GET("/billing/plans", cfg.BillingHandler.Plans)
			protected.POST("/workspaces/:id/billing/checkout", cfg.BillingHandler.Checkout)
			protected.POST("/workspaces/:id/billing/portal", cfg.BillingHandler.Portal)
		}

		// Issues
		if cfg.IssueHandler != nil {
			protected.POST("/workspaces/:id/issues", cfg.IssueHandler.Create)
			protected.GET("/workspaces/:id/issues", cfg.IssueHandler.List)
		}
	}

	return r
}
