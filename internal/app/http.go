package app

import (
	"fmt"

	httpapi "github.com/yungbote/sitechat-backend/internal/http"
	httpH "github.com/yungbote/sitechat-backend/internal/http/handlers"
	httpMW "github.com/yungbote/sitechat-backend/internal/http/middleware"
	"github.com/yungbote/sitechat-backend/internal/observability"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
	"github.com/yungbote/sitechat-backend/internal/platform/ratelimit"
	"github.com/yungbote/sitechat-backend/internal/platform/supabase"
	"github.com/yungbote/sitechat-backend/internal/services"
)

type Middleware struct {
	Auth        *httpMW.AuthMiddleware
	APIKey      *httpMW.APIKeyMiddleware
	RateLimiter *httpMW.RateLimiter
}

type Handlers struct {
	Health    *httpH.HealthHandler
	Me        *httpH.MeHandler
	Workspace *httpH.WorkspaceHandler
	Bot       *httpH.BotHandler
	APIKey    *httpH.APIKeyHandler
	Job       *httpH.JobHandler
	Billing   *httpH.BillingHandler
	Issue     *httpH.IssueHandler
	Widget    *httpH.WidgetHandler
	PublicAPI *httpH.PublicAPIHandler
}

func wireMiddleware(log *logger.Logger, clients Clients, svc Services) (Middleware, error) {
	log.Info("Wiring middleware...")
	verifier, err := supabase.NewVerifierFromEnv()
	if err != nil {
		return Middleware{}, fmt.Errorf("init supabase verifier: %w", err)
	}
	auth, err := services.NewAuthService(log, verifier)
	if err != nil {
		return Middleware{}, err
	}
	return Middleware{
		Auth:        httpMW.NewAuthMiddleware(log, auth),
		APIKey:      httpMW.NewAPIKeyMiddleware(log, svc.APIKeys),
		RateLimiter: httpMW.NewRateLimiter(log, ratelimit.New(log, clients.Redis)),
	}, nil
}

func wireHandlers(log *logger.Logger, cfg Config, svc Services, mw Middleware, metrics *observability.Metrics) Handlers {
	log.Info("Wiring handlers...")
	starter := httpH.NewChatStarter(svc.Chat)
	return Handlers{
		Health:    httpH.NewHealthHandler(metrics),
		Me:        httpH.NewMeHandler(log, svc.Workspaces),
		Workspace: httpH.NewWorkspaceHandler(log, svc.Workspaces),
		Bot:       httpH.NewBotHandler(log, svc.Bots, svc.Workspaces, svc.Analytics, starter),
		APIKey:    httpH.NewAPIKeyHandler(log, svc.APIKeys),
		Job:       httpH.NewJobHandler(log, svc.Jobs, svc.Workspaces),
		Billing:   httpH.NewBillingHandler(log, svc.Billing),
		Issue:     httpH.NewIssueHandler(log, svc.Issues),
		Widget:    httpH.NewWidgetHandler(log, svc.Bots, svc.Analytics, starter, mw.RateLimiter, cfg.RateRules),
		PublicAPI: httpH.NewPublicAPIHandler(log, starter),
	}
}

func wireServer(log *logger.Logger, cfg Config, h Handlers, mw Middleware, metrics *observability.Metrics) *httpapi.Server {
	serviceName := ""
	if observability.TracingEnabled() {
		serviceName = cfg.ServiceName
	}
	return httpapi.NewServer(httpapi.RouterConfig{
		Log:         log,
		Metrics:     metrics,
		ServiceName: serviceName,
		CORSOrigins: cfg.CORSOrigins,

		AuthMiddleware:   mw.Auth,
		APIKeyMiddleware: mw.APIKey,
		RateLimiter:      mw.RateLimiter,
		RateRules:        cfg.RateRules,

		HealthHandler:    h.Health,
		MeHandler:        h.Me,
		WorkspaceHandler: h.Workspace,
		BotHandler:       h.Bot,
		APIKeyHandler:    h.APIKey,
		JobHandler:       h.Job,
		BillingHandler:   h.Billing,
		IssueHandler:     h.Issue,
		WidgetHandler:    h.Widget,
		PublicAPIHandler: h.PublicAPI,
	})
}
