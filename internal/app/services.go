package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/sitechat-backend/internal/data/repos"
	"github.com/yungbote/sitechat-backend/internal/modules/chat"
	"github.com/yungbote/sitechat-backend/internal/modules/ingestion"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
	"github.com/yungbote/sitechat-backend/internal/platform/plans"
	"github.com/yungbote/sitechat-backend/internal/platform/redisx"
	"github.com/yungbote/sitechat-backend/internal/services"
)

type Services struct {
	Catalog *plans.Catalog

	Workspaces services.WorkspaceService
	APIKeys    services.APIKeyService
	Billing    services.BillingService
	Analytics  services.AnalyticsService
	Issues     services.IssueService
	Jobs       services.JobService
	Bots       services.BotService

	Chat      chat.Usecases
	Ingestion ingestion.Usecases
	Embedder  *ingestion.Embedder
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, clients Clients, r *repos.Set) (Services, error) {
	log.Info("Wiring services...")

	catalog, err := plans.Load()
	if err != nil {
		return Services{}, fmt.Errorf("load plan catalog: %w", err)
	}

	workspaces := services.NewWorkspaceService(db, log, r.Workspaces, r.Members, catalog)
	analytics := services.NewAnalyticsService(log, r.Events)
	billing := services.NewBillingService(log, clients.Stripe, catalog, r.Workspaces, r.Bots, r.Messages, workspaces, cfg.AppURL)
	jobs := services.NewJobService(db, log, r.JobRuns)

	bots := services.NewBotService(services.BotServiceDeps{
		DB:            db,
		Log:           log,
		Bots:          r.Bots,
		Pages:         r.Pages,
		Conversations: r.Conversations,
		Messages:      r.Messages,
		Access:        workspaces,
		Billing:       billing,
		Jobs:          jobs,
		Vectors:       clients.Vectors,
		Store:         clients.Store,
		Avatars:       clients.Avatars,
		Cache:         redisx.NewJSONCache(clients.Redis, log, "widget_config:"),
		DefaultModel:  cfg.DefaultModel,
	})

	chatUC := chat.New(chat.UsecasesDeps{
		DB:            db,
		Log:           log.With("module", "chat"),
		AI:            clients.OpenAI,
		Vec:           clients.Vectors,
		Bots:          r.Bots,
		Workspaces:    r.Workspaces,
		Conversations: r.Conversations,
		Messages:      r.Messages,
		Billing:       billing,
		Analytics:     analytics,
		Options:       cfg.Chat,
	})

	embedder, err := ingestion.NewEmbedder(log, clients.OpenAI)
	if err != nil {
		return Services{}, fmt.Errorf("init embedder: %w", err)
	}
	ingestUC := ingestion.New(ingestion.UsecasesDeps{
		DB:               db,
		Log:              log.With("module", "ingestion"),
		Crawler:          clients.Scraper,
		Embedder:         embedder,
		Vec:              clients.Vectors,
		Store:            clients.Store,
		Workspaces:       r.Workspaces,
		Bots:             r.Bots,
		Pages:            r.Pages,
		Embeddings:       r.Embeddings,
		Limits:           billing,
		Chunking:         cfg.Chunking,
		CrawlConcurrency: cfg.CrawlConcurrency,
		CrawlDepth:       cfg.CrawlDepth,
	})

	return Services{
		Catalog:    catalog,
		Workspaces: workspaces,
		APIKeys:    services.NewAPIKeyService(log, r.APIKeys, workspaces),
		Billing:    billing,
		Analytics:  analytics,
		Issues:     services.NewIssueService(log, clients.Tracker, workspaces),
		Jobs:       jobs,
		Bots:       bots,
		Chat:       chatUC,
		Ingestion:  ingestUC,
		Embedder:   embedder,
	}, nil
}
