package ingestion

import (
	"context"

	"gorm.io/gorm"

	"github.com/yungbote/sitechat-backend/internal/data/repos"
	types "github.com/yungbote/sitechat-backend/internal/domain"
	"github.com/yungbote/sitechat-backend/internal/platform/chunker"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
	"github.com/yungbote/sitechat-backend/internal/platform/objectstore"
	"github.com/yungbote/sitechat-backend/internal/platform/pinecone"
	"github.com/yungbote/sitechat-backend/internal/platform/scraper"
)

// Crawler is the part of *scraper.Scraper training needs.
type Crawler interface {
	Crawl(ctx context.Context, seeds []string, opts scraper.CrawlOptions) ([]scraper.CrawlResult, error)
}

// PageLimits reports the plan's hard page cap for a workspace.
type PageLimits interface {
	MaxPagesPerBot(ws *types.Workspace) int
}

type UsecasesDeps struct {
	DB  *gorm.DB
	Log *logger.Logger

	Crawler  Crawler
	Embedder *Embedder
	Vec      pinecone.VectorStore
	Store    objectstore.Store

	Workspaces repos.WorkspaceRepo
	Bots       repos.BotRepo
	Pages      repos.PageRepo
	Embeddings repos.EmbeddingRepo
	Limits     PageLimits

	Chunking         chunker.Options
	CrawlConcurrency int
	CrawlDepth       int
}

type Usecases struct {
	deps UsecasesDeps
}

func New(deps UsecasesDeps) Usecases { return Usecases{deps: deps} }

func (u Usecases) WithLog(log *logger.Logger) Usecases {
	u.deps.Log = log
	return u
}

func (u Usecases) Train(ctx context.Context, in TrainInput, progress ProgressFunc) (TrainOutput, error) {
	return Train(ctx, u.deps, in, progress)
}
