package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/sitechat-backend/internal/platform/avatar"
	"github.com/yungbote/sitechat-backend/internal/platform/envutil"
	"github.com/yungbote/sitechat-backend/internal/platform/issuetracker"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
	"github.com/yungbote/sitechat-backend/internal/platform/objectstore"
	"github.com/yungbote/sitechat-backend/internal/platform/openai"
	"github.com/yungbote/sitechat-backend/internal/platform/payments"
	"github.com/yungbote/sitechat-backend/internal/platform/pinecone"
	"github.com/yungbote/sitechat-backend/internal/platform/redisx"
	"github.com/yungbote/sitechat-backend/internal/platform/scraper"
)

// Clients are the external integrations. Optional ones are nil when their
// credentials are not configured.
type Clients struct {
	Redis   *goredis.Client
	OpenAI  openai.Client
	Vectors pinecone.VectorStore
	Store   objectstore.Store
	Stripe  payments.Client
	Tracker issuetracker.Tracker
	Scraper *scraper.Scraper
	Avatars *avatar.Renderer
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	// Redis
	rdb, err := redisx.NewFromEnv(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init redis: %w", err)
	}
	closeRedis := func() {
		if rdb != nil {
			_ = rdb.Close()
		}
	}

	// OpenAI
	ai, err := openai.NewClient(log)
	if err != nil {
		closeRedis()
		return Clients{}, fmt.Errorf("init openai client: %w", err)
	}

	// Pinecone
	pc, err := pinecone.New(log, pinecone.Config{
		APIKey:     envutil.String("PINECONE_API_KEY", ""),
		APIVersion: envutil.String("PINECONE_API_VERSION", ""),
		BaseURL:    envutil.String("PINECONE_BASE_URL", ""),
		Timeout:    envutil.Duration("PINECONE_TIMEOUT_SECONDS", 0),
		MaxRetries: envutil.Int("PINECONE_MAX_RETRIES", 3),
	})
	if err != nil {
		closeRedis()
		return Clients{}, fmt.Errorf("init pinecone client: %w", err)
	}
	vectors, err := pinecone.NewVectorStore(log, pc)
	if err != nil {
		closeRedis()
		return Clients{}, fmt.Errorf("init vector store: %w", err)
	}

	// Object storage
	storeCfg, err := objectstore.ResolveConfigFromEnv()
	if err != nil {
		closeRedis()
		return Clients{}, fmt.Errorf("object storage config: %w", err)
	}
	store, err := objectstore.New(ctx, log, storeCfg)
	if err != nil {
		closeRedis()
		return Clients{}, fmt.Errorf("init object storage: %w", err)
	}

	// Stripe, GitHub
	stripe, err := payments.NewClient(log)
	if err != nil {
		closeRedis()
		return Clients{}, fmt.Errorf("init stripe: %w", err)
	}
	tracker, err := issuetracker.NewFromEnv(log)
	if err != nil {
		closeRedis()
		return Clients{}, fmt.Errorf("init github tracker: %w", err)
	}

	avatars, err := avatar.NewRenderer(log)
	if err != nil {
		log.Warn("avatar renderer unavailable; bots start without a default avatar", "error", err)
		avatars = nil
	}

	return Clients{
		Redis:   rdb,
		OpenAI:  ai,
		Vectors: vectors,
		Store:   store,
		Stripe:  stripe,
		Tracker: tracker,
		Scraper: scraper.New(log, cfg.Scraper),
		Avatars: avatars,
	}, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
