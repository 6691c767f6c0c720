package app

import (
	"time"

	"github.com/yungbote/sitechat-backend/internal/jobs/worker"
	"github.com/yungbote/sitechat-backend/internal/modules/chat"
	"github.com/yungbote/sitechat-backend/internal/platform/chunker"
	"github.com/yungbote/sitechat-backend/internal/platform/envutil"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
	"github.com/yungbote/sitechat-backend/internal/platform/ratelimit"
	"github.com/yungbote/sitechat-backend/internal/platform/scraper"
)

type Config struct {
	Env         string
	ServiceName string
	Version     string

	Addr            string
	ShutdownTimeout time.Duration
	AppURL          string
	CORSOrigins     []string

	// AutoMigrate runs gorm AutoMigrate and the SQL policy migrations on boot.
	AutoMigrate bool
	// EmbeddedWorker runs the job worker and scheduler inside serve.
	EmbeddedWorker bool
	ScheduleReload time.Duration

	DefaultModel     string
	Chunking         chunker.Options
	CrawlConcurrency int
	CrawlDepth       int

	Worker    worker.Config
	RateRules ratelimit.Rules
	Chat      chat.Options
	Scraper   scraper.Options
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		Env:         envutil.String("APP_ENV", "development"),
		ServiceName: envutil.String("OTEL_SERVICE_NAME", "sitechat-api"),
		Version:     envutil.String("APP_VERSION", "dev"),

		Addr:            ":" + envutil.String("PORT", "8080"),
		ShutdownTimeout: envutil.Duration("SHUTDOWN_TIMEOUT", 20*time.Second),
		AppURL:          envutil.String("APP_URL", "http://localhost:3000"),
		CORSOrigins:     envutil.List("CORS_ALLOWED_ORIGINS"),

		AutoMigrate:    envutil.Bool("DB_AUTO_MIGRATE", true),
		EmbeddedWorker: envutil.Bool("WORKER_EMBEDDED", false),
		ScheduleReload: envutil.Duration("SCHEDULER_RELOAD_INTERVAL", 5*time.Minute),

		DefaultModel: envutil.String("OPENAI_MODEL", "gpt-4o-mini"),
		Chunking: chunker.Options{
			Size:    envutil.Int("CHUNK_SIZE", chunker.DefaultSize),
			Overlap: envutil.Int("CHUNK_OVERLAP", chunker.DefaultOverlap),
		},
		CrawlConcurrency: envutil.Int("CRAWL_CONCURRENCY", 4),
		CrawlDepth:       envutil.Int("CRAWL_MAX_DEPTH", 3),

		Worker:    worker.ConfigFromEnv(),
		RateRules: ratelimit.RulesFromEnv(),
		Chat:      chat.OptionsFromEnv(),
		Scraper:   scraper.OptionsFromEnv(),
	}
	log.Info("Config loaded",
		"env", cfg.Env,
		"addr", cfg.Addr,
		"auto_migrate", cfg.AutoMigrate,
		"embedded_worker", cfg.EmbeddedWorker,
		"cors_origins", len(cfg.CORSOrigins),
	)
	return cfg
}
