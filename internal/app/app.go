package app

import (
	"context"
	"fmt"
	"sync"

	"gorm.io/gorm"

	"github.com/yungbote/sitechat-backend/internal/data/db"
	"github.com/yungbote/sitechat-backend/internal/data/repos"
	httpapi "github.com/yungbote/sitechat-backend/internal/http"
	"github.com/yungbote/sitechat-backend/internal/observability"
	"github.com/yungbote/sitechat-backend/internal/platform/envutil"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
)

// Options selects which surfaces New builds. The worker process needs no
// HTTP stack and therefore no Supabase secret.
type Options struct {
	HTTP bool
}

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Clients  Clients
	Repos    *repos.Set
	Services Services
	Jobs     Jobs
	Server   *httpapi.Server
	Metrics  *observability.Metrics

	pg           *db.PostgresService
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
	bg           sync.WaitGroup
}

func New(ctx context.Context, opts Options) (*App, error) {
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Env,
		Version:     cfg.Version,
	})
	metrics := observability.Init(log)

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	theDB := pg.DB()
	if cfg.AutoMigrate {
		if err := Migrate(theDB, log); err != nil {
			_ = pg.Close()
			log.Sync()
			return nil, err
		}
	}

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		_ = pg.Close()
		log.Sync()
		return nil, err
	}
	reposet := repos.NewSet(theDB, log)

	serviceset, err := wireServices(theDB, log, cfg, clients, reposet)
	if err != nil {
		clients.Close()
		_ = pg.Close()
		log.Sync()
		return nil, err
	}
	jobset, err := wireJobs(theDB, log, cfg, reposet, serviceset)
	if err != nil {
		clients.Close()
		_ = pg.Close()
		log.Sync()
		return nil, err
	}

	a := &App{
		Log:          log,
		DB:           theDB,
		Cfg:          cfg,
		Clients:      clients,
		Repos:        reposet,
		Services:     serviceset,
		Jobs:         jobset,
		Metrics:      metrics,
		pg:           pg,
		otelShutdown: otelShutdown,
	}

	if opts.HTTP {
		mw, err := wireMiddleware(log, clients, serviceset)
		if err != nil {
			a.Close()
			return nil, err
		}
		handlerset := wireHandlers(log, cfg, serviceset, mw, metrics)
		a.Server = wireServer(log, cfg, handlerset, mw, metrics)
	}
	return a, nil
}

// Migrate applies gorm AutoMigrate followed by the SQL policy migrations.
func Migrate(theDB *gorm.DB, log *logger.Logger) error {
	log.Info("Running migrations...")
	if err := db.AutoMigrateAll(theDB); err != nil {
		return fmt.Errorf("postgres automigrate: %w", err)
	}
	if err := db.ApplyPolicies(theDB); err != nil {
		return err
	}
	return nil
}

// StartBackground launches the metric collectors and, when withJobs is set,
// the job worker and retrain scheduler.
func (a *App) StartBackground(ctx context.Context, withJobs bool) {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if a.Metrics != nil {
		a.Metrics.StartJobQueueCollector(ctx, a.Log, a.DB)
		if a.Clients.Redis != nil {
			a.Metrics.StartRedisCollector(ctx, a.Log, a.Clients.Redis)
		}
	}
	if !withJobs {
		return
	}
	a.Jobs.Worker.Start(ctx)
	a.bg.Add(1)
	go func() {
		defer a.bg.Done()
		a.Jobs.Scheduler.Run(ctx)
	}()
}

// Serve runs the HTTP server until ctx is done.
func (a *App) Serve(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized for http")
	}
	return a.Server.Run(ctx, a.Cfg.Addr, a.Cfg.ShutdownTimeout)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.Jobs.Worker != nil {
		a.Jobs.Worker.Wait()
	}
	a.bg.Wait()
	if a.Services.Analytics != nil {
		a.Services.Analytics.Close()
	}
	a.Services.Embedder.Release()
	a.Clients.Close()
	if a.otelShutdown != nil {
		sctx, cancel := context.WithTimeout(context.Background(), a.Cfg.ShutdownTimeout)
		if err := a.otelShutdown(sctx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
		cancel()
	}
	if a.pg != nil {
		if err := a.pg.Close(); err != nil {
			a.Log.Warn("postgres close failed", "error", err)
		}
	}
	a.Log.Sync()
}
