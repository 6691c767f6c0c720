package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/sitechat-backend/internal/data/repos"
	"github.com/yungbote/sitechat-backend/internal/jobs/pipeline/bot_train"
	jobruntime "github.com/yungbote/sitechat-backend/internal/jobs/runtime"
	"github.com/yungbote/sitechat-backend/internal/jobs/scheduler"
	"github.com/yungbote/sitechat-backend/internal/jobs/worker"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
)

type Jobs struct {
	Registry  *jobruntime.Registry
	Worker    *worker.Worker
	Scheduler *scheduler.Scheduler
}

func wireJobs(db *gorm.DB, log *logger.Logger, cfg Config, r *repos.Set, svc Services) (Jobs, error) {
	log.Info("Wiring job runtime...")
	registry := jobruntime.NewRegistry()
	if err := registry.Register(bot_train.New(log, svc.Ingestion, r.Bots, svc.Analytics)); err != nil {
		return Jobs{}, fmt.Errorf("register bot_train: %w", err)
	}
	return Jobs{
		Registry:  registry,
		Worker:    worker.NewWorker(db, log, r.JobRuns, registry, cfg.Worker),
		Scheduler: scheduler.New(log, r.Bots, svc.Jobs, cfg.ScheduleReload),
	}, nil
}
