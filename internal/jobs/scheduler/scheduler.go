package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/yungbote/sitechat-backend/internal/data/repos"
	"github.com/yungbote/sitechat-backend/internal/platform/apierr"
	"github.com/yungbote/sitechat-backend/internal/platform/dbctx"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
	"github.com/yungbote/sitechat-backend/internal/services"
)

type entry struct {
	spec string
	id   cron.EntryID
}

// Scheduler keeps one cron entry per bot with a retrain_schedule and
// enqueues bot_train when an entry fires.
type Scheduler struct {
	log      *logger.Logger
	bots     repos.BotRepo
	jobs     services.JobService
	cron     *cron.Cron
	interval time.Duration

	mu      sync.Mutex
	entries map[uuid.UUID]entry
}

func New(baseLog *logger.Logger, bots repos.BotRepo, jobs services.JobService, reloadEvery time.Duration) *Scheduler {
	if reloadEvery <= 0 {
		reloadEvery = 5 * time.Minute
	}
	return &Scheduler{
		log:      baseLog.With("component", "RetrainScheduler"),
		bots:     bots,
		jobs:     jobs,
		cron:     cron.New(cron.WithLocation(time.UTC)),
		interval: reloadEvery,
		entries:  map[uuid.UUID]entry{},
	}
}

// Run loads schedules, starts the cron and reloads until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	if err := s.Reload(ctx); err != nil {
		s.log.Warn("initial schedule load failed", "error", err)
	}
	s.cron.Start()
	defer func() {
		<-s.cron.Stop().Done()
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-ticker.C:
			if err := s.Reload(ctx); err != nil {
				s.log.Warn("schedule reload failed", "error", err)
			}
		}
	}
}

// Reload syncs cron entries with the bots table: new or changed schedules
// are (re)added and entries for bots that lost their schedule are removed.
func (s *Scheduler) Reload(ctx context.Context) error {
	bots, err := s.bots.ListScheduled(dbctx.Context{Ctx: ctx})
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[uuid.UUID]bool, len(bots))
	for _, b := range bots {
		seen[b.ID] = true
		if cur, ok := s.entries[b.ID]; ok {
			if cur.spec == b.RetrainSchedule {
				continue
			}
			s.cron.Remove(cur.id)
			delete(s.entries, b.ID)
		}
		botID, workspaceID := b.ID, b.WorkspaceID
		id, err := s.cron.AddFunc(b.RetrainSchedule, func() {
			s.fire(ctx, workspaceID, botID)
		})
		if err != nil {
			s.log.Warn("invalid retrain_schedule skipped", "bot_id", b.ID, "schedule", b.RetrainSchedule, "error", err)
			continue
		}
		s.entries[b.ID] = entry{spec: b.RetrainSchedule, id: id}
	}
	for botID, e := range s.entries {
		if !seen[botID] {
			s.cron.Remove(e.id)
			delete(s.entries, botID)
		}
	}
	s.log.Debug("schedules loaded", "count", len(s.entries))
	return nil
}

func (s *Scheduler) fire(ctx context.Context, workspaceID, botID uuid.UUID) {
	if ctx.Err() != nil {
		return
	}
	job, err := s.jobs.EnqueueUnique(dbctx.Context{Ctx: ctx}, workspaceID, nil, services.JobTypeBotTrain, services.EntityTypeBot, botID, map[string]any{
		"bot_id":    botID.String(),
		"scheduled": true,
	})
	if err != nil {
		if ae, ok := apierr.As(err); ok && ae.Code == "job_in_progress" {
			s.log.Debug("scheduled retrain skipped; job already runnable", "bot_id", botID)
			return
		}
		s.log.Warn("scheduled retrain enqueue failed", "bot_id", botID, "error", err)
		return
	}
	s.log.Info("scheduled retrain enqueued", "bot_id", botID, "job_id", job.ID)
}

// Scheduled lists the bots with a live cron entry.
func (s *Scheduler) Scheduled() map[uuid.UUID]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uuid.UUID]string, len(s.entries))
	for id, e := range s.entries {
		out[id] = e.spec
	}
	return out
}
