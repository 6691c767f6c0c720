package services

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"gorm.io/datatypes"

	"github.com/yungbote/sitechat-backend/internal/data/repos"
	types "github.com/yungbote/sitechat-backend/internal/domain"
	"github.com/yungbote/sitechat-backend/internal/domain/analytics"
	"github.com/yungbote/sitechat-backend/internal/platform/apierr"
	"github.com/yungbote/sitechat-backend/internal/platform/dbctx"
	"github.com/yungbote/sitechat-backend/internal/platform/envutil"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
)

type TrackInput struct {
	WorkspaceID    uuid.UUID
	BotID          *uuid.UUID
	ConversationID *uuid.UUID
	EventType      string
	Properties     map[string]any
}

type AnalyticsSummary struct {
	BotID  uuid.UUID          `json:"bot_id"`
	Days   int                `json:"days"`
	Since  time.Time          `json:"since"`
	Daily  []types.DailyCount `json:"daily"`
	Totals map[string]int64   `json:"totals"`
}

type AnalyticsService interface {
	// Track queues an event and returns without waiting for the insert.
	// Failures and overflow are logged and never returned.
	Track(ctx context.Context, in TrackInput)
	Summary(dbc dbctx.Context, botID uuid.UUID, days int) (*AnalyticsSummary, error)
	// Close waits for queued events and stops the writers.
	Close()
}

type analyticsService struct {
	log  *logger.Logger
	repo repos.EventRepo
	now  func() time.Time
	pool *ants.Pool
	wg   sync.WaitGroup
}

// NewAnalyticsService writes events on a non-blocking pool sized by
// ANALYTICS_CONCURRENCY (default 16); events beyond it are dropped.
func NewAnalyticsService(baseLog *logger.Logger, repo repos.EventRepo) AnalyticsService {
	return newAnalyticsService(baseLog, repo, envutil.Int("ANALYTICS_CONCURRENCY", 16))
}

func newAnalyticsService(baseLog *logger.Logger, repo repos.EventRepo, workers int) *analyticsService {
	s := &analyticsService{log: baseLog.With("service", "AnalyticsService"), repo: repo, now: time.Now}
	if workers < 1 {
		workers = 1
	}
	pool, err := ants.NewPool(workers, ants.WithNonblocking(true))
	if err != nil {
		s.log.Warn("analytics pool unavailable; writing inline", "error", err)
		return s
	}
	s.pool = pool
	return s
}

func (s *analyticsService) Close() {
	s.wg.Wait()
	if s.pool != nil {
		s.pool.Release()
	}
}

func (s *analyticsService) Track(ctx context.Context, in TrackInput) {
	if in.WorkspaceID == uuid.Nil || in.EventType == "" {
		return
	}
	props := datatypes.JSON([]byte(`{}`))
	if len(in.Properties) > 0 {
		if b, err := json.Marshal(in.Properties); err == nil {
			props = datatypes.JSON(b)
		}
	}
	ev := &types.AnalyticsEvent{
		ID:             uuid.New(),
		WorkspaceID:    in.WorkspaceID,
		BotID:          in.BotID,
		ConversationID: in.ConversationID,
		EventType:      in.EventType,
		Properties:     props,
		CreatedAt:      s.now().UTC(),
	}
	// Detached from the request so a client disconnect does not drop the row.
	bg := context.WithoutCancel(ctx)
	if s.pool == nil {
		s.write(bg, ev)
		return
	}
	s.wg.Add(1)
	if err := s.pool.Submit(func() {
		defer s.wg.Done()
		s.write(bg, ev)
	}); err != nil {
		s.wg.Done()
		s.log.Warn("analytics event dropped", "event_type", in.EventType, "error", err)
	}
}

func (s *analyticsService) write(ctx context.Context, ev *types.AnalyticsEvent) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.repo.Create(dbctx.Of(ctx), []*types.AnalyticsEvent{ev}); err != nil {
		s.log.Warn("analytics event dropped", "event_type", ev.EventType, "error", err)
	}
}

func (s *analyticsService) Summary(dbc dbctx.Context, botID uuid.UUID, days int) (*AnalyticsSummary, error) {
	if days == 0 {
		days = 30
	}
	if days < 1 || days > 90 {
		return nil, apierr.Newf(http.StatusBadRequest, "invalid_request", "days must be between 1 and 90")
	}
	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	since := today.AddDate(0, 0, -(days - 1))

	daily, err := s.repo.DailyCounts(dbc, botID, since)
	if err != nil {
		return nil, err
	}
	totals, err := s.repo.Totals(dbc, botID, since)
	if err != nil {
		return nil, err
	}
	for _, k := range []string{analytics.EventConversationStarted, analytics.EventMessageSent} {
		if _, ok := totals[k]; !ok {
			totals[k] = 0
		}
	}
	if daily == nil {
		daily = []types.DailyCount{}
	}
	return &AnalyticsSummary{BotID: botID, Days: days, Since: since, Daily: daily, Totals: totals}, nil
}
