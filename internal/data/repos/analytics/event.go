package analytics

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/sitechat-backend/internal/domain"
	"github.com/yungbote/sitechat-backend/internal/platform/dbctx"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
)

type EventRepo interface {
	Create(dbc dbctx.Context, rows []*types.AnalyticsEvent) error
	DailyCounts(dbc dbctx.Context, botID uuid.UUID, since time.Time) ([]types.DailyCount, error)
	Totals(dbc dbctx.Context, botID uuid.UUID, since time.Time) (map[string]int64, error)
}

type eventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEventRepo(db *gorm.DB, baseLog *logger.Logger) EventRepo {
	return &eventRepo{db: db, log: baseLog.With("repo", "AnalyticsEventRepo")}
}

func (r *eventRepo) Create(dbc dbctx.Context, rows []*types.AnalyticsEvent) error {
	if len(rows) == 0 {
		return nil
	}
	return dbc.DB(r.db).Create(&rows).Error
}

func (r *eventRepo) DailyCounts(dbc dbctx.Context, botID uuid.UUID, since time.Time) ([]types.DailyCount, error) {
	var out []types.DailyCount
	err := dbc.DB(r.db).
		Model(&types.AnalyticsEvent{}).
		Select("date_trunc('day', created_at) AS day, event_type, count(*) AS count").
		Where("bot_id = ? AND created_at >= ?", botID, since).
		Group("day, event_type").
		Order("day ASC, event_type ASC").
		Scan(&out).Error
	return out, err
}

func (r *eventRepo) Totals(dbc dbctx.Context, botID uuid.UUID, since time.Time) (map[string]int64, error) {
	var rows []struct {
		EventType string
		Count     int64
	}
	err := dbc.DB(r.db).
		Model(&types.AnalyticsEvent{}).
		Select("event_type, count(*) AS count").
		Where("bot_id = ? AND created_at >= ?", botID, since).
		Group("event_type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.EventType] = row.Count
	}
	return out, nil
}
