package scheduler

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	types "github.com/yungbote/sitechat-backend/internal/domain"
	"github.com/yungbote/sitechat-backend/internal/platform/apierr"
	"github.com/yungbote/sitechat-backend/internal/platform/dbctx"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
	"github.com/yungbote/sitechat-backend/internal/services"
)

type scheduledBots struct {
	bots []*types.Bot
}

func (s *scheduledBots) Create(dbc dbctx.Context, b *types.Bot) error { return nil }

func (s *scheduledBots) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Bot, error) { return nil, nil }

func (s *scheduledBots) GetInWorkspace(dbc dbctx.Context, workspaceID, id uuid.UUID) (*types.Bot, error) {
	return nil, nil
}

func (s *scheduledBots) ListByWorkspace(dbc dbctx.Context, workspaceID uuid.UUID) ([]*types.Bot, error) {
	return nil, nil
}

func (s *scheduledBots) CountByWorkspace(dbc dbctx.Context, workspaceID uuid.UUID) (int64, error) {
	return 0, nil
}

func (s *scheduledBots) ListScheduled(dbc dbctx.Context) ([]*types.Bot, error) { return s.bots, nil }

func (s *scheduledBots) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	return nil
}

func (s *scheduledBots) SoftDelete(dbc dbctx.Context, id uuid.UUID) error { return nil }

type enqueuer struct {
	services.JobService
	calls    []uuid.UUID
	conflict bool
}

func (e *enqueuer) EnqueueUnique(dbc dbctx.Context, workspaceID uuid.UUID, requestedBy *uuid.UUID, jobType, entityType string, entityID uuid.UUID, payload map[string]any) (*types.JobRun, error) {
	e.calls = append(e.calls, entityID)
	if e.conflict {
		return nil, apierr.Conflict("job_in_progress", "busy")
	}
	return &types.JobRun{ID: uuid.New(), JobType: jobType, EntityID: &entityID}, nil
}

func TestReloadSyncsEntries(t *testing.T) {
	a := &types.Bot{ID: uuid.New(), RetrainSchedule: "0 3 * * *"}
	b := &types.Bot{ID: uuid.New(), RetrainSchedule: "@weekly"}
	bad := &types.Bot{ID: uuid.New(), RetrainSchedule: "every tuesday"}
	bots := &scheduledBots{bots: []*types.Bot{a, b, bad}}
	s := New(logger.Nop(), bots, &enqueuer{}, 0)

	require.NoError(t, s.Reload(context.Background()))
	assert.Equal(t, map[uuid.UUID]string{a.ID: "0 3 * * *", b.ID: "@weekly"}, s.Scheduled())
	assert.Len(t, s.cron.Entries(), 2)

	a.RetrainSchedule = "30 4 * * 1"
	bots.bots = []*types.Bot{a}
	require.NoError(t, s.Reload(context.Background()))
	assert.Equal(t, map[uuid.UUID]string{a.ID: "30 4 * * 1"}, s.Scheduled())
	assert.Len(t, s.cron.Entries(), 1)
}

func TestFireEnqueuesTraining(t *testing.T) {
	jobs := &enqueuer{}
	s := New(logger.Nop(), &scheduledBots{}, jobs, 0)
	botID := uuid.New()

	s.fire(context.Background(), uuid.New(), botID)
	jobs.conflict = true
	s.fire(context.Background(), uuid.New(), botID)

	assert.Equal(t, []uuid.UUID{botID, botID}, jobs.calls)
}

func TestFireSkipsAfterShutdown(t *testing.T) {
	jobs := &enqueuer{}
	s := New(logger.Nop(), &scheduledBots{}, jobs, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.fire(ctx, uuid.New(), uuid.New())
	assert.Empty(t, jobs.calls)
}
