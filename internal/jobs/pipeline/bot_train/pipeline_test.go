package bot_train

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	types "github.com/yungbote/sitechat-backend/internal/domain"
	"github.com/yungbote/sitechat-backend/internal/domain/analytics"
	"github.com/yungbote/sitechat-backend/internal/domain/bot"
	"github.com/yungbote/sitechat-backend/internal/domain/jobs"
	jobrt "github.com/yungbote/sitechat-backend/internal/jobs/runtime"
	"github.com/yungbote/sitechat-backend/internal/modules/ingestion"
	"github.com/yungbote/sitechat-backend/internal/platform/dbctx"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
	"github.com/yungbote/sitechat-backend/internal/services"
)

type stubTrainer struct {
	got ingestion.TrainInput
	out ingestion.TrainOutput
	err error
}

func (s *stubTrainer) Train(ctx context.Context, in ingestion.TrainInput, progress ingestion.ProgressFunc) (ingestion.TrainOutput, error) {
	s.got = in
	progress(ingestion.StageCrawl, 20, "crawling")
	if s.err != nil {
		progress(ingestion.StageEmbed, 60, "embedding")
		return s.out, s.err
	}
	progress(ingestion.StageEmbed, 90, "embedding")
	return s.out, nil
}

type botUpdates struct {
	current *types.Bot
	fields  map[string]interface{}
}

func (b *botUpdates) Create(dbc dbctx.Context, x *types.Bot) error { return nil }

func (b *botUpdates) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Bot, error) {
	return b.current, nil
}

func (b *botUpdates) GetInWorkspace(dbc dbctx.Context, workspaceID, id uuid.UUID) (*types.Bot, error) {
	return nil, nil
}

func (b *botUpdates) ListByWorkspace(dbc dbctx.Context, workspaceID uuid.UUID) ([]*types.Bot, error) {
	return nil, nil
}

func (b *botUpdates) CountByWorkspace(dbc dbctx.Context, workspaceID uuid.UUID) (int64, error) {
	return 0, nil
}

func (b *botUpdates) ListScheduled(dbc dbctx.Context) ([]*types.Bot, error) { return nil, nil }

func (b *botUpdates) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	b.fields = updates
	return nil
}

func (b *botUpdates) SoftDelete(dbc dbctx.Context, id uuid.UUID) error { return nil }

type eventLog struct{ events []string }

func (e *eventLog) Track(ctx context.Context, in services.TrackInput) {
	e.events = append(e.events, in.EventType)
}

func (e *eventLog) Close() {}

func (e *eventLog) Summary(dbc dbctx.Context, botID uuid.UUID, days int) (*services.AnalyticsSummary, error) {
	return nil, nil
}

func jobFor(payload string) *jobrt.Context {
	j := &types.JobRun{
		ID:      uuid.New(),
		JobType: services.JobTypeBotTrain,
		Status:  jobs.StatusRunning,
		Payload: datatypes.JSON(payload),
	}
	return jobrt.NewContext(context.Background(), nil, j, nil)
}

func TestRunSucceeds(t *testing.T) {
	botID := uuid.New()
	tr := &stubTrainer{out: ingestion.TrainOutput{PagesOK: 4, Chunks: 30, DurationMS: int64(time.Second / time.Millisecond)}}
	ev := &eventLog{}
	p := New(logger.Nop(), tr, &botUpdates{}, ev)
	assert.Equal(t, "bot_train", p.Type())

	jc := jobFor(`{"bot_id":"` + botID.String() + `","urls":["https://a.test/"],"max_pages":7}`)
	require.NoError(t, p.Run(jc))

	assert.Equal(t, botID, tr.got.BotID)
	assert.Equal(t, []string{"https://a.test/"}, tr.got.URLs)
	assert.Equal(t, 7, tr.got.MaxPages)
	assert.Equal(t, jobs.StatusSucceeded, jc.Job.Status)
	assert.Equal(t, 100, jc.Job.Progress)
	assert.JSONEq(t, `{"bot_id":"`+botID.String()+`","pages_ok":4,"pages_failed":0,"chunks":30,"duration_ms":1000}`, string(jc.Job.Result))
	assert.Equal(t, []string{analytics.EventBotTrained}, ev.events)
}

func TestRunFailureMarksBot(t *testing.T) {
	botID := uuid.New()
	bots := &botUpdates{}
	p := New(logger.Nop(), &stubTrainer{err: errors.New("pinecone unavailable")}, bots, nil)

	jc := jobFor(`{"bot_id":"` + botID.String() + `"}`)
	require.NoError(t, p.Run(jc))

	assert.Equal(t, jobs.StatusFailed, jc.Job.Status)
	assert.Equal(t, ingestion.StageEmbed, jc.Job.Stage)
	assert.Equal(t, bot.StatusFailed, bots.fields["status"])
	assert.Equal(t, "pinecone unavailable", bots.fields["status_error"])
}

func TestRunFailureKeepsTrainedBotServing(t *testing.T) {
	botID := uuid.New()
	trained := time.Now().Add(-time.Hour)
	bots := &botUpdates{current: &types.Bot{ID: botID, Status: bot.StatusTraining, LastTrainedAt: &trained}}
	p := New(logger.Nop(), &stubTrainer{err: errors.New("no pages could be scraped")}, bots, nil)

	jc := jobFor(`{"bot_id":"` + botID.String() + `","scheduled":true}`)
	require.NoError(t, p.Run(jc))

	assert.Equal(t, jobs.StatusFailed, jc.Job.Status)
	assert.Equal(t, bot.StatusReady, bots.fields["status"])
	assert.Equal(t, "last retrain failed: no pages could be scraped", bots.fields["status_error"])
}

func TestRunFallsBackToEntityID(t *testing.T) {
	botID := uuid.New()
	tr := &stubTrainer{}
	p := New(logger.Nop(), tr, &botUpdates{}, nil)

	jc := jobFor(`{}`)
	jc.Job.EntityID = &botID
	require.NoError(t, p.Run(jc))
	assert.Equal(t, botID, tr.got.BotID)
}

func TestRunMissingBot(t *testing.T) {
	p := New(logger.Nop(), &stubTrainer{}, &botUpdates{}, nil)
	jc := jobFor(`{}`)
	require.NoError(t, p.Run(jc))
	assert.Equal(t, jobs.StatusFailed, jc.Job.Status)
	assert.Equal(t, "validate", jc.Job.Stage)
}
