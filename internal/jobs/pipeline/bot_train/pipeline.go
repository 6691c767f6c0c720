package bot_train

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/yungbote/sitechat-backend/internal/data/repos"
	"github.com/yungbote/sitechat-backend/internal/domain/analytics"
	"github.com/yungbote/sitechat-backend/internal/domain/bot"
	jobrt "github.com/yungbote/sitechat-backend/internal/jobs/runtime"
	"github.com/yungbote/sitechat-backend/internal/modules/ingestion"
	"github.com/yungbote/sitechat-backend/internal/platform/dbctx"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
	"github.com/yungbote/sitechat-backend/internal/services"
)

// Trainer is the part of ingestion.Usecases the pipeline drives.
type Trainer interface {
	Train(ctx context.Context, in ingestion.TrainInput, progress ingestion.ProgressFunc) (ingestion.TrainOutput, error)
}

type Pipeline struct {
	log       *logger.Logger
	trainer   Trainer
	bots      repos.BotRepo
	analytics services.AnalyticsService
}

func New(log *logger.Logger, trainer Trainer, bots repos.BotRepo, analytics services.AnalyticsService) *Pipeline {
	return &Pipeline{
		log:       log.With("job", services.JobTypeBotTrain),
		trainer:   trainer,
		bots:      bots,
		analytics: analytics,
	}
}

func (p *Pipeline) Type() string { return services.JobTypeBotTrain }

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	botID, ok := jc.PayloadUUID("bot_id")
	if !ok && jc.Job.EntityID != nil {
		botID, ok = *jc.Job.EntityID, true
	}
	if !ok || botID == uuid.Nil {
		jc.Fail("validate", fmt.Errorf("missing bot_id"))
		return nil
	}
	maxPages, _ := jc.PayloadInt("max_pages")
	in := ingestion.TrainInput{
		BotID:    botID,
		URLs:     jc.PayloadStrings("urls"),
		MaxPages: maxPages,
	}

	var (
		mu    sync.Mutex
		stage = ingestion.StageCrawl
	)
	jc.Progress(stage, 0, "Starting training")
	out, err := p.trainer.Train(jc.Ctx, in, func(s string, pct int, msg string) {
		mu.Lock()
		stage = s
		mu.Unlock()
		jc.Progress(s, pct, msg)
	})
	if err != nil {
		p.markFailed(jc, botID, err)
		mu.Lock()
		failedAt := stage
		mu.Unlock()
		jc.Fail(failedAt, err)
		return nil
	}

	if p.analytics != nil {
		p.analytics.Track(jc.Ctx, services.TrackInput{
			WorkspaceID: jc.Job.WorkspaceID,
			BotID:       &botID,
			EventType:   analytics.EventBotTrained,
			Properties: map[string]any{
				"pages":       out.PagesOK,
				"chunks":      out.Chunks,
				"duration_ms": out.DurationMS,
			},
		})
	}
	jc.Succeed(ingestion.StageFinalize, map[string]any{
		"bot_id":       botID.String(),
		"pages_ok":     out.PagesOK,
		"pages_failed": out.PagesFailed,
		"chunks":       out.Chunks,
		"duration_ms":  out.DurationMS,
	})
	return nil
}

func (p *Pipeline) markFailed(jc *jobrt.Context, botID uuid.UUID, cause error) {
	msg := cause.Error()
	if len(msg) > 500 {
		msg = msg[:500]
	}
	dbc := dbctx.Context{Ctx: context.WithoutCancel(jc.Ctx)}
	status := bot.StatusFailed
	// Training never removes the previous index before the new one is
	// written, so a bot that was trained before keeps serving.
	if b, err := p.bots.GetByID(dbc, botID); err == nil && b != nil && b.LastTrainedAt != nil {
		status = bot.StatusReady
		msg = "last retrain failed: " + msg
	}
	if err := p.bots.UpdateFields(dbc, botID, map[string]interface{}{
		"status":       status,
		"status_error": msg,
	}); err != nil {
		p.log.Warn("marking bot failed did not persist", "bot_id", botID, "error", err)
	}
	p.log.Warn("bot training failed", "bot_id", botID, "error", cause)
}
