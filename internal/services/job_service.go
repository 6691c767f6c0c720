package services

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/sitechat-backend/internal/data/repos"
	types "github.com/yungbote/sitechat-backend/internal/domain"
	jobstatus "github.com/yungbote/sitechat-backend/internal/domain/jobs"
	"github.com/yungbote/sitechat-backend/internal/platform/apierr"
	"github.com/yungbote/sitechat-backend/internal/platform/ctxutil"
	"github.com/yungbote/sitechat-backend/internal/platform/dbctx"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
)

const (
	JobTypeBotTrain  = "bot_train"
	EntityTypeBot    = "bot"
	JobStageQueued   = "queued"
	JobMessageQueued = "Queued"
)

type JobService interface {
	Enqueue(dbc dbctx.Context, workspaceID uuid.UUID, requestedBy *uuid.UUID, jobType string, entityType string, entityID *uuid.UUID, payload map[string]any) (*types.JobRun, error)
	// EnqueueUnique is Enqueue unless a queued or running job of the same
	// type already exists for the entity, in which case it returns a conflict.
	EnqueueUnique(dbc dbctx.Context, workspaceID uuid.UUID, requestedBy *uuid.UUID, jobType string, entityType string, entityID uuid.UUID, payload map[string]any) (*types.JobRun, error)
	Get(dbc dbctx.Context, workspaceID, jobID uuid.UUID) (*types.JobRun, error)
	LatestForEntity(dbc dbctx.Context, entityType string, entityID uuid.UUID, jobType string) (*types.JobRun, error)
	ListForWorkspace(dbc dbctx.Context, workspaceID uuid.UUID, limit int) ([]*types.JobRun, error)
	Cancel(dbc dbctx.Context, workspaceID, jobID uuid.UUID) (*types.JobRun, error)
}

type jobService struct {
	db   *gorm.DB
	log  *logger.Logger
	repo repos.JobRunRepo
}

func NewJobService(db *gorm.DB, baseLog *logger.Logger, repo repos.JobRunRepo) JobService {
	return &jobService{db: db, log: baseLog.With("service", "JobService"), repo: repo}
}

func (s *jobService) Enqueue(dbc dbctx.Context, workspaceID uuid.UUID, requestedBy *uuid.UUID, jobType string, entityType string, entityID *uuid.UUID, payload map[string]any) (*types.JobRun, error) {
	if workspaceID == uuid.Nil {
		return nil, fmt.Errorf("missing workspace_id")
	}
	if jobType == "" {
		return nil, fmt.Errorf("missing job_type")
	}
	if payload == nil {
		payload = map[string]any{}
	}
	if td := ctxutil.GetTraceData(dbc.Ctx); td != nil {
		if _, ok := payload["trace_id"]; !ok && td.TraceID != "" {
			payload["trace_id"] = td.TraceID
		}
		if _, ok := payload["request_id"]; !ok && td.RequestID != "" {
			payload["request_id"] = td.RequestID
		}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	now := time.Now()
	job := &types.JobRun{
		ID:          uuid.New(),
		WorkspaceID: workspaceID,
		RequestedBy: requestedBy,
		JobType:     jobType,
		EntityType:  entityType,
		EntityID:    entityID,
		Status:      jobstatus.StatusQueued,
		Stage:       JobStageQueued,
		Message:     JobMessageQueued,
		Payload:     datatypes.JSON(b),
		Result:      datatypes.JSON([]byte(`{}`)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.repo.Create(dbc, []*types.JobRun{job}); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	s.log.Info("job enqueued", "job_id", job.ID, "job_type", jobType, "entity_id", entityID)
	return job, nil
}

func (s *jobService) EnqueueUnique(dbc dbctx.Context, workspaceID uuid.UUID, requestedBy *uuid.UUID, jobType string, entityType string, entityID uuid.UUID, payload map[string]any) (*types.JobRun, error) {
	var job *types.JobRun
	err := dbc.DB(s.db).Transaction(func(tx *gorm.DB) error {
		inner := dbctx.Context{Ctx: dbc.Ctx, Tx: tx}
		// Serialize concurrent enqueues for the same entity.
		if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", jobType+":"+entityID.String()).Error; err != nil {
			return err
		}
		exists, err := s.repo.ExistsRunnable(inner, jobType, entityType, &entityID)
		if err != nil {
			return err
		}
		if exists {
			return apierr.Conflict("job_in_progress", jobType+" already queued or running")
		}
		job, err = s.Enqueue(inner, workspaceID, requestedBy, jobType, entityType, &entityID, payload)
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (s *jobService) Get(dbc dbctx.Context, workspaceID, jobID uuid.UUID) (*types.JobRun, error) {
	job, err := s.repo.GetByID(dbc, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil || job.WorkspaceID != workspaceID {
		return nil, apierr.NotFound("job")
	}
	return job, nil
}

func (s *jobService) LatestForEntity(dbc dbctx.Context, entityType string, entityID uuid.UUID, jobType string) (*types.JobRun, error) {
	return s.repo.GetLatestByEntity(dbc, entityType, entityID, jobType)
}

func (s *jobService) ListForWorkspace(dbc dbctx.Context, workspaceID uuid.UUID, limit int) ([]*types.JobRun, error) {
	return s.repo.ListByWorkspace(dbc, workspaceID, limit)
}

func (s *jobService) Cancel(dbc dbctx.Context, workspaceID, jobID uuid.UUID) (*types.JobRun, error) {
	job, err := s.Get(dbc, workspaceID, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != jobstatus.StatusQueued && job.Status != jobstatus.StatusRunning {
		return job, nil
	}
	now := time.Now()
	ok, err := s.repo.UpdateFieldsUnlessStatus(dbc, job.ID,
		[]string{jobstatus.StatusSucceeded, jobstatus.StatusFailed, jobstatus.StatusCanceled},
		map[string]interface{}{
			"status":       jobstatus.StatusCanceled,
			"stage":        "canceled",
			"message":      "Canceled",
			"locked_at":    nil,
			"heartbeat_at": now,
		})
	if err != nil {
		return nil, err
	}
	if ok {
		job.Status = jobstatus.StatusCanceled
		job.Stage = "canceled"
		job.Message = "Canceled"
	}
	return job, nil
}
