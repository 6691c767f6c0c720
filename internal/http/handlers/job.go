package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/sitechat-backend/internal/domain/workspace"
	"github.com/yungbote/sitechat-backend/internal/http/response"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
	"github.com/yungbote/sitechat-backend/internal/services"
)

type JobHandler struct {
	log        *logger.Logger
	jobs       services.JobService
	workspaces services.WorkspaceService
}

func NewJobHandler(log *logger.Logger, jobs services.JobService, workspaces services.WorkspaceService) *JobHandler {
	return &JobHandler{log: log.With("handler", "JobHandler"), jobs: jobs, workspaces: workspaces}
}

// GET /api/workspaces/:id/jobs?limit=20
func (h *JobHandler) List(c *gin.Context) {
	wsID, ok := uuidParam(c, "id", "invalid_workspace_id")
	if !ok {
		return
	}
	dbc := dbcOf(c)
	if _, _, err := h.workspaces.Authorize(dbc, wsID, workspace.RoleMember); err != nil {
		response.RespondAPIError(c, h.log, err)
		return
	}
	jobs, err := h.jobs.ListForWorkspace(dbc, wsID, queryInt(c, "limit", 20, 1, 100))
	if err != nil {
		response.RespondAPIError(c, h.log, err)
		return
	}
	response.RespondOK(c, gin.H{"jobs": jobs})
}

// GET /api/workspaces/:id/jobs/:jobId
func (h *JobHandler) Get(c *gin.Context) {
	wsID, ok := uuidParam(c, "id", "invalid_workspace_id")
	if !ok {
		return
	}
	jobID, ok := uuidParam(c, "jobId", "invalid_job_id")
	if !ok {
		return
	}
	dbc := dbcOf(c)
	if _, _, err := h.workspaces.Authorize(dbc, wsID, workspace.RoleMember); err != nil {
		response.RespondAPIError(c, h.log, err)
		return
	}
	job, err := h.jobs.Get(dbc, wsID, jobID)
	if err != nil {
		response.RespondAPIError(c, h.log, err)
		return
	}
	response.RespondOK(c, gin.H{"job": job})
}

// POST /api/workspaces/:id/jobs/:jobId/cancel
func (h *JobHandler) Cancel(c *gin.Context) {
	wsID, ok := uuidParam(c, "id", "invalid_workspace_id")
	if !ok {
		return
	}
	jobID, ok := uuidParam(c, "jobId", "invalid_job_id")
	if !ok {
		return
	}
	dbc := dbcOf(c)
	if _, _, err := h.workspaces.Authorize(dbc, wsID, workspace.RoleAdmin); err != nil {
		response.RespondAPIError(c, h.log, err)
		return
	}
	job, err := h.jobs.Cancel(dbc, wsID, jobID)
	if err != nil {
		response.RespondAPIError(c, h.log, err)
		return
	}
	response.RespondOK(c, gin.H{"job": job})
}
