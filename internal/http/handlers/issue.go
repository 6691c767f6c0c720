package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/sitechat-backend/internal/http/response"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
	"github.com/yungbote/sitechat-backend/internal/services"
)

type IssueHandler struct {
	log    *logger.Logger
	issues services.IssueService
}

func NewIssueHandler(log *logger.Logger, issues services.IssueService) *IssueHandler {
	return &IssueHandler{log: log.With("handler", "IssueHandler"), issues: issues}
}

type createIssueReq struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// POST /api/workspaces/:id/issues
func (h *IssueHandler) Create(c *gin.Context) {
	wsID, ok := uuidParam(c, "id", "invalid_workspace_id")
	if !ok {
		return
	}
	var req createIssueReq
	if !bindJSON(c, &req) {
		return
	}
	issue, err := h.issues.Create(dbcOf(c), wsID, req.Title, req.Body)
	if err != nil {
		response.RespondAPIError(c, h.log, err)
		return
	}
	response.RespondCreated(c, gin.H{"issue": issue})
}

// GET /api/workspaces/:id/issues?state=open
func (h *IssueHandler) List(c *gin.Context) {
	wsID, ok := uuidParam(c, "id", "invalid_workspace_id")
	if !ok {
		return
	}
	issues, err := h.issues.List(dbcOf(c), wsID, c.DefaultQuery("state", "open"))
	if err != nil {
		response.RespondAPIError(c, h.log, err)
		return
	}
	response.RespondOK(c, gin.H{"issues": issues})
}
