package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/sitechat-backend/internal/http/response"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
	"github.com/yungbote/sitechat-backend/internal/services"
)

type WorkspaceHandler struct {
	log        *logger.Logger
	workspaces services.WorkspaceService
}

func NewWorkspaceHandler(log *logger.Logger, workspaces services.WorkspaceService) *WorkspaceHandler {
	return &WorkspaceHandler{log: log.With("handler", "WorkspaceHandler"), workspaces: workspaces}
}

type workspaceReq struct {
	Name string `json:"name"`
}

// POST /api/workspaces
func (h *WorkspaceHandler) Create(c *gin.Context) {
	var req workspaceReq
	if !bindJSON(c, &req) {
		return
	}
	ws, err := h.workspaces.Create(dbcOf(c), req.Name)
	if err != nil {
		response.RespondAPIError(c, h.log, err)
		return
	}
	response.RespondCreated(c, gin.H{"workspace": ws})
}

// GET /api/workspaces
func (h *WorkspaceHandler) List(c *gin.Context) {
	wss, err := h.workspaces.ListMine(dbcOf(c))
	if err != nil {
		response.RespondAPIError(c, h.log, err)
		return
	}
	response.RespondOK(c, gin.H{"workspaces": wss})
}

// GET /api/workspaces/:id
func (h *WorkspaceHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "id", "invalid_workspace_id")
	if !ok {
		return
	}
	ws, err := h.workspaces.Get(dbcOf(c), id)
	if err != nil {
		response.RespondAPIError(c, h.log, err)
		return
	}
	response.RespondOK(c, gin.H{"workspace": ws, "plan": h.workspaces.Plan(ws)})
}

// PATCH /api/workspaces/:id
func (h *WorkspaceHandler) Rename(c *gin.Context) {
	id, ok := uuidParam(c, "id", "invalid_workspace_id")
	if !ok {
		return
	}
	var req workspaceReq
	if !bindJSON(c, &req) {
		return
	}
	ws, err := h.workspaces.Rename(dbcOf(c), id, req.Name)
	if err != nil {
		response.RespondAPIError(c, h.log, err)
		return
	}
	response.RespondOK(c, gin.H{"workspace": ws})
}

// DELETE /api/workspaces/:id
func (h *WorkspaceHandler) Delete(c *gin.Context) {
	id, ok := uuidParam(c, "id", "invalid_workspace_id")
	if !ok {
		return
	}
	if err := h.workspaces.Delete(dbcOf(c), id); err != nil {
		response.RespondAPIError(c, h.log, err)
		return
	}
	response.RespondNoContent(c)
}

// GET /api/workspaces/:id/members
func (h *WorkspaceHandler) ListMembers(c *gin.Context) {
	id, ok := uuidParam(c, "id", "invalid_workspace_id")
	if !ok {
		return
	}
	members, err := h.workspaces.ListMembers(dbcOf(c), id)
	if err != nil {
		response.RespondAPIError(c, h.log, err)
		return
	}
	response.RespondOK(c, gin.H{"members": members})
}

type addMemberReq struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
	Role   string    `json:"role"`
}

// POST /api/workspaces/:id/members
func (h *WorkspaceHandler) AddMember(c *gin.Context) {
	id, ok := uuidParam(c, "id", "invalid_workspace_id")
	if !ok {
		return
	}
	var req addMemberReq
	if !bindJSON(c, &req) {
		return
	}
	m, err := h.workspaces.AddMember(dbcOf(c), id, req.UserID, req.Email, req.Role)
	if err != nil {
		response.RespondAPIError(c, h.log, err)
		return
	}
	response.RespondCreated(c, gin.H{"member": m})
}

// DELETE /api/workspaces/:id/members/:userId
func (h *WorkspaceHandler) RemoveMember(c *gin.Context) {
	id, ok := uuidParam(c, "id", "invalid_workspace_id")
	if !ok {
		return
	}
	userID, ok := uuidParam(c, "userId", "invalid_user_id")
	if !ok {
		return
	}
	if err := h.workspaces.RemoveMember(dbcOf(c), id, userID); err != nil {
		response.RespondAPIError(c, h.log, err)
		return
	}
	response.RespondNoContent(c)
}
