package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/sitechat-backend/internal/http/response"
	"github.com/yungbote/sitechat-backend/internal/platform/ctxutil"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
	"github.com/yungbote/sitechat-backend/internal/services"
)

type MeHandler struct {
	log        *logger.Logger
	workspaces services.WorkspaceService
}

func NewMeHandler(log *logger.Logger, workspaces services.WorkspaceService) *MeHandler {
	return &MeHandler{log: log.With("handler", "MeHandler"), workspaces: workspaces}
}

// GET /api/me
func (h *MeHandler) GetMe(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	wss, err := h.workspaces.ListMine(dbcOf(c))
	if err != nil {
		response.RespondAPIError(c, h.log, err)
		return
	}
	response.RespondOK(c, gin.H{
		"user": gin.H{
			"id":    rd.UserID,
			"email": rd.Email,
		},
		"workspaces": wss,
	})
}
