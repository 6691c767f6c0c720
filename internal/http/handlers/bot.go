package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	chatdomain "github.com/yungbote/sitechat-backend/internal/domain/chat"
	"github.com/yungbote/sitechat-backend/internal/domain/workspace"
	"github.com/yungbote/sitechat-backend/internal/http/response"
	"github.com/yungbote/sitechat-backend/internal/modules/chat"
	"github.com/yungbote/sitechat-backend/internal/platform/ctxutil"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
	"github.com/yungbote/sitechat-backend/internal/services"
)

const maxAvatarBytes = 2 << 20

type BotHandler struct {
	log        *logger.Logger
	bots       services.BotService
	workspaces services.WorkspaceService
	analytics  services.AnalyticsService
	chat       ChatStarter
}

func NewBotHandler(
	log *logger.Logger,
	bots services.BotService,
	workspaces services.WorkspaceService,
	analytics services.AnalyticsService,
	chat ChatStarter,
) *BotHandler {
	return &BotHandler{
		log:        log.With("handler", "BotHandler"),
		bots:       bots,
		workspaces: workspaces,
		analytics:  analytics,
		chat:       chat,
	}
}

// scope resolves the workspace owning the :id bot. Authorization happens in
// the service call that follows.
func (h *BotHandler) scope(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	botID, ok := uuidParam(c, "id", "invalid_bot_id")
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	wsID, err := h.bots.WorkspaceOf(dbcOf(c), botID)
	if err != nil {
		response.RespondAPIError(c, h.log, err)
		return uuid.Nil, uuid.Nil, false
	}
	return wsID, botID, true
}

// GET /api/workspaces/:id/bots
func (h *BotHandler) List(c *gin.Context) {
	wsID, ok := uuidParam(c, "id", "invalid_workspace_id")
	if !ok {
		return
	}
	bots, err := h.bots.List(dbcOf(c), wsID)
	if err != nil {
		response.RespondAPIError(c, h.log, err)
		return
	}
	response.RespondOK(c, gin.H{"bots": bots})
}

// POST /api/workspaces/:id/bots
func (h *BotHandler) Create(c *gin.Context) {
	wsID, ok := uuidParam(c, "id", "invalid_workspace_id")
	if !ok {
		return
	}
	var in services.BotInput
	if !bindJSON(c, &in) {
		return
	}
	b, err := h.bots.Create(dbcOf(c), wsID, in)
	if err != nil {
		response.RespondAPIError(c, h.log, err)
		return
	}
	response.RespondCreated(c, gin.H{"bot": b})
}

// GET /api/bots/:id
func (h *BotHandler) Get(c *gin.Context) {
	wsID, botID, ok := h.scope(c)
	if !ok {
		return
	}
	b, err := h.bots.Get(dbcOf(c), wsID, botID)
	if err != nil {
		response.RespondAPIError(c, h.log, err)
		return
	}
	response.RespondOK(c, gin.H{"bot": b})
}

// PATCH /api/bots/:id
func (h *BotHandler) Update(c *gin.Context) {
	wsID, botID, ok := h.scope(c)
	if !ok {
		return
	}
	var in services.BotInput
	if !bindJSON(c, &in) {
		return
	}
	b, err := h.bots.Update(dbcOf(c), wsID, botID, in)
	if err != nil {
		response.RespondAPIError(c, h.log, err)
		return
	}
	response.RespondOK(c, gin.H{"bot": b})
}

// DELETE /api/bots/:id
func (h *BotHandler) Delete(c *gin.Context) {
	wsID, botID, ok := h.scope(c)
	if !ok {
		return
	}
	if err := h.bots.Delete(dbcOf(c), wsID, botID); err != nil {
		response.RespondAPIError(c, h.log, err)
		return
	}
	response.RespondNoContent(c)
}

// POST /api/bots/:id/avatar (multipart, field "avatar")
func (h *BotHandler) UploadAvatar(c *gin.Context) {
	wsID, botID, ok := h.scope(c)
	if !ok {
		return
	}
	fh, err := c.FormFile("avatar")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if fh.Size > maxAvatarBytes {
		response.RespondError(c, http.StatusRequestEntityTooLarge, "invalid_request",
			fmt.Errorf("avatar must be at most %d bytes", maxAvatarBytes))
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	defer f.Close()
	raw, err := io.ReadAll(io.LimitReader(f, maxAvatarBytes))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	b, err := h.bots.SetAvatar(dbcOf(c), wsID, botID, raw)
	if err != nil {
		response.RespondAPIError(c, h.log, err)
		return
	}
	response.RespondOK(c, gin.H{"bot": b})
}

// POST /api/bots/:id/train
func (h *BotHandler) Train(c *gin.Context) {
	wsID, botID, ok := h.scope(c)
	if !ok {
		return
	}
	var in services.TrainInput
	if c.Request.ContentLength != 0 {
		if !bindJSON(c, &in) {
			return
		}
	}
	job, err := h.bots.Train(dbcOf(c), wsID, botID, in)
	if err != nil {
		response.RespondAPIError(c, h.log, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": job})
}

// GET /api/bots/:id/pages?limit=50&offset=0
func (h *BotHandler) ListPages(c *gin.Context) {
	wsID, botID, ok := h.scope(c)
	if !ok {
		return
	}
	page, err := h.bots.ListPages(dbcOf(c), wsID, botID, queryInt(c, "limit", 50, 1, 200), queryInt(c, "offset", 0, 0, 0))
	if err != nil {
		response.RespondAPIError(c, h.log, err)
		return
	}
	response.RespondOK(c, page)
}

// GET /api/bots/:id/conversations?limit=50&offset=0
func (h *BotHandler) ListConversations(c *gin.Context) {
	wsID, botID, ok := h.scope(c)
	if !ok {
		return
	}
	page, err := h.bots.ListConversations(dbcOf(c), wsID, botID, queryInt(c, "limit", 50, 1, 200), queryInt(c, "offset", 0, 0, 0))
	if err != nil {
		response.RespondAPIError(c, h.log, err)
		return
	}
	response.RespondOK(c, page)
}

// GET /api/bots/:id/conversations/:conversationId
func (h *BotHandler) GetTranscript(c *gin.Context) {
	wsID, botID, ok := h.scope(c)
	if !ok {
		return
	}
	convID, ok := uuidParam(c, "conversationId", "invalid_conversation_id")
	if !ok {
		return
	}
	tr, err := h.bots.GetTranscript(dbcOf(c), wsID, botID, convID)
	if err != nil {
		response.RespondAPIError(c, h.log, err)
		return
	}
	response.RespondOK(c, tr)
}

// GET /api/bots/:id/analytics?days=30
func (h *BotHandler) Analytics(c *gin.Context) {
	wsID, botID, ok := h.scope(c)
	if !ok {
		return
	}
	days := 30
	if v := strings.TrimSpace(c.Query("days")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", fmt.Errorf("days: %w", err))
			return
		}
		days = n
	}
	dbc := dbcOf(c)
	if _, _, err := h.workspaces.Authorize(dbc, wsID, workspace.RoleMember); err != nil {
		response.RespondAPIError(c, h.log, err)
		return
	}
	summary, err := h.analytics.Summary(dbc, botID, days)
	if err != nil {
		response.RespondAPIError(c, h.log, err)
		return
	}
	response.RespondOK(c, summary)
}

// POST /api/bots/:id/chat
//
// Dashboard preview. Always streams; the conversation is attributed to the
// signed-in user.
func (h *BotHandler) PreviewChat(c *gin.Context) {
	wsID, botID, ok := h.scope(c)
	if !ok {
		return
	}
	var req chatReq
	if !bindJSON(c, &req) {
		return
	}
	if _, _, err := h.workspaces.Authorize(dbcOf(c), wsID, workspace.RoleMember); err != nil {
		response.RespondAPIError(c, h.log, err)
		return
	}
	turn, err := h.chat.Start(c.Request.Context(), chat.ReplyInput{
		BotID:          botID,
		WorkspaceID:    &wsID,
		ConversationID: req.ConversationID,
		VisitorID:      "user:" + ctxutil.UserID(c.Request.Context()).String(),
		Source:         chatdomain.SourceDashboard,
		Message:        req.Message,
	})
	if err != nil {
		response.RespondAPIError(c, h.log, err)
		return
	}
	streamTurn(c, h.log, turn)
}
