package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	chatdomain "github.com/yungbote/sitechat-backend/internal/domain/chat"
	"github.com/yungbote/sitechat-backend/internal/http/response"
	"github.com/yungbote/sitechat-backend/internal/modules/chat"
	"github.com/yungbote/sitechat-backend/internal/platform/ctxutil"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
)

type PublicAPIHandler struct {
	log  *logger.Logger
	chat ChatStarter
}

func NewPublicAPIHandler(log *logger.Logger, chat ChatStarter) *PublicAPIHandler {
	return &PublicAPIHandler{log: log.With("handler", "PublicAPIHandler"), chat: chat}
}

// POST /v1/bots/:id/chat
//
// Streams by default; {"stream": false} or ?stream=false returns one JSON
// document instead.
func (h *PublicAPIHandler) Chat(c *gin.Context) {
	botID, ok := uuidParam(c, "id", "invalid_bot_id")
	if !ok {
		return
	}
	var req chatReq
	if !bindJSON(c, &req) {
		return
	}
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.WorkspaceID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("api key required"))
		return
	}
	wsID := rd.WorkspaceID
	visitor := strings.TrimSpace(req.VisitorID)
	if visitor == "" {
		visitor = "api:" + rd.APIKeyID.String()
	}

	turn, err := h.chat.Start(c.Request.Context(), chat.ReplyInput{
		BotID:          botID,
		WorkspaceID:    &wsID,
		ConversationID: req.ConversationID,
		VisitorID:      visitor,
		Source:         chatdomain.SourceAPI,
		Message:        req.Message,
	})
	if err != nil {
		response.RespondAPIError(c, h.log, err)
		return
	}
	stream := req.Stream == nil || *req.Stream
	if strings.EqualFold(c.Query("stream"), "false") {
		stream = false
	}
	if stream {
		streamTurn(c, h.log, turn)
		return
	}
	completeTurn(c, h.log, turn)
}
