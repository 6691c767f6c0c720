package handlers

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/sitechat-backend/internal/domain/analytics"
	chatdomain "github.com/yungbote/sitechat-backend/internal/domain/chat"
	"github.com/yungbote/sitechat-backend/internal/http/middleware"
	"github.com/yungbote/sitechat-backend/internal/http/response"
	"github.com/yungbote/sitechat-backend/internal/http/widget"
	"github.com/yungbote/sitechat-backend/internal/modules/chat"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
	"github.com/yungbote/sitechat-backend/internal/platform/ratelimit"
	"github.com/yungbote/sitechat-backend/internal/services"
)

type WidgetHandler struct {
	log       *logger.Logger
	bots      services.BotService
	analytics services.AnalyticsService
	chat      ChatStarter
	limiter   *middleware.RateLimiter
	rules     ratelimit.Rules
}

func NewWidgetHandler(
	log *logger.Logger,
	bots services.BotService,
	analytics services.AnalyticsService,
	chat ChatStarter,
	limiter *middleware.RateLimiter,
	rules ratelimit.Rules,
) *WidgetHandler {
	return &WidgetHandler{
		log:       log.With("handler", "WidgetHandler"),
		bots:      bots,
		analytics: analytics,
		chat:      chat,
		limiter:   limiter,
		rules:     rules,
	}
}

// GET /widget.js
func (h *WidgetHandler) Script(c *gin.Context) {
	c.Header("Cache-Control", "public, max-age=3600")
	c.Data(http.StatusOK, "application/javascript; charset=utf-8", widget.Script)
}

// GET /api/widget/bots/:id/config
func (h *WidgetHandler) Config(c *gin.Context) {
	botID, ok := uuidParam(c, "id", "invalid_bot_id")
	if !ok {
		return
	}
	// Checked before the lookup so floods never reach the bot cache or analytics.
	if !h.limiter.Check(c, h.rules.WidgetConfig, botID.String()+":"+c.ClientIP()) {
		return
	}
	cfg, err := h.bots.WidgetConfig(c.Request.Context(), botID)
	if err != nil {
		response.RespondAPIError(c, h.log, err)
		return
	}
	bid := cfg.ID
	h.analytics.Track(c.Request.Context(), services.TrackInput{
		WorkspaceID: cfg.WorkspaceID,
		BotID:       &bid,
		EventType:   analytics.EventWidgetLoaded,
		Properties:  map[string]any{"origin": originHost(c)},
	})
	response.RespondOK(c, gin.H{"bot": cfg})
}

// POST /api/widget/bots/:id/chat
func (h *WidgetHandler) Chat(c *gin.Context) {
	botID, ok := uuidParam(c, "id", "invalid_bot_id")
	if !ok {
		return
	}
	var req chatReq
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	b, err := h.bots.PublicBot(ctx, botID)
	if err != nil {
		response.RespondAPIError(c, h.log, err)
		return
	}
	host := originHost(c)
	if !b.AllowsOrigin(host) {
		h.log.Info("widget origin rejected", "bot_id", b.ID, "origin", host)
		response.RespondError(c, http.StatusForbidden, "origin_not_allowed", fmt.Errorf("origin %q may not embed this bot", host))
		return
	}
	if !h.limiter.Check(c, h.rules.WidgetChat, b.ID.String()+":"+c.ClientIP()) {
		bid := b.ID
		h.analytics.Track(ctx, services.TrackInput{
			WorkspaceID: b.WorkspaceID,
			BotID:       &bid,
			EventType:   analytics.EventRateLimited,
			Properties:  map[string]any{"scope": h.rules.WidgetChat.Scope},
		})
		return
	}

	turn, err := h.chat.Start(ctx, chat.ReplyInput{
		BotID:          b.ID,
		ConversationID: req.ConversationID,
		VisitorID:      req.VisitorID,
		Source:         chatdomain.SourceWidget,
		Message:        req.Message,
	})
	if err != nil {
		response.RespondAPIError(c, h.log, err)
		return
	}
	streamTurn(c, h.log, turn)
}

// originHost is the embedding page's host from Origin, falling back to
// Referer. Empty when neither is usable.
func originHost(c *gin.Context) string {
	for _, raw := range []string{c.GetHeader("Origin"), c.GetHeader("Referer")} {
		raw = strings.TrimSpace(raw)
		if raw == "" || raw == "null" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Hostname() == "" {
			continue
		}
		return strings.ToLower(u.Hostname())
	}
	return ""
}
