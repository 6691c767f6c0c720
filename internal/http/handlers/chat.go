package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/yungbote/sitechat-backend/internal/domain"
	"github.com/yungbote/sitechat-backend/internal/http/response"
	"github.com/yungbote/sitechat-backend/internal/modules/chat"
	"github.com/yungbote/sitechat-backend/internal/platform/apierr"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
)

// ChatTurn is one prepared visitor exchange awaiting its answer.
type ChatTurn interface {
	ConversationID() uuid.UUID
	MessageID() uuid.UUID
	Citations() []types.MessageSource
	Stream(ctx context.Context, onDelta func(delta string) error) (*chat.ReplyOutput, error)
	Complete(ctx context.Context) (*chat.ReplyOutput, error)
}

type ChatStarter interface {
	Start(ctx context.Context, in chat.ReplyInput) (ChatTurn, error)
}

type chatUsecases struct {
	uc chat.Usecases
}

func NewChatStarter(uc chat.Usecases) ChatStarter {
	return chatUsecases{uc: uc}
}

func (a chatUsecases) Start(ctx context.Context, in chat.ReplyInput) (ChatTurn, error) {
	t, err := a.uc.Prepare(ctx, in)
	if err != nil {
		return nil, err
	}
	return t, nil
}

type chatReq struct {
	Message        string     `json:"message"`
	ConversationID *uuid.UUID `json:"conversation_id"`
	VisitorID      string     `json:"visitor_id"`
	Stream         *bool      `json:"stream"`
}

// streamTurn answers over SSE: conversation, delta..., sources, [DONE].
// Failures after the stream has started are reported as an error event.
func streamTurn(c *gin.Context, log *logger.Logger, turn ChatTurn) {
	sse := response.NewSSE(c)
	if err := sse.Event("conversation", gin.H{
		"conversation_id": turn.ConversationID(),
		"message_id":      turn.MessageID(),
	}); err != nil {
		return
	}

	out, err := turn.Stream(c.Request.Context(), func(delta string) error {
		return sse.Event("delta", gin.H{"delta": delta})
	})
	if err != nil {
		if c.Request.Context().Err() != nil {
			return
		}
		code, msg := "upstream_error", "the assistant is unavailable, please try again"
		if ae, ok := apierr.As(err); ok {
			code, msg = ae.Code, ae.Error()
		} else {
			log.Warn("chat stream failed", "conversation_id", turn.ConversationID(), "error", err)
		}
		_ = sse.Event("error", gin.H{"code": code, "message": msg})
		sse.Done()
		return
	}

	_ = sse.Event("sources", gin.H{
		"message_id": out.AssistantMessage.ID,
		"sources":    nonNilSources(out.Sources),
	})
	sse.Done()
}

// completeTurn is the non-streaming JSON variant.
func completeTurn(c *gin.Context, log *logger.Logger, turn ChatTurn) {
	out, err := turn.Complete(c.Request.Context())
	if err != nil {
		if _, ok := apierr.As(err); !ok {
			log.Warn("chat completion failed", "conversation_id", turn.ConversationID(), "error", err)
			err = apierr.New(http.StatusBadGateway, "upstream_error", errors.New("the assistant is unavailable, please try again"))
		}
		response.RespondAPIError(c, log, err)
		return
	}
	out.Sources = nonNilSources(out.Sources)
	response.RespondOK(c, out)
}

func nonNilSources(s []types.MessageSource) []types.MessageSource {
	if s == nil {
		return []types.MessageSource{}
	}
	return s
}
