package chat

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	types "github.com/yungbote/sitechat-backend/internal/domain"
	"github.com/yungbote/sitechat-backend/internal/domain/analytics"
	"github.com/yungbote/sitechat-backend/internal/domain/chat"
	"github.com/yungbote/sitechat-backend/internal/observability"
	"github.com/yungbote/sitechat-backend/internal/platform/apierr"
	"github.com/yungbote/sitechat-backend/internal/platform/chunker"
	"github.com/yungbote/sitechat-backend/internal/platform/dbctx"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
	"github.com/yungbote/sitechat-backend/internal/platform/openai"
	"github.com/yungbote/sitechat-backend/internal/services"
)

const (
	MaxMessageChars = 4000
	maxVisitorID    = 128
	titleChars      = 80
)

type ReplyInput struct {
	BotID uuid.UUID
	// WorkspaceID, when set, must own the bot (API key and dashboard callers).
	WorkspaceID    *uuid.UUID
	ConversationID *uuid.UUID
	VisitorID      string
	Source         string
	Message        string
}

type ReplyOutput struct {
	Conversation     *types.Conversation   `json:"conversation"`
	UserMessage      *types.Message        `json:"user_message"`
	AssistantMessage *types.Message        `json:"message"`
	Sources          []types.MessageSource `json:"sources"`
	Model            string                `json:"model"`
}

// Turn is a prepared exchange: the visitor message is stored and context has
// been retrieved.
type Turn struct {
	deps UsecasesDeps
	log  *logger.Logger

	Bot             *types.Bot
	Conversation    *types.Conversation
	NewConversation bool
	UserMessage     *types.Message
	Sources         []types.MessageSource
	source          string
	request         openai.ChatRequest
}

func Prepare(ctx context.Context, deps UsecasesDeps, in ReplyInput) (*Turn, error) {
	if deps.Log == nil || deps.AI == nil || deps.Bots == nil || deps.Workspaces == nil ||
		deps.Conversations == nil || deps.Messages == nil {
		return nil, errors.New("chat: missing deps")
	}
	opts := deps.Options.normalized()
	dbc := dbctx.Context{Ctx: ctx, Tx: deps.DB}

	text := strings.TrimSpace(in.Message)
	if text == "" {
		return nil, apierr.Newf(http.StatusBadRequest, "invalid_request", "message is required")
	}
	if len([]rune(text)) > MaxMessageChars {
		return nil, apierr.Newf(http.StatusBadRequest, "invalid_request", "message exceeds %d characters", MaxMessageChars)
	}
	visitor := strings.TrimSpace(in.VisitorID)
	if len(visitor) > maxVisitorID {
		return nil, apierr.Newf(http.StatusBadRequest, "invalid_request", "visitor_id too long")
	}
	source := in.Source
	if source == "" {
		source = chat.SourceWidget
	}

	b, err := deps.Bots.GetByID(dbc, in.BotID)
	if err != nil {
		return nil, err
	}
	if b == nil || (in.WorkspaceID != nil && b.WorkspaceID != *in.WorkspaceID) {
		return nil, apierr.NotFound("bot")
	}
	hasPages := b.PageCount > 0
	if hasPages && !b.Serving() {
		return nil, apierr.Conflict("bot_not_ready", "bot is "+b.Status+"; try again once training finishes")
	}

	ws, err := deps.Workspaces.GetByID(dbc, b.WorkspaceID)
	if err != nil {
		return nil, err
	}
	if ws == nil {
		return nil, apierr.NotFound("bot")
	}
	if deps.Billing != nil {
		if err := deps.Billing.CheckMessageQuota(dbc, ws); err != nil {
			return nil, err
		}
	}

	log := deps.Log.With("bot_id", b.ID, "source", source)
	conv, created, err := resolveConversation(dbc, deps, b, in.ConversationID, visitor, source, text)
	if err != nil {
		return nil, err
	}

	var history []*types.Message
	if !created && opts.HistoryTurns > 0 {
		history, err = deps.Messages.ListRecent(dbc, conv.ID, opts.HistoryTurns)
		if err != nil {
			return nil, err
		}
	}

	stored, err := deps.Messages.Create(dbc, []*types.Message{{
		ConversationID: conv.ID,
		BotID:          b.ID,
		Role:           chat.RoleUser,
		Content:        text,
		Tokens:         chunker.EstimateTokens(text),
	}})
	if err != nil {
		return nil, err
	}
	userMsg := stored[0]

	var (
		contextText string
		sources     []types.MessageSource
	)
	if hasPages {
		passages, rerr := retrieve(ctx, deps, opts, b, text)
		if rerr != nil {
			// Answer without context rather than failing the visitor.
			log.Warn("retrieval failed; answering without context", "error", rerr)
		}
		contextText, sources = buildContext(passages, opts.ContextChars)
	}

	model := strings.TrimSpace(b.Model)
	if model == "" {
		model = opts.DefaultModel
	}
	temp := b.Temperature
	req := openai.ChatRequest{
		Model:       model,
		Messages:    buildMessages(systemPrompt(b, contextText, hasPages), history, text),
		Temperature: &temp,
		MaxTokens:   opts.MaxTokens,
	}

	return &Turn{
		deps:            deps,
		log:             log,
		Bot:             b,
		Conversation:    conv,
		NewConversation: created,
		UserMessage:     userMsg,
		Sources:         sources,
		source:          source,
		request:         req,
	}, nil
}

func resolveConversation(dbc dbctx.Context, deps UsecasesDeps, b *types.Bot, id *uuid.UUID, visitor, source, firstMessage string) (*types.Conversation, bool, error) {
	if id != nil && *id != uuid.Nil {
		conv, err := deps.Conversations.GetForBot(dbc, b.ID, *id)
		if err != nil {
			return nil, false, err
		}
		// A visitor can only continue their own conversation.
		if conv == nil || (conv.VisitorID != "" && conv.VisitorID != visitor) {
			return nil, false, apierr.NotFound("conversation")
		}
		return conv, false, nil
	}
	conv := &types.Conversation{
		ID:            uuid.New(),
		BotID:         b.ID,
		WorkspaceID:   b.WorkspaceID,
		VisitorID:     visitor,
		Source:        source,
		Title:         truncateRunes(firstMessage, titleChars),
		LastMessageAt: time.Now().UTC(),
	}
	if err := deps.Conversations.Create(dbc, conv); err != nil {
		return nil, false, err
	}
	return conv, true, nil
}

func retrieve(ctx context.Context, deps UsecasesDeps, opts Options, b *types.Bot, query string) ([]Passage, error) {
	if deps.Vec == nil {
		return nil, errors.New("vector store not configured")
	}
	vecs, err := deps.AI.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return nil, errors.New("empty query embedding")
	}
	matches, err := deps.Vec.QueryMatches(ctx, b.Namespace(), vecs[0], opts.TopK, nil)
	if err != nil {
		return nil, err
	}
	return passagesFromMatches(matches, opts.MinScore), nil
}

func (t *Turn) ConversationID() uuid.UUID { return t.Conversation.ID }

func (t *Turn) MessageID() uuid.UUID { return t.UserMessage.ID }

// Citations are the pages retrieved for this turn, in rank order.
func (t *Turn) Citations() []types.MessageSource { return t.Sources }

// Stream runs the completion, forwarding deltas, then stores the answer.
func (t *Turn) Stream(ctx context.Context, onDelta func(delta string) error) (*ReplyOutput, error) {
	if onDelta == nil {
		onDelta = func(string) error { return nil }
	}
	res, err := t.deps.AI.StreamChat(ctx, t.request, onDelta)
	if err != nil {
		observability.Current().IncChatReply(t.source, "error")
		t.log.Warn("chat completion failed", "conversation_id", t.Conversation.ID, "error", err)
		t.touch(ctx, 1)
		return nil, err
	}
	return t.finish(ctx, res)
}

// Complete is the non-streaming variant.
func (t *Turn) Complete(ctx context.Context) (*ReplyOutput, error) {
	res, err := t.deps.AI.Complete(ctx, t.request)
	if err != nil {
		observability.Current().IncChatReply(t.source, "error")
		t.touch(ctx, 1)
		return nil, err
	}
	return t.finish(ctx, res)
}

func (t *Turn) finish(ctx context.Context, res openai.ChatResult) (*ReplyOutput, error) {
	// The answer was already delivered; store it even if the client left.
	ctx = context.WithoutCancel(ctx)
	dbc := dbctx.Context{Ctx: ctx, Tx: t.deps.DB}

	answer := strings.TrimSpace(res.Text)
	tokens := res.OutputTokens
	if tokens <= 0 {
		tokens = chunker.EstimateTokens(answer)
	}
	stored, err := t.deps.Messages.Create(dbc, []*types.Message{{
		ConversationID: t.Conversation.ID,
		BotID:          t.Bot.ID,
		Role:           chat.RoleAssistant,
		Content:        answer,
		Tokens:         tokens,
		Sources:        datatypes.JSONSlice[types.MessageSource](t.Sources),
	}})
	if err != nil {
		t.touch(ctx, 1)
		return nil, err
	}
	t.touch(ctx, 2)

	if t.deps.Analytics != nil {
		convID := t.Conversation.ID
		botID := t.Bot.ID
		if t.NewConversation {
			t.deps.Analytics.Track(ctx, services.TrackInput{
				WorkspaceID:    t.Bot.WorkspaceID,
				BotID:          &botID,
				ConversationID: &convID,
				EventType:      analytics.EventConversationStarted,
				Properties:     map[string]any{"source": t.source},
			})
		}
		t.deps.Analytics.Track(ctx, services.TrackInput{
			WorkspaceID:    t.Bot.WorkspaceID,
			BotID:          &botID,
			ConversationID: &convID,
			EventType:      analytics.EventMessageSent,
			Properties: map[string]any{
				"source":        t.source,
				"sources":       len(t.Sources),
				"output_tokens": tokens,
			},
		})
	}
	observability.Current().IncChatReply(t.source, "ok")

	sources := t.Sources
	if sources == nil {
		sources = []types.MessageSource{}
	}
	return &ReplyOutput{
		Conversation:     t.Conversation,
		UserMessage:      t.UserMessage,
		AssistantMessage: stored[0],
		Sources:          sources,
		Model:            res.Model,
	}, nil
}

// touch counts the messages stored for this turn. The user message is
// already persisted when the completion starts, so failures still count it.
func (t *Turn) touch(ctx context.Context, added int) {
	dbc := dbctx.Context{Ctx: context.WithoutCancel(ctx), Tx: t.deps.DB}
	now := time.Now().UTC()
	if err := t.deps.Conversations.Touch(dbc, t.Conversation.ID, added, now); err != nil {
		t.log.Warn("conversation touch failed", "conversation_id", t.Conversation.ID, "error", err)
		return
	}
	t.Conversation.MessageCount += added
	t.Conversation.LastMessageAt = now
}

func truncateRunes(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "…"
}
