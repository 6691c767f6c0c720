package chat

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	types "github.com/yungbote/sitechat-backend/internal/domain"
	"github.com/yungbote/sitechat-backend/internal/domain/analytics"
	"github.com/yungbote/sitechat-backend/internal/domain/bot"
	"github.com/yungbote/sitechat-backend/internal/domain/chat"
	"github.com/yungbote/sitechat-backend/internal/platform/apierr"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
	"github.com/yungbote/sitechat-backend/internal/platform/pinecone"
)

type chatFixture struct {
	bot       *types.Bot
	ai        *fakeAI
	vec       *fakeVec
	convs     *fakeConversations
	msgs      *fakeMessages
	billing   *fakeBilling
	analytics *fakeAnalytics
	uc        Usecases
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	ws := &types.Workspace{ID: uuid.New(), Name: "Acme", Plan: "free"}
	b := &types.Bot{
		ID:          uuid.New(),
		WorkspaceID: ws.ID,
		Name:        "Acme Help",
		Status:      bot.StatusReady,
		PageCount:   3,
		Temperature: 0.2,
	}
	f := &chatFixture{
		bot:       b,
		ai:        &fakeAI{answer: []string{"Refunds take ", "five days [1]."}},
		vec:       &fakeVec{},
		convs:     &fakeConversations{},
		msgs:      &fakeMessages{},
		billing:   &fakeBilling{},
		analytics: &fakeAnalytics{},
	}
	f.uc = New(UsecasesDeps{
		Log:           logger.Nop(),
		AI:            f.ai,
		Vec:           f.vec,
		Bots:          &fakeBots{bots: map[uuid.UUID]*types.Bot{b.ID: b}},
		Workspaces:    &fakeWorkspaces{ws: ws},
		Conversations: f.convs,
		Messages:      f.msgs,
		Billing:       f.billing,
		Analytics:     f.analytics,
		Options:       Options{TopK: 5, MinScore: 0.25, ContextChars: 6000, HistoryTurns: 10, DefaultModel: "gpt-test"},
	})
	return f
}

func match(id, url, title, text string, score float64) pinecone.VectorMatch {
	return pinecone.VectorMatch{
		ID:    id,
		Score: score,
		Metadata: map[string]any{
			"url":   url,
			"title": title,
			"text":  text,
		},
	}
}

func TestReplyStreamsAndPersists(t *testing.T) {
	f := newChatFixture(t)
	f.vec.matches = []pinecone.VectorMatch{
		match("p1:0", "https://acme.test/refunds", "Refunds", "Refunds are processed within five business days.", 0.82),
		match("p1:1", "https://acme.test/refunds", "Refunds", "Contact support for faster refunds.", 0.61),
		match("p2:0", "https://acme.test/blog", "Blog", "Unrelated post.", 0.1),
	}

	var deltas []string
	out, err := f.uc.Reply(context.Background(), ReplyInput{
		BotID:     f.bot.ID,
		VisitorID: "v-1",
		Message:   "  How long do refunds take? ",
	}, func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Refunds take ", "five days [1]."}, deltas)
	assert.Equal(t, "Refunds take five days [1].", out.AssistantMessage.Content)
	assert.Equal(t, "How long do refunds take?", out.UserMessage.Content)
	require.Len(t, out.Sources, 1)
	assert.Equal(t, "https://acme.test/refunds", out.Sources[0].URL)

	assert.Equal(t, f.bot.Namespace(), f.vec.gotNS)
	assert.Equal(t, 5, f.vec.gotTopK)

	req := f.ai.lastReq
	assert.Equal(t, "gpt-test", req.Model)
	require.NotNil(t, req.Temperature)
	assert.InDelta(t, 0.2, *req.Temperature, 1e-9)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, chat.RoleSystem, req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Content, "[1] Refunds (https://acme.test/refunds)")
	assert.NotContains(t, req.Messages[0].Content, "Unrelated post")
	assert.Equal(t, chat.RoleUser, req.Messages[1].Role)

	require.Len(t, f.msgs.rows, 2)
	assert.Equal(t, chat.RoleAssistant, f.msgs.rows[1].Role)
	assert.Len(t, f.msgs.rows[1].Sources, 1)
	assert.Equal(t, 2, f.convs.touched)
	assert.Equal(t, "v-1", out.Conversation.VisitorID)
	assert.Equal(t, chat.SourceWidget, out.Conversation.Source)
	assert.Equal(t, []string{analytics.EventConversationStarted, analytics.EventMessageSent}, f.analytics.events)
}

func TestReplyContinuesConversationWithHistory(t *testing.T) {
	f := newChatFixture(t)
	first, err := f.uc.Reply(context.Background(), ReplyInput{BotID: f.bot.ID, VisitorID: "v-1", Message: "hi"}, nil)
	require.NoError(t, err)

	convID := first.Conversation.ID
	_, err = f.uc.Reply(context.Background(), ReplyInput{
		BotID:          f.bot.ID,
		ConversationID: &convID,
		VisitorID:      "v-1",
		Message:        "and shipping?",
	}, nil)
	require.NoError(t, err)

	msgs := f.ai.lastReq.Messages
	require.Len(t, msgs, 4)
	assert.Equal(t, "hi", msgs[1].Content)
	assert.Equal(t, chat.RoleAssistant, msgs[2].Role)
	assert.Equal(t, "and shipping?", msgs[3].Content)
	assert.Equal(t, []string{
		analytics.EventConversationStarted, analytics.EventMessageSent, analytics.EventMessageSent,
	}, f.analytics.events)
}

func TestReplyRejectsForeignConversation(t *testing.T) {
	f := newChatFixture(t)
	first, err := f.uc.Reply(context.Background(), ReplyInput{BotID: f.bot.ID, VisitorID: "v-1", Message: "hi"}, nil)
	require.NoError(t, err)

	convID := first.Conversation.ID
	_, err = f.uc.Reply(context.Background(), ReplyInput{
		BotID:          f.bot.ID,
		ConversationID: &convID,
		VisitorID:      "someone-else",
		Message:        "let me in",
	}, nil)
	ae, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, ae.Status)
}

func TestReplyValidation(t *testing.T) {
	f := newChatFixture(t)
	other := uuid.New()

	cases := []struct {
		name   string
		in     ReplyInput
		status int
	}{
		{"empty message", ReplyInput{BotID: f.bot.ID, Message: "   "}, http.StatusBadRequest},
		{"too long", ReplyInput{BotID: f.bot.ID, Message: strings.Repeat("x", MaxMessageChars+1)}, http.StatusBadRequest},
		{"unknown bot", ReplyInput{BotID: uuid.New(), Message: "hi"}, http.StatusNotFound},
		{"wrong workspace", ReplyInput{BotID: f.bot.ID, WorkspaceID: &other, Message: "hi"}, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.uc.Reply(context.Background(), tc.in, nil)
			ae, ok := apierr.As(err)
			require.True(t, ok, "got %v", err)
			assert.Equal(t, tc.status, ae.Status)
		})
	}
	assert.Empty(t, f.msgs.rows)
}

func TestReplyBotNotReady(t *testing.T) {
	f := newChatFixture(t)
	f.bot.Status = bot.StatusTraining
	_, err := f.uc.Reply(context.Background(), ReplyInput{BotID: f.bot.ID, Message: "hi"}, nil)
	ae, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusConflict, ae.Status)
	assert.Equal(t, "bot_not_ready", ae.Code)
}

func TestReplyServesPreviousIndexDuringRetrain(t *testing.T) {
	for _, status := range []string{bot.StatusTraining, bot.StatusFailed} {
		f := newChatFixture(t)
		trained := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
		f.bot.Status = status
		f.bot.LastTrainedAt = &trained
		f.vec.matches = []pinecone.VectorMatch{
			match("p1:0", "https://acme.test/refunds", "Refunds", "Refunds are processed within five business days.", 0.82),
		}

		out, err := f.uc.Reply(context.Background(), ReplyInput{BotID: f.bot.ID, Message: "refunds?"}, nil)
		require.NoError(t, err, status)
		assert.Equal(t, f.bot.Namespace(), f.vec.gotNS, status)
		require.Len(t, out.Sources, 1, status)
	}
}

func TestReplyWithoutPagesSkipsRetrieval(t *testing.T) {
	f := newChatFixture(t)
	f.bot.Status = bot.StatusDraft
	f.bot.PageCount = 0

	out, err := f.uc.Reply(context.Background(), ReplyInput{BotID: f.bot.ID, Message: "hello?"}, nil)
	require.NoError(t, err)
	assert.Empty(t, f.ai.embedded)
	assert.Empty(t, out.Sources)
	assert.Contains(t, f.ai.lastReq.Messages[0].Content, "not been trained")
}

func TestReplyQuotaExceeded(t *testing.T) {
	f := newChatFixture(t)
	f.billing.quotaErr = apierr.Newf(http.StatusPaymentRequired, "plan_limit_reached", "monthly message limit reached")
	_, err := f.uc.Reply(context.Background(), ReplyInput{BotID: f.bot.ID, Message: "hi"}, nil)
	ae, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusPaymentRequired, ae.Status)
	assert.Empty(t, f.msgs.rows)
}

func TestReplyRetrievalFailureAnswersAnyway(t *testing.T) {
	f := newChatFixture(t)
	f.ai.embedErr = errors.New("openai down")
	out, err := f.uc.Reply(context.Background(), ReplyInput{BotID: f.bot.ID, Message: "hi"}, nil)
	require.NoError(t, err)
	assert.Empty(t, out.Sources)
	assert.Contains(t, f.ai.lastReq.Messages[0].Content, "(no relevant passages found)")
}

func TestCompleteNonStreaming(t *testing.T) {
	f := newChatFixture(t)
	turn, err := f.uc.Prepare(context.Background(), ReplyInput{BotID: f.bot.ID, Source: chat.SourceAPI, Message: "hi"})
	require.NoError(t, err)
	out, err := turn.Complete(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Refunds take five days [1].", out.AssistantMessage.Content)
	assert.Equal(t, 7, out.AssistantMessage.Tokens)
	assert.Equal(t, chat.SourceAPI, out.Conversation.Source)
}

func TestStreamAbortsWhenSinkFails(t *testing.T) {
	f := newChatFixture(t)
	_, err := f.uc.Reply(context.Background(), ReplyInput{BotID: f.bot.ID, Message: "hi"}, func(string) error {
		return errors.New("client gone")
	})
	require.Error(t, err)
	require.Len(t, f.msgs.rows, 1, "only the user message is stored")
	assert.Equal(t, 1, f.convs.touched, "stored user message is counted")
}
