package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/sitechat-backend/internal/domain"
	"github.com/yungbote/sitechat-backend/internal/platform/dbctx"
	"github.com/yungbote/sitechat-backend/internal/platform/openai"
	"github.com/yungbote/sitechat-backend/internal/platform/pinecone"
	"github.com/yungbote/sitechat-backend/internal/platform/plans"
	"github.com/yungbote/sitechat-backend/internal/services"
)

type fakeAI struct {
	answer   []string
	embedErr error
	lastReq  openai.ChatRequest
	embedded []string
}

func (f *fakeAI) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	f.embedded = append(f.embedded, inputs...)
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

func (f *fakeAI) EmbedModel() string { return "test-embed" }

func (f *fakeAI) Complete(ctx context.Context, req openai.ChatRequest) (openai.ChatResult, error) {
	f.lastReq = req
	text := ""
	for _, a := range f.answer {
		text += a
	}
	return openai.ChatResult{Text: text, Model: "test-chat", OutputTokens: 7}, nil
}

func (f *fakeAI) StreamChat(ctx context.Context, req openai.ChatRequest, onDelta func(string) error) (openai.ChatResult, error) {
	f.lastReq = req
	text := ""
	for _, a := range f.answer {
		if err := onDelta(a); err != nil {
			return openai.ChatResult{}, err
		}
		text += a
	}
	return openai.ChatResult{Text: text, Model: "test-chat"}, nil
}

type fakeVec struct {
	matches []pinecone.VectorMatch
	gotNS   string
	gotTopK int
}

func (f *fakeVec) Upsert(ctx context.Context, ns string, vs []pinecone.Vector) error { return nil }

func (f *fakeVec) QueryMatches(ctx context.Context, ns string, q []float32, topK int, filter map[string]any) ([]pinecone.VectorMatch, error) {
	f.gotNS = ns
	f.gotTopK = topK
	return f.matches, nil
}

func (f *fakeVec) DeleteIDs(ctx context.Context, ns string, ids []string) error { return nil }

func (f *fakeVec) DeleteNamespace(ctx context.Context, ns string) error { return nil }

type fakeBots struct {
	bots map[uuid.UUID]*types.Bot
}

func (f *fakeBots) Create(dbc dbctx.Context, b *types.Bot) error { return nil }

func (f *fakeBots) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Bot, error) {
	return f.bots[id], nil
}

func (f *fakeBots) GetInWorkspace(dbc dbctx.Context, workspaceID, id uuid.UUID) (*types.Bot, error) {
	return f.bots[id], nil
}

func (f *fakeBots) ListByWorkspace(dbc dbctx.Context, workspaceID uuid.UUID) ([]*types.Bot, error) {
	return nil, nil
}

func (f *fakeBots) CountByWorkspace(dbc dbctx.Context, workspaceID uuid.UUID) (int64, error) {
	return 0, nil
}

func (f *fakeBots) ListScheduled(dbc dbctx.Context) ([]*types.Bot, error) { return nil, nil }

func (f *fakeBots) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	return nil
}

func (f *fakeBots) SoftDelete(dbc dbctx.Context, id uuid.UUID) error { return nil }

type fakeWorkspaces struct {
	ws *types.Workspace
}

func (f *fakeWorkspaces) Create(dbc dbctx.Context, ws *types.Workspace) error { return nil }

func (f *fakeWorkspaces) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Workspace, error) {
	if f.ws != nil && f.ws.ID == id {
		return f.ws, nil
	}
	return nil, nil
}

func (f *fakeWorkspaces) SlugExists(dbc dbctx.Context, slug string) (bool, error) { return false, nil }

func (f *fakeWorkspaces) ListForUser(dbc dbctx.Context, userID uuid.UUID) ([]*types.Workspace, error) {
	return nil, nil
}

func (f *fakeWorkspaces) GetByStripeCustomer(dbc dbctx.Context, customerID string) (*types.Workspace, error) {
	return nil, nil
}

func (f *fakeWorkspaces) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	return nil
}

func (f *fakeWorkspaces) Delete(dbc dbctx.Context, id uuid.UUID) error { return nil }

type fakeConversations struct {
	convs   map[uuid.UUID]*types.Conversation
	touched int
}

func (f *fakeConversations) Create(dbc dbctx.Context, c *types.Conversation) error {
	if f.convs == nil {
		f.convs = map[uuid.UUID]*types.Conversation{}
	}
	f.convs[c.ID] = c
	return nil
}

func (f *fakeConversations) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Conversation, error) {
	return f.convs[id], nil
}

func (f *fakeConversations) GetForBot(dbc dbctx.Context, botID, id uuid.UUID) (*types.Conversation, error) {
	c := f.convs[id]
	if c == nil || c.BotID != botID {
		return nil, nil
	}
	return c, nil
}

func (f *fakeConversations) ListByBot(dbc dbctx.Context, botID uuid.UUID, limit, offset int) ([]*types.Conversation, int64, error) {
	return nil, 0, nil
}

func (f *fakeConversations) Touch(dbc dbctx.Context, id uuid.UUID, added int, at time.Time) error {
	f.touched += added
	return nil
}

func (f *fakeConversations) SetTitle(dbc dbctx.Context, id uuid.UUID, title string) error { return nil }

func (f *fakeConversations) SoftDelete(dbc dbctx.Context, id uuid.UUID) error { return nil }

type fakeMessages struct {
	rows []*types.Message
}

func (f *fakeMessages) Create(dbc dbctx.Context, rows []*types.Message) ([]*types.Message, error) {
	for _, r := range rows {
		r.ID = uuid.New()
		r.CreatedAt = time.Now()
	}
	f.rows = append(f.rows, rows...)
	return rows, nil
}

func (f *fakeMessages) ListByConversation(dbc dbctx.Context, conversationID uuid.UUID, limit int) ([]*types.Message, error) {
	return f.forConv(conversationID), nil
}

func (f *fakeMessages) ListRecent(dbc dbctx.Context, conversationID uuid.UUID, n int) ([]*types.Message, error) {
	all := f.forConv(conversationID)
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}

func (f *fakeMessages) CountForWorkspaceSince(dbc dbctx.Context, workspaceID uuid.UUID, since time.Time) (int64, error) {
	return int64(len(f.rows)), nil
}

func (f *fakeMessages) forConv(id uuid.UUID) []*types.Message {
	var out []*types.Message
	for _, r := range f.rows {
		if r.ConversationID == id {
			out = append(out, r)
		}
	}
	return out
}

type fakeBilling struct {
	quotaErr error
}

func (f *fakeBilling) Checkout(dbc dbctx.Context, workspaceID uuid.UUID, planID string) (string, error) {
	return "", errors.New("not used")
}

func (f *fakeBilling) Portal(dbc dbctx.Context, workspaceID uuid.UUID) (string, error) {
	return "", errors.New("not used")
}

func (f *fakeBilling) HandleWebhook(dbc dbctx.Context, payload []byte, signature string) error {
	return nil
}

func (f *fakeBilling) Plans() []plans.Plan { return nil }

func (f *fakeBilling) CheckBotLimit(dbc dbctx.Context, ws *types.Workspace) error { return nil }

func (f *fakeBilling) CheckMessageQuota(dbc dbctx.Context, ws *types.Workspace) error {
	return f.quotaErr
}

func (f *fakeBilling) MaxPagesPerBot(ws *types.Workspace) int { return 25 }

type fakeAnalytics struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeAnalytics) Track(ctx context.Context, in services.TrackInput) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, in.EventType)
}

func (f *fakeAnalytics) Close() {}

func (f *fakeAnalytics) Summary(dbc dbctx.Context, botID uuid.UUID, days int) (*services.AnalyticsSummary, error) {
	return nil, nil
}
