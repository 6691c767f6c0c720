package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/yungbote/sitechat-backend/internal/domain"
	"github.com/yungbote/sitechat-backend/internal/modules/chat"
	"github.com/yungbote/sitechat-backend/internal/platform/apierr"
	"github.com/yungbote/sitechat-backend/internal/platform/dbctx"
	"github.com/yungbote/sitechat-backend/internal/services"
)

func init() { gin.SetMode(gin.TestMode) }

type fakeTurn struct {
	convID uuid.UUID
	msgID  uuid.UUID
	deltas []string
	out    *chat.ReplyOutput
	err    error

	streamed  bool
	completed bool
}

func (t *fakeTurn) ConversationID() uuid.UUID        { return t.convID }
func (t *fakeTurn) MessageID() uuid.UUID             { return t.msgID }
func (t *fakeTurn) Citations() []types.MessageSource { return t.out.Sources }

func (t *fakeTurn) Stream(ctx context.Context, onDelta func(string) error) (*chat.ReplyOutput, error) {
	t.streamed = true
	for _, d := range t.deltas {
		if err := onDelta(d); err != nil {
			return nil, err
		}
	}
	if t.err != nil {
		return nil, t.err
	}
	return t.out, nil
}

func (t *fakeTurn) Complete(ctx context.Context) (*chat.ReplyOutput, error) {
	t.completed = true
	if t.err != nil {
		return nil, t.err
	}
	return t.out, nil
}

type fakeStarter struct {
	mu   sync.Mutex
	turn *fakeTurn
	err  error
	got  []chat.ReplyInput
}

func (f *fakeStarter) Start(ctx context.Context, in chat.ReplyInput) (ChatTurn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, in)
	if f.err != nil {
		return nil, f.err
	}
	return f.turn, nil
}

func newTurn(answer string, sources ...types.MessageSource) *fakeTurn {
	conv := &types.Conversation{ID: uuid.New()}
	return &fakeTurn{
		convID: conv.ID,
		msgID:  uuid.New(),
		deltas: strings.SplitAfter(answer, " "),
		out: &chat.ReplyOutput{
			Conversation:     conv,
			AssistantMessage: &types.Message{ID: uuid.New(), Role: "assistant", Content: answer},
			Sources:          sources,
			Model:            "gpt-4o-mini",
		},
	}
}

type fakeBots struct {
	services.BotService
	bots      map[uuid.UUID]*types.Bot
	trainJob  *types.JobRun
	trainErr  error
	trainIn   services.TrainInput
	widgetCfg *services.WidgetConfig
}

func (f *fakeBots) WorkspaceOf(dbc dbctx.Context, botID uuid.UUID) (uuid.UUID, error) {
	b, err := f.PublicBot(dbc.Ctx, botID)
	if err != nil {
		return uuid.Nil, err
	}
	return b.WorkspaceID, nil
}

func (f *fakeBots) PublicBot(ctx context.Context, botID uuid.UUID) (*types.Bot, error) {
	b, ok := f.bots[botID]
	if !ok {
		return nil, apierr.NotFound("bot")
	}
	return b, nil
}

func (f *fakeBots) Get(dbc dbctx.Context, wsID, botID uuid.UUID) (*types.Bot, error) {
	b, ok := f.bots[botID]
	if !ok || b.WorkspaceID != wsID {
		return nil, apierr.NotFound("bot")
	}
	return b, nil
}

func (f *fakeBots) Train(dbc dbctx.Context, wsID, botID uuid.UUID, in services.TrainInput) (*types.JobRun, error) {
	f.trainIn = in
	return f.trainJob, f.trainErr
}

func (f *fakeBots) WidgetConfig(ctx context.Context, botID uuid.UUID) (*services.WidgetConfig, error) {
	if f.widgetCfg == nil {
		return nil, apierr.NotFound("bot")
	}
	return f.widgetCfg, nil
}

type fakeWorkspaces struct {
	services.WorkspaceService
	authErr error
	roles   []string
}

func (f *fakeWorkspaces) Authorize(dbc dbctx.Context, id uuid.UUID, minRole string) (*types.Workspace, *types.WorkspaceMember, error) {
	f.roles = append(f.roles, minRole)
	if f.authErr != nil {
		return nil, nil, f.authErr
	}
	return &types.Workspace{ID: id}, &types.WorkspaceMember{WorkspaceID: id, Role: minRole}, nil
}

type fakeAnalytics struct {
	mu      sync.Mutex
	events  []services.TrackInput
	summary *services.AnalyticsSummary
	days    int
}

func (f *fakeAnalytics) Track(ctx context.Context, in services.TrackInput) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, in)
}

func (f *fakeAnalytics) Close() {}

func (f *fakeAnalytics) Summary(dbc dbctx.Context, botID uuid.UUID, days int) (*services.AnalyticsSummary, error) {
	f.days = days
	if f.summary == nil {
		return &services.AnalyticsSummary{BotID: botID, Days: days}, nil
	}
	return f.summary, nil
}

func (f *fakeAnalytics) eventTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.EventType)
	}
	return out
}

func perform(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}
