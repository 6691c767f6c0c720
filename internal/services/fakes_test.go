package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/sitechat-backend/internal/data/repos"
	types "github.com/yungbote/sitechat-backend/internal/domain"
	"github.com/yungbote/sitechat-backend/internal/domain/workspace"
	"github.com/yungbote/sitechat-backend/internal/platform/apierr"
	"github.com/yungbote/sitechat-backend/internal/platform/ctxutil"
	"github.com/yungbote/sitechat-backend/internal/platform/dbctx"
	"github.com/yungbote/sitechat-backend/internal/platform/issuetracker"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
	"github.com/yungbote/sitechat-backend/internal/platform/payments"
	"github.com/yungbote/sitechat-backend/internal/platform/plans"
)

func asUser(userID uuid.UUID) dbctx.Context {
	ctx := ctxutil.WithRequestData(context.Background(), &ctxutil.RequestData{UserID: userID, Email: "owner@acme.test"})
	return dbctx.Context{Ctx: ctx}
}

type memWorkspaces struct {
	repos.WorkspaceRepo
	mu      sync.Mutex
	rows    map[uuid.UUID]*types.Workspace
	slugs   map[string]bool
	updates map[uuid.UUID]map[string]interface{}
	deleted []uuid.UUID
}

func newMemWorkspaces(rows ...*types.Workspace) *memWorkspaces {
	m := &memWorkspaces{
		rows:    map[uuid.UUID]*types.Workspace{},
		slugs:   map[string]bool{},
		updates: map[uuid.UUID]map[string]interface{}{},
	}
	for _, ws := range rows {
		m.rows[ws.ID] = ws
	}
	return m
}

func (m *memWorkspaces) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *ws
	return &cp, nil
}

func (m *memWorkspaces) GetByStripeCustomer(dbc dbctx.Context, customerID string) (*types.Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ws := range m.rows {
		if ws.StripeCustomerID == customerID {
			cp := *ws
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memWorkspaces) SlugExists(dbc dbctx.Context, slug string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slugs[slug], nil
}

func (m *memWorkspaces) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates[id] = updates
	return nil
}

func (m *memWorkspaces) Delete(dbc dbctx.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, id)
	return nil
}

type memMembers struct {
	mu   sync.Mutex
	rows map[[2]uuid.UUID]*types.WorkspaceMember
}

func newMemMembers(rows ...*types.WorkspaceMember) *memMembers {
	m := &memMembers{rows: map[[2]uuid.UUID]*types.WorkspaceMember{}}
	for _, r := range rows {
		m.rows[[2]uuid.UUID{r.WorkspaceID, r.UserID}] = r
	}
	return m
}

func (m *memMembers) Upsert(dbc dbctx.Context, row *types.WorkspaceMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *row
	m.rows[[2]uuid.UUID{row.WorkspaceID, row.UserID}] = &cp
	return nil
}

func (m *memMembers) Get(dbc dbctx.Context, workspaceID, userID uuid.UUID) (*types.WorkspaceMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[[2]uuid.UUID{workspaceID, userID}]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *memMembers) List(dbc dbctx.Context, workspaceID uuid.UUID) ([]*types.WorkspaceMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*types.WorkspaceMember
	for k, r := range m.rows {
		if k[0] == workspaceID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memMembers) Remove(dbc dbctx.Context, workspaceID, userID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := [2]uuid.UUID{workspaceID, userID}
	if _, ok := m.rows[k]; !ok {
		return false, nil
	}
	delete(m.rows, k)
	return true, nil
}

type memAPIKeys struct {
	mu      sync.Mutex
	rows    []*types.APIKey
	touched chan uuid.UUID
}

func newMemAPIKeys() *memAPIKeys {
	return &memAPIKeys{touched: make(chan uuid.UUID, 8)}
}

func (m *memAPIKeys) Create(dbc dbctx.Context, k *types.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, k)
	return nil
}

func (m *memAPIKeys) GetByHash(dbc dbctx.Context, hash string) (*types.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.rows {
		if k.KeyHash == hash {
			cp := *k
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memAPIKeys) ListByWorkspace(dbc dbctx.Context, workspaceID uuid.UUID) ([]*types.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*types.APIKey
	for _, k := range m.rows {
		if k.WorkspaceID == workspaceID {
			out = append(out, k)
		}
	}
	return out, nil
}

func (m *memAPIKeys) Revoke(dbc dbctx.Context, workspaceID, id uuid.UUID, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.rows {
		if k.ID == id && k.WorkspaceID == workspaceID && k.RevokedAt == nil {
			k.RevokedAt = &at
			return true, nil
		}
	}
	return false, nil
}

func (m *memAPIKeys) TouchLastUsed(dbc dbctx.Context, id uuid.UUID, at time.Time) error {
	m.touched <- id
	return nil
}

type memBots struct {
	repos.BotRepo
	count   int64
	rows    map[uuid.UUID]*types.Bot
	updates map[uuid.UUID]map[string]interface{}
}

func (m *memBots) Create(dbc dbctx.Context, b *types.Bot) error {
	if m.rows == nil {
		m.rows = map[uuid.UUID]*types.Bot{}
	}
	m.rows[b.ID] = b
	m.count++
	return nil
}

func (m *memBots) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Bot, error) {
	if b, ok := m.rows[id]; ok {
		cp := *b
		return &cp, nil
	}
	return nil, nil
}

func (m *memBots) GetInWorkspace(dbc dbctx.Context, workspaceID, id uuid.UUID) (*types.Bot, error) {
	b, _ := m.GetByID(dbc, id)
	if b == nil || b.WorkspaceID != workspaceID {
		return nil, nil
	}
	return b, nil
}

func (m *memBots) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if m.updates == nil {
		m.updates = map[uuid.UUID]map[string]interface{}{}
	}
	m.updates[id] = updates
	return nil
}

func (m *memBots) CountByWorkspace(dbc dbctx.Context, workspaceID uuid.UUID) (int64, error) {
	return m.count, nil
}

type memMessages struct {
	repos.MessageRepo
	count int64
	since time.Time
}

func (m *memMessages) CountForWorkspaceSince(dbc dbctx.Context, workspaceID uuid.UUID, since time.Time) (int64, error) {
	m.since = since
	return m.count, nil
}

type memEvents struct {
	mu     sync.Mutex
	rows   []*types.AnalyticsEvent
	daily  []types.DailyCount
	totals map[string]int64
	since  time.Time
}

func (m *memEvents) Create(dbc dbctx.Context, rows []*types.AnalyticsEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, rows...)
	return nil
}

func (m *memEvents) DailyCounts(dbc dbctx.Context, botID uuid.UUID, since time.Time) ([]types.DailyCount, error) {
	m.since = since
	return m.daily, nil
}

func (m *memEvents) Totals(dbc dbctx.Context, botID uuid.UUID, since time.Time) (map[string]int64, error) {
	return m.totals, nil
}

type fakeStripe struct {
	event    *payments.Event
	parseErr error
	checkout payments.CheckoutInput
}

func (f *fakeStripe) CreateCheckoutSession(ctx context.Context, in payments.CheckoutInput) (string, error) {
	f.checkout = in
	return "https://checkout.stripe.test/" + in.PlanID, nil
}

func (f *fakeStripe) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	return "https://billing.stripe.test/" + customerID, nil
}

func (f *fakeStripe) ParseWebhook(payload []byte, signature string) (*payments.Event, error) {
	if f.parseErr != nil {
		return nil, f.parseErr
	}
	return f.event, nil
}

type fakeTracker struct {
	created issuetracker.CreateInput
	state   string
	labels  []string
}

func (f *fakeTracker) Create(ctx context.Context, in issuetracker.CreateInput) (*issuetracker.Issue, error) {
	f.created = in
	return &issuetracker.Issue{Number: 7, Title: in.Title, State: "open", Labels: in.Labels}, nil
}

func (f *fakeTracker) List(ctx context.Context, state string, labels []string) ([]issuetracker.Issue, error) {
	f.state, f.labels = state, labels
	return []issuetracker.Issue{{Number: 7, State: state}}, nil
}

func requireAPIErr(t *testing.T, err error, status int, code string) {
	t.Helper()
	ae, ok := apierr.As(err)
	require.True(t, ok, "expected apierr, got %v", err)
	require.Equal(t, status, ae.Status)
	require.Equal(t, code, ae.Code)
}

type fixture struct {
	owner, admin, member uuid.UUID
	ws                   *types.Workspace
	workspaces           *memWorkspaces
	members              *memMembers
	access               WorkspaceService
	catalog              *plans.Catalog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	t.Setenv("STRIPE_PRICE_PRO", "price_pro")
	t.Setenv("STRIPE_PRICE_BUSINESS", "price_biz")
	catalog, err := plans.Load()
	require.NoError(t, err)

	f := &fixture{owner: uuid.New(), admin: uuid.New(), member: uuid.New(), catalog: catalog}
	f.ws = &types.Workspace{ID: uuid.New(), Name: "Acme", Slug: "acme", OwnerUserID: f.owner, Plan: plans.Free}
	f.workspaces = newMemWorkspaces(f.ws)
	f.members = newMemMembers(
		&types.WorkspaceMember{WorkspaceID: f.ws.ID, UserID: f.owner, Role: workspace.RoleOwner},
		&types.WorkspaceMember{WorkspaceID: f.ws.ID, UserID: f.admin, Role: workspace.RoleAdmin},
		&types.WorkspaceMember{WorkspaceID: f.ws.ID, UserID: f.member, Role: workspace.RoleMember},
	)
	f.access = NewWorkspaceService(nil, logger.Nop(), f.workspaces, f.members, catalog)
	return f
}
