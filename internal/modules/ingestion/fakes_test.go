package ingestion

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/sitechat-backend/internal/data/repos"
	types "github.com/yungbote/sitechat-backend/internal/domain"
	"github.com/yungbote/sitechat-backend/internal/platform/dbctx"
	"github.com/yungbote/sitechat-backend/internal/platform/objectstore"
	"github.com/yungbote/sitechat-backend/internal/platform/openai"
	"github.com/yungbote/sitechat-backend/internal/platform/pinecone"
	"github.com/yungbote/sitechat-backend/internal/platform/scraper"
)

type fakeAI struct {
	mu     sync.Mutex
	calls  int
	failOn string
}

func (f *fakeAI) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		if f.failOn != "" && in == f.failOn {
			return nil, errors.New("upstream exploded")
		}
		out[i] = []float32{float32(len(in)), 1}
	}
	return out, nil
}

func (f *fakeAI) EmbedModel() string { return "text-embedding-3-small" }

func (f *fakeAI) Complete(ctx context.Context, req openai.ChatRequest) (openai.ChatResult, error) {
	return openai.ChatResult{}, errors.New("not used")
}

func (f *fakeAI) StreamChat(ctx context.Context, req openai.ChatRequest, onDelta func(string) error) (openai.ChatResult, error) {
	return openai.ChatResult{}, errors.New("not used")
}

type fakeCrawler struct {
	results []scraper.CrawlResult
	gotOpts scraper.CrawlOptions
	gotSeed []string
}

func (f *fakeCrawler) Crawl(ctx context.Context, seeds []string, opts scraper.CrawlOptions) ([]scraper.CrawlResult, error) {
	f.gotSeed = seeds
	f.gotOpts = opts
	return f.results, nil
}

type fakeVec struct {
	mu         sync.Mutex
	vectors    map[string][]pinecone.Vector
	deletedNS  []string
	deletedIDs []string
	ops        []string
	upsertErr  error
}

func (f *fakeVec) Upsert(ctx context.Context, ns string, vs []pinecone.Vector) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.vectors == nil {
		f.vectors = map[string][]pinecone.Vector{}
	}
	f.vectors[ns] = append(f.vectors[ns], vs...)
	f.ops = append(f.ops, "upsert")
	return nil
}

func (f *fakeVec) QueryMatches(ctx context.Context, ns string, q []float32, topK int, filter map[string]any) ([]pinecone.VectorMatch, error) {
	return nil, nil
}

func (f *fakeVec) DeleteIDs(ctx context.Context, ns string, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedIDs = append(f.deletedIDs, ids...)
	f.ops = append(f.ops, "delete_ids")
	return nil
}

func (f *fakeVec) DeleteNamespace(ctx context.Context, ns string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedNS = append(f.deletedNS, ns)
	delete(f.vectors, ns)
	return nil
}

type fakeWorkspaces struct {
	repos.WorkspaceRepo
	rows map[uuid.UUID]*types.Workspace
}

func (f *fakeWorkspaces) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Workspace, error) {
	return f.rows[id], nil
}

type fakeLimits struct{ pages int }

func (f fakeLimits) MaxPagesPerBot(ws *types.Workspace) int { return f.pages }

type fakeBots struct {
	bots    map[uuid.UUID]*types.Bot
	updates []map[string]interface{}
}

func (f *fakeBots) Create(dbc dbctx.Context, b *types.Bot) error { f.bots[b.ID] = b; return nil }

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
	return int64(len(f.bots)), nil
}

func (f *fakeBots) ListScheduled(dbc dbctx.Context) ([]*types.Bot, error) { return nil, nil }

func (f *fakeBots) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	f.updates = append(f.updates, updates)
	return nil
}

func (f *fakeBots) SoftDelete(dbc dbctx.Context, id uuid.UUID) error { return nil }

func (f *fakeBots) last() map[string]interface{} {
	if len(f.updates) == 0 {
		return nil
	}
	return f.updates[len(f.updates)-1]
}

type fakePages struct {
	byURL    map[string]*types.ScrapedPage
	keptURLs []string
}

func (f *fakePages) UpsertMany(dbc dbctx.Context, pages []*types.ScrapedPage) ([]*types.ScrapedPage, error) {
	if f.byURL == nil {
		f.byURL = map[string]*types.ScrapedPage{}
	}
	out := make([]*types.ScrapedPage, 0, len(pages))
	for _, p := range pages {
		if old, ok := f.byURL[p.URL]; ok {
			p.ID = old.ID
		} else {
			p.ID = uuid.New()
		}
		f.byURL[p.URL] = p
		out = append(out, p)
	}
	return out, nil
}

func (f *fakePages) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ScrapedPage, error) {
	return nil, nil
}

func (f *fakePages) ListByBot(dbc dbctx.Context, botID uuid.UUID, limit, offset int) ([]*types.ScrapedPage, int64, error) {
	return nil, 0, nil
}

func (f *fakePages) DeleteByBot(dbc dbctx.Context, botID uuid.UUID) error { return nil }

func (f *fakePages) DeleteNotIn(dbc dbctx.Context, botID uuid.UUID, urls []string) (int64, error) {
	f.keptURLs = urls
	return 0, nil
}

type fakeEmbeddings struct {
	rows    []*types.Embedding
	deleted int
}

func (f *fakeEmbeddings) CreateMany(dbc dbctx.Context, rows []*types.Embedding) error {
	f.rows = append(f.rows, rows...)
	return nil
}

func (f *fakeEmbeddings) ListByBot(dbc dbctx.Context, botID uuid.UUID) ([]*types.Embedding, error) {
	return f.rows, nil
}

func (f *fakeEmbeddings) GetByVectorIDs(dbc dbctx.Context, ids []string) ([]*types.Embedding, error) {
	return nil, nil
}

func (f *fakeEmbeddings) CountByBot(dbc dbctx.Context, botID uuid.UUID) (int64, error) {
	return int64(len(f.rows)), nil
}

func (f *fakeEmbeddings) DeleteByBot(dbc dbctx.Context, botID uuid.UUID) error {
	f.deleted++
	f.rows = nil
	return nil
}

type memStore struct {
	mu   sync.Mutex
	objs map[string][]byte
}

func (m *memStore) Put(ctx context.Context, c objectstore.Category, key string, body io.Reader) error {
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objs == nil {
		m.objs = map[string][]byte{}
	}
	m.objs[string(c)+"/"+key] = b
	return nil
}

func (m *memStore) Get(ctx context.Context, c objectstore.Category, key string) (io.ReadCloser, error) {
	return nil, objectstore.ErrNotFound
}

func (m *memStore) Delete(ctx context.Context, c objectstore.Category, key string) error { return nil }

func (m *memStore) DeletePrefix(ctx context.Context, c objectstore.Category, prefix string) error {
	return nil
}

func (m *memStore) PublicURL(c objectstore.Category, key string) string { return "" }

func okPage(url, title string, sections ...scraper.Section) *scraper.Page {
	text := ""
	for _, s := range sections {
		text += s.Text + "\n\n"
	}
	return &scraper.Page{
		URL:       url,
		FinalURL:  url,
		Title:     title,
		Sections:  sections,
		Text:      text,
		WordCount: len(text) / 5,
		Raw:       []byte("<html>" + title + "</html>"),
		FetchedAt: time.Now(),
	}
}
