package ingestion

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/sitechat-backend/internal/domain"
	"github.com/yungbote/sitechat-backend/internal/domain/bot"
	"github.com/yungbote/sitechat-backend/internal/domain/content"
	"github.com/yungbote/sitechat-backend/internal/platform/chunker"
	"github.com/yungbote/sitechat-backend/internal/platform/dbctx"
	"github.com/yungbote/sitechat-backend/internal/platform/objectstore"
	"github.com/yungbote/sitechat-backend/internal/platform/pinecone"
	"github.com/yungbote/sitechat-backend/internal/platform/scraper"
)

const (
	StageCrawl    = "crawl"
	StagePersist  = "persist"
	StageEmbed    = "embed"
	StagePrune    = "prune"
	StageFinalize = "finalize"

	maxMetadataText = 2000
	previewChars    = 280
)

var (
	ErrNothingScraped = errors.New("no pages could be scraped")
	ErrWorkspaceGone  = errors.New("workspace no longer exists")
)

type TrainInput struct {
	BotID    uuid.UUID
	URLs     []string
	MaxPages int
}

type TrainOutput struct {
	PagesOK     int   `json:"pages_ok"`
	PagesFailed int   `json:"pages_failed"`
	Chunks      int   `json:"chunks"`
	DurationMS  int64 `json:"duration_ms"`
}

// ProgressFunc reports stage and overall percent (0-100).
type ProgressFunc func(stage string, pct int, msg string)

// Train rebuilds a bot's knowledge: crawl, persist pages, embed chunks, upsert
// them, prune vectors the new crawl no longer produced and mark the bot ready.
// The previous index stays queryable until the new one is in place.
func Train(ctx context.Context, deps UsecasesDeps, in TrainInput, progress ProgressFunc) (TrainOutput, error) {
	out := TrainOutput{}
	if deps.Log == nil || deps.Crawler == nil || deps.Embedder == nil || deps.Vec == nil ||
		deps.Workspaces == nil || deps.Bots == nil || deps.Pages == nil || deps.Embeddings == nil ||
		deps.Limits == nil {
		return out, fmt.Errorf("bot train: missing deps")
	}
	if progress == nil {
		progress = func(string, int, string) {}
	}
	started := time.Now()
	dbc := dbctx.Context{Ctx: ctx, Tx: deps.DB}
	log := deps.Log.With("bot_id", in.BotID)

	b, err := deps.Bots.GetByID(dbc, in.BotID)
	if err != nil {
		return out, err
	}
	if b == nil {
		return out, fmt.Errorf("bot %s not found", in.BotID)
	}
	seeds := in.URLs
	if len(seeds) == 0 {
		seeds = b.SourceURLs
	}
	if len(seeds) == 0 {
		return out, fmt.Errorf("bot has no source urls")
	}
	ws, err := deps.Workspaces.GetByID(dbc, b.WorkspaceID)
	if err != nil {
		return out, err
	}
	if ws == nil {
		return out, ErrWorkspaceGone
	}
	maxPages := EffectiveMaxPages(in.MaxPages, b.MaxPages, deps.Limits.MaxPagesPerBot(ws))
	if err := deps.Bots.UpdateFields(dbc, b.ID, map[string]interface{}{
		"status":       bot.StatusTraining,
		"status_error": "",
	}); err != nil {
		return out, err
	}

	// crawl: 0-40
	progress(StageCrawl, 0, fmt.Sprintf("Crawling %d source url(s)", len(seeds)))
	results, err := deps.Crawler.Crawl(ctx, seeds, scraper.CrawlOptions{
		MaxPages:    maxPages,
		MaxDepth:    deps.CrawlDepth,
		Concurrency: deps.CrawlConcurrency,
	})
	if err != nil {
		return out, fmt.Errorf("crawl: %w", err)
	}
	for _, r := range results {
		if r.Page != nil {
			out.PagesOK++
		} else {
			out.PagesFailed++
		}
	}
	log.Info("crawl finished", "ok", out.PagesOK, "failed", out.PagesFailed, "max_pages", maxPages)
	if out.PagesOK == 0 {
		return out, ErrNothingScraped
	}
	progress(StageCrawl, 40, fmt.Sprintf("Fetched %d page(s)", out.PagesOK))

	// Read before persisting: dropping pages cascades their embedding rows.
	previous, err := deps.Embeddings.ListByBot(dbc, b.ID)
	if err != nil {
		return out, fmt.Errorf("load previous embeddings: %w", err)
	}

	// persist: 40-50
	progress(StagePersist, 40, "Saving pages")
	pages, scraped, err := persistPages(ctx, deps, b, results)
	if err != nil {
		return out, fmt.Errorf("persist pages: %w", err)
	}
	progress(StagePersist, 50, fmt.Sprintf("Saved %d page(s)", len(pages)))

	// embed: 50-90
	type pending struct {
		page  *types.ScrapedPage
		chunk chunker.SectionChunk
	}
	var work []pending
	for i, pg := range pages {
		src := scraped[i]
		if pg.Status != content.PageStatusOK || src == nil {
			continue
		}
		for _, c := range chunker.SplitSections(src.Title, sectionsOf(src), deps.Chunking) {
			work = append(work, pending{page: pg, chunk: c})
		}
	}
	if len(work) == 0 {
		return out, fmt.Errorf("pages produced no text to index")
	}
	texts := make([]string, len(work))
	for i, w := range work {
		texts[i] = w.chunk.EmbedText
	}
	progress(StageEmbed, 50, fmt.Sprintf("Embedding %d chunk(s)", len(texts)))
	vecs, err := deps.Embedder.EmbedChunks(ctx, texts, func(done int) {
		progress(StageEmbed, 50+40*done/len(texts), fmt.Sprintf("Embedded %d/%d chunks", done, len(texts)))
	})
	if err != nil {
		return out, err
	}

	vectors := make([]pinecone.Vector, len(work))
	rows := make([]*types.Embedding, len(work))
	for i, w := range work {
		vid := fmt.Sprintf("%s:%d", w.page.ID, w.chunk.Index)
		vectors[i] = pinecone.Vector{
			ID:     vid,
			Values: vecs[i],
			Metadata: map[string]any{
				"bot_id":      b.ID.String(),
				"page_id":     w.page.ID.String(),
				"url":         w.page.URL,
				"title":       w.page.Title,
				"heading":     w.chunk.Heading,
				"chunk_index": w.chunk.Index,
				"text":        truncateRunes(w.chunk.Text, maxMetadataText),
			},
		}
		rows[i] = &types.Embedding{
			ID:             uuid.New(),
			BotID:          b.ID,
			PageID:         w.page.ID,
			ChunkIndex:     w.chunk.Index,
			VectorID:       vid,
			Heading:        w.chunk.Heading,
			ContentPreview: truncateRunes(w.chunk.Text, previewChars),
			TokenCount:     chunker.EstimateTokens(w.chunk.Text),
		}
	}
	if err := deps.Vec.Upsert(ctx, b.Namespace(), vectors); err != nil {
		return out, fmt.Errorf("upsert vectors: %w", err)
	}
	out.Chunks = len(rows)
	progress(StageEmbed, 90, fmt.Sprintf("Indexed %d chunk(s)", out.Chunks))

	// prune: 90-95
	stale := staleVectorIDs(previous, rows)
	progress(StagePrune, 90, fmt.Sprintf("Removing %d stale chunk(s)", len(stale)))
	if len(stale) > 0 {
		if err := deps.Vec.DeleteIDs(ctx, b.Namespace(), stale); err != nil {
			return out, fmt.Errorf("prune vectors: %w", err)
		}
	}
	if err := replaceEmbeddings(dbc, deps, b.ID, rows); err != nil {
		return out, fmt.Errorf("save embeddings: %w", err)
	}
	progress(StagePrune, 95, "Index updated")

	// finalize
	now := time.Now().UTC()
	if err := deps.Bots.UpdateFields(dbc, b.ID, map[string]interface{}{
		"status":          bot.StatusReady,
		"status_error":    "",
		"page_count":      out.PagesOK,
		"chunk_count":     out.Chunks,
		"last_trained_at": now,
	}); err != nil {
		return out, err
	}
	out.DurationMS = time.Since(started).Milliseconds()
	progress(StageFinalize, 100, "Ready")
	log.Info("bot trained", "pages", out.PagesOK, "chunks", out.Chunks, "duration_ms", out.DurationMS)
	return out, nil
}

// EffectiveMaxPages picks the requested page budget, falling back to the bot's
// own setting, and never exceeds the plan cap (0 means uncapped).
func EffectiveMaxPages(requested, botMax, planCap int) int {
	n := requested
	if n <= 0 {
		n = botMax
	}
	if planCap > 0 && (n <= 0 || n > planCap) {
		n = planCap
	}
	return n
}

func staleVectorIDs(previous []*types.Embedding, current []*types.Embedding) []string {
	keep := make(map[string]bool, len(current))
	for _, e := range current {
		keep[e.VectorID] = true
	}
	var out []string
	for _, e := range previous {
		if e.VectorID != "" && !keep[e.VectorID] {
			out = append(out, e.VectorID)
			keep[e.VectorID] = true
		}
	}
	return out
}

// replaceEmbeddings swaps the bot's embedding rows in one transaction when a
// database is wired.
func replaceEmbeddings(dbc dbctx.Context, deps UsecasesDeps, botID uuid.UUID, rows []*types.Embedding) error {
	swap := func(inner dbctx.Context) error {
		if err := deps.Embeddings.DeleteByBot(inner, botID); err != nil {
			return err
		}
		return deps.Embeddings.CreateMany(inner, rows)
	}
	if deps.DB == nil {
		return swap(dbc)
	}
	return deps.DB.WithContext(dbc.Ctx).Transaction(func(tx *gorm.DB) error {
		return swap(dbctx.Context{Ctx: dbc.Ctx, Tx: tx})
	})
}

// persistPages upserts one row per crawl result and drops rows for URLs no
// longer reached. The returned slices are index-aligned; scraped[i] is nil for
// failed fetches.
func persistPages(ctx context.Context, deps UsecasesDeps, b *types.Bot, results []scraper.CrawlResult) ([]*types.ScrapedPage, []*scraper.Page, error) {
	dbc := dbctx.Context{Ctx: ctx, Tx: deps.DB}
	rows := make([]*types.ScrapedPage, 0, len(results))
	scraped := make([]*scraper.Page, 0, len(results))
	seen := map[string]bool{}
	for _, r := range results {
		if r.URL == "" || seen[r.URL] {
			continue
		}
		seen[r.URL] = true
		row := &types.ScrapedPage{BotID: b.ID, URL: r.URL, ScrapedAt: time.Now().UTC()}
		if r.Page == nil {
			row.Status = content.PageStatusFailed
			if r.Err != nil {
				row.Error = truncateRunes(r.Err.Error(), 500)
			}
		} else {
			p := r.Page
			row.Status = content.PageStatusOK
			row.Title = p.Title
			row.Description = p.Description
			row.Content = p.Text
			row.WordCount = p.WordCount
			row.ContentHash = contentHash(p.Text)
			hs := make([]content.Heading, 0, len(p.Headings))
			for _, h := range p.Headings {
				hs = append(hs, content.Heading{Level: h.Level, Text: h.Text})
			}
			row.Headings = datatypes.JSONSlice[content.Heading](hs)
			row.StorageKey = saveSnapshot(ctx, deps, b.ID, r.URL, p.Raw)
		}
		rows = append(rows, row)
		scraped = append(scraped, r.Page)
	}

	saved, err := deps.Pages.UpsertMany(dbc, rows)
	if err != nil {
		return nil, nil, err
	}
	if len(saved) != len(rows) {
		return nil, nil, fmt.Errorf("stored %d of %d pages", len(saved), len(rows))
	}
	if _, err := deps.Pages.DeleteNotIn(dbc, b.ID, urlsOf(saved)); err != nil {
		return nil, nil, err
	}
	return saved, scraped, nil
}

// saveSnapshot stores the raw body for later inspection. Failures only cost
// the snapshot.
func saveSnapshot(ctx context.Context, deps UsecasesDeps, botID uuid.UUID, pageURL string, raw []byte) string {
	if deps.Store == nil || len(raw) == 0 {
		return ""
	}
	key := SnapshotKey(botID, pageURL)
	if err := deps.Store.Put(ctx, objectstore.CategorySnapshot, key, bytes.NewReader(raw)); err != nil {
		deps.Log.Warn("page snapshot failed (ignored)", "url", pageURL, "error", err)
		return ""
	}
	return key
}

// SnapshotPrefix is the object store prefix holding a bot's page snapshots.
func SnapshotPrefix(botID uuid.UUID) string {
	return "pages/" + botID.String() + "/"
}

func SnapshotKey(botID uuid.UUID, pageURL string) string {
	return SnapshotPrefix(botID) + contentHash(pageURL)[:24] + ".html"
}

func sectionsOf(p *scraper.Page) []chunker.Section {
	if len(p.Sections) == 0 {
		return []chunker.Section{{Text: p.Text}}
	}
	out := make([]chunker.Section, 0, len(p.Sections))
	for _, s := range p.Sections {
		out = append(out, chunker.Section{Heading: s.Heading, Text: s.Text})
	}
	return out
}

func urlsOf(rows []*types.ScrapedPage) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.URL)
	}
	return out
}

func contentHash(text string) string {
	sum := blake2b.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
