package content

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/sitechat-backend/internal/domain"
	"github.com/yungbote/sitechat-backend/internal/platform/dbctx"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
)

type PageRepo interface {
	UpsertMany(dbc dbctx.Context, pages []*types.ScrapedPage) ([]*types.ScrapedPage, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ScrapedPage, error)
	ListByBot(dbc dbctx.Context, botID uuid.UUID, limit, offset int) ([]*types.ScrapedPage, int64, error)
	DeleteByBot(dbc dbctx.Context, botID uuid.UUID) error
	DeleteNotIn(dbc dbctx.Context, botID uuid.UUID, urls []string) (int64, error)
}

type pageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPageRepo(db *gorm.DB, baseLog *logger.Logger) PageRepo {
	return &pageRepo{db: db, log: baseLog.With("repo", "ScrapedPageRepo")}
}

// UpsertMany writes pages keyed on (bot_id, url) and returns the stored rows
// with their ids, in input order.
func (r *pageRepo) UpsertMany(dbc dbctx.Context, pages []*types.ScrapedPage) ([]*types.ScrapedPage, error) {
	if len(pages) == 0 {
		return nil, nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	now := time.Now()
	for _, p := range pages {
		p.UpdatedAt = now
		if p.ScrapedAt.IsZero() {
			p.ScrapedAt = now
		}
	}
	err := txx.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "bot_id"}, {Name: "url"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"title", "description", "content", "headings", "word_count",
				"content_hash", "status", "error", "storage_key", "scraped_at", "updated_at",
			}),
		}).
		Create(&pages).Error
	if err != nil {
		return nil, err
	}

	// On conflict postgres keeps the old id; re-read so callers see it.
	botID := pages[0].BotID
	urls := make([]string, 0, len(pages))
	for _, p := range pages {
		urls = append(urls, p.URL)
	}
	var stored []*types.ScrapedPage
	if err := txx.WithContext(dbc.Ctx).
		Where("bot_id = ? AND url IN ?", botID, urls).
		Find(&stored).Error; err != nil {
		return nil, err
	}
	byURL := make(map[string]*types.ScrapedPage, len(stored))
	for _, p := range stored {
		byURL[p.URL] = p
	}
	out := make([]*types.ScrapedPage, 0, len(pages))
	for _, p := range pages {
		if s, ok := byURL[p.URL]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *pageRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ScrapedPage, error) {
	var p types.ScrapedPage
	err := dbc.DB(r.db).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *pageRepo) ListByBot(dbc dbctx.Context, botID uuid.UUID, limit, offset int) ([]*types.ScrapedPage, int64, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var total int64
	if err := dbc.DB(r.db).
		Model(&types.ScrapedPage{}).
		Where("bot_id = ?", botID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []*types.ScrapedPage
	err := dbc.DB(r.db).
		Where("bot_id = ?", botID).
		Omit("content").
		Order("url ASC").
		Limit(limit).
		Offset(offset).
		Find(&out).Error
	return out, total, err
}

func (r *pageRepo) DeleteByBot(dbc dbctx.Context, botID uuid.UUID) error {
	return dbc.DB(r.db).Where("bot_id = ?", botID).Delete(&types.ScrapedPage{}).Error
}

// DeleteNotIn drops pages of botID whose url was not seen in the latest crawl.
func (r *pageRepo) DeleteNotIn(dbc dbctx.Context, botID uuid.UUID, urls []string) (int64, error) {
	q := dbc.DB(r.db).Where("bot_id = ?", botID)
	if len(urls) > 0 {
		q = q.Where("url NOT IN ?", urls)
	}
	res := q.Delete(&types.ScrapedPage{})
	return res.RowsAffected, res.Error
}
