package content

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/sitechat-backend/internal/domain"
	"github.com/yungbote/sitechat-backend/internal/platform/dbctx"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
)

type EmbeddingRepo interface {
	CreateMany(dbc dbctx.Context, rows []*types.Embedding) error
	ListByBot(dbc dbctx.Context, botID uuid.UUID) ([]*types.Embedding, error)
	GetByVectorIDs(dbc dbctx.Context, vectorIDs []string) ([]*types.Embedding, error)
	CountByBot(dbc dbctx.Context, botID uuid.UUID) (int64, error)
	DeleteByBot(dbc dbctx.Context, botID uuid.UUID) error
}

type embeddingRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEmbeddingRepo(db *gorm.DB, baseLog *logger.Logger) EmbeddingRepo {
	return &embeddingRepo{db: db, log: baseLog.With("repo", "EmbeddingRepo")}
}

func (r *embeddingRepo) CreateMany(dbc dbctx.Context, rows []*types.Embedding) error {
	if len(rows) == 0 {
		return nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).CreateInBatches(rows, 500).Error
}

func (r *embeddingRepo) ListByBot(dbc dbctx.Context, botID uuid.UUID) ([]*types.Embedding, error) {
	var out []*types.Embedding
	err := dbc.DB(r.db).
		Where("bot_id = ?", botID).
		Order("page_id ASC, chunk_index ASC").
		Find(&out).Error
	return out, err
}

func (r *embeddingRepo) GetByVectorIDs(dbc dbctx.Context, vectorIDs []string) ([]*types.Embedding, error) {
	if len(vectorIDs) == 0 {
		return nil, nil
	}
	var out []*types.Embedding
	err := dbc.DB(r.db).Where("vector_id IN ?", vectorIDs).Find(&out).Error
	return out, err
}

func (r *embeddingRepo) CountByBot(dbc dbctx.Context, botID uuid.UUID) (int64, error) {
	var n int64
	err := dbc.DB(r.db).Model(&types.Embedding{}).Where("bot_id = ?", botID).Count(&n).Error
	return n, err
}

func (r *embeddingRepo) DeleteByBot(dbc dbctx.Context, botID uuid.UUID) error {
	return dbc.DB(r.db).Where("bot_id = ?", botID).Delete(&types.Embedding{}).Error
}
