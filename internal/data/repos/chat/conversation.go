package chat

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/sitechat-backend/internal/domain"
	"github.com/yungbote/sitechat-backend/internal/platform/dbctx"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
)

type ConversationRepo interface {
	Create(dbc dbctx.Context, c *types.Conversation) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Conversation, error)
	GetForBot(dbc dbctx.Context, botID, id uuid.UUID) (*types.Conversation, error)
	ListByBot(dbc dbctx.Context, botID uuid.UUID, limit, offset int) ([]*types.Conversation, int64, error)
	Touch(dbc dbctx.Context, id uuid.UUID, added int, at time.Time) error
	SetTitle(dbc dbctx.Context, id uuid.UUID, title string) error
	SoftDelete(dbc dbctx.Context, id uuid.UUID) error
}

type conversationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConversationRepo(db *gorm.DB, baseLog *logger.Logger) ConversationRepo {
	return &conversationRepo{db: db, log: baseLog.With("repo", "ConversationRepo")}
}

func (r *conversationRepo) Create(dbc dbctx.Context, c *types.Conversation) error {
	if c == nil || c.BotID == uuid.Nil || c.WorkspaceID == uuid.Nil {
		return fmt.Errorf("conversation requires bot_id and workspace_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).Create(c).Error
}

func (r *conversationRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Conversation, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var c types.Conversation
	err := dbc.DB(r.db).Where("id = ?", id).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *conversationRepo) GetForBot(dbc dbctx.Context, botID, id uuid.UUID) (*types.Conversation, error) {
	if botID == uuid.Nil || id == uuid.Nil {
		return nil, nil
	}
	var c types.Conversation
	err := dbc.DB(r.db).Where("id = ? AND bot_id = ?", id, botID).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *conversationRepo) ListByBot(dbc dbctx.Context, botID uuid.UUID, limit, offset int) ([]*types.Conversation, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	var total int64
	if err := dbc.DB(r.db).
		Model(&types.Conversation{}).
		Where("bot_id = ?", botID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []*types.Conversation
	err := dbc.DB(r.db).
		Where("bot_id = ?", botID).
		Order("last_message_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&out).Error
	return out, total, err
}

// Touch bumps message_count by added and moves last_message_at forward.
func (r *conversationRepo) Touch(dbc dbctx.Context, id uuid.UUID, added int, at time.Time) error {
	if id == uuid.Nil {
		return nil
	}
	return dbc.DB(r.db).
		Model(&types.Conversation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"message_count":   gorm.Expr("message_count + ?", added),
			"last_message_at": at,
			"updated_at":      at,
		}).Error
}

func (r *conversationRepo) SetTitle(dbc dbctx.Context, id uuid.UUID, title string) error {
	return dbc.DB(r.db).
		Model(&types.Conversation{}).
		Where("id = ? AND (title IS NULL OR title = '')", id).
		Update("title", title).Error
}

func (r *conversationRepo) SoftDelete(dbc dbctx.Context, id uuid.UUID) error {
	return dbc.DB(r.db).Where("id = ?", id).Delete(&types.Conversation{}).Error
}
