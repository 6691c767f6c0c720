package bot

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

type BotRepo interface {
	Create(dbc dbctx.Context, b *types.Bot) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Bot, error)
	GetInWorkspace(dbc dbctx.Context, workspaceID, id uuid.UUID) (*types.Bot, error)
	ListByWorkspace(dbc dbctx.Context, workspaceID uuid.UUID) ([]*types.Bot, error)
	CountByWorkspace(dbc dbctx.Context, workspaceID uuid.UUID) (int64, error)
	ListScheduled(dbc dbctx.Context) ([]*types.Bot, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	SoftDelete(dbc dbctx.Context, id uuid.UUID) error
}

type botRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBotRepo(db *gorm.DB, baseLog *logger.Logger) BotRepo {
	return &botRepo{db: db, log: baseLog.With("repo", "BotRepo")}
}

// liveWorkspace hides rows whose workspace was soft-deleted.
const liveWorkspace = "workspace_id IN (SELECT id FROM workspace WHERE deleted_at IS NULL)"

func (r *botRepo) Create(dbc dbctx.Context, b *types.Bot) error {
	if b == nil || b.WorkspaceID == uuid.Nil {
		return fmt.Errorf("bot with workspace_id required")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).Create(b).Error
}

func (r *botRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Bot, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var b types.Bot
	err := txx.WithContext(dbc.Ctx).Where(liveWorkspace).Where("id = ?", id).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// GetInWorkspace scopes the lookup to a tenant so a caller can never read
// another workspace's bot by guessing ids.
func (r *botRepo) GetInWorkspace(dbc dbctx.Context, workspaceID, id uuid.UUID) (*types.Bot, error) {
	if workspaceID == uuid.Nil || id == uuid.Nil {
		return nil, nil
	}
	var b types.Bot
	err := dbc.DB(r.db).
		Where("id = ? AND workspace_id = ?", id, workspaceID).
		First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *botRepo) ListByWorkspace(dbc dbctx.Context, workspaceID uuid.UUID) ([]*types.Bot, error) {
	var out []*types.Bot
	err := dbc.DB(r.db).
		Where("workspace_id = ?", workspaceID).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

func (r *botRepo) CountByWorkspace(dbc dbctx.Context, workspaceID uuid.UUID) (int64, error) {
	var n int64
	err := dbc.DB(r.db).
		Model(&types.Bot{}).
		Where("workspace_id = ?", workspaceID).
		Count(&n).Error
	return n, err
}

// ListScheduled returns bots with a retrain schedule set in live workspaces.
func (r *botRepo) ListScheduled(dbc dbctx.Context) ([]*types.Bot, error) {
	var out []*types.Bot
	err := dbc.DB(r.db).
		Where(liveWorkspace).
		Where("retrain_schedule IS NOT NULL AND retrain_schedule <> ''").
		Find(&out).Error
	return out, err
}

func (r *botRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing bot id")
	}
	if len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Model(&types.Bot{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *botRepo) SoftDelete(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return nil
	}
	return dbc.DB(r.db).Where("id = ?", id).Delete(&types.Bot{}).Error
}
