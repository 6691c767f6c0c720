package workspace

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

type WorkspaceRepo interface {
	Create(dbc dbctx.Context, ws *types.Workspace) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Workspace, error)
	SlugExists(dbc dbctx.Context, slug string) (bool, error)
	ListForUser(dbc dbctx.Context, userID uuid.UUID) ([]*types.Workspace, error)
	GetByStripeCustomer(dbc dbctx.Context, customerID string) (*types.Workspace, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	Delete(dbc dbctx.Context, id uuid.UUID) error
}

type workspaceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewWorkspaceRepo(db *gorm.DB, baseLog *logger.Logger) WorkspaceRepo {
	return &workspaceRepo{db: db, log: baseLog.With("repo", "WorkspaceRepo")}
}

func (r *workspaceRepo) Create(dbc dbctx.Context, ws *types.Workspace) error {
	if ws == nil {
		return fmt.Errorf("workspace required")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).Create(ws).Error
}

func (r *workspaceRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Workspace, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var ws types.Workspace
	err := txx.WithContext(dbc.Ctx).Where("id = ?", id).First(&ws).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ws, nil
}

func (r *workspaceRepo) SlugExists(dbc dbctx.Context, slug string) (bool, error) {
	var count int64
	err := dbc.DB(r.db).
		Unscoped().
		Model(&types.Workspace{}).
		Where("slug = ?", slug).
		Count(&count).Error
	return count > 0, err
}

func (r *workspaceRepo) ListForUser(dbc dbctx.Context, userID uuid.UUID) ([]*types.Workspace, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("missing user_id")
	}
	var out []*types.Workspace
	err := dbc.DB(r.db).
		Model(&types.Workspace{}).
		Joins("JOIN workspace_member m ON m.workspace_id = workspace.id").
		Where("m.user_id = ?", userID).
		Order("workspace.created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *workspaceRepo) GetByStripeCustomer(dbc dbctx.Context, customerID string) (*types.Workspace, error) {
	if customerID == "" {
		return nil, nil
	}
	var ws types.Workspace
	err := dbc.DB(r.db).Where("stripe_customer_id = ?", customerID).First(&ws).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ws, nil
}

func (r *workspaceRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return dbc.DB(r.db).Model(&types.Workspace{}).Where("id = ?", id).Updates(updates).Error
}

// Delete soft-deletes the workspace together with its bots and revokes its
// API keys. Soft deletes never reach the ON DELETE CASCADE constraints, so the
// children are handled here in the same transaction.
func (r *workspaceRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return nil
	}
	now := time.Now()
	return dbc.DB(r.db).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("workspace_id = ?", id).Delete(&types.Bot{}).Error; err != nil {
			return fmt.Errorf("delete bots: %w", err)
		}
		if err := tx.Model(&types.APIKey{}).
			Where("workspace_id = ? AND revoked_at IS NULL", id).
			Updates(map[string]interface{}{"revoked_at": now, "updated_at": now}).Error; err != nil {
			return fmt.Errorf("revoke api keys: %w", err)
		}
		return tx.Where("id = ?", id).Delete(&types.Workspace{}).Error
	})
}
