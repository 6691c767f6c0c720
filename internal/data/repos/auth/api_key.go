package auth

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

type APIKeyRepo interface {
	Create(dbc dbctx.Context, k *types.APIKey) error
	GetByHash(dbc dbctx.Context, hash string) (*types.APIKey, error)
	ListByWorkspace(dbc dbctx.Context, workspaceID uuid.UUID) ([]*types.APIKey, error)
	Revoke(dbc dbctx.Context, workspaceID, id uuid.UUID, at time.Time) (bool, error)
	TouchLastUsed(dbc dbctx.Context, id uuid.UUID, at time.Time) error
}

type apiKeyRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAPIKeyRepo(db *gorm.DB, baseLog *logger.Logger) APIKeyRepo {
	return &apiKeyRepo{db: db, log: baseLog.With("repo", "APIKeyRepo")}
}

func (r *apiKeyRepo) Create(dbc dbctx.Context, k *types.APIKey) error {
	if k == nil || k.KeyHash == "" {
		return fmt.Errorf("api key hash required")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).Create(k).Error
}

// GetByHash returns the key regardless of revocation; callers check Revoked.
// Keys of a deleted workspace are not found.
func (r *apiKeyRepo) GetByHash(dbc dbctx.Context, hash string) (*types.APIKey, error) {
	if hash == "" {
		return nil, nil
	}
	var k types.APIKey
	err := dbc.DB(r.db).
		Where("key_hash = ?", hash).
		Where("workspace_id IN (SELECT id FROM workspace WHERE deleted_at IS NULL)").
		First(&k).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &k, nil
}

func (r *apiKeyRepo) ListByWorkspace(dbc dbctx.Context, workspaceID uuid.UUID) ([]*types.APIKey, error) {
	var out []*types.APIKey
	err := dbc.DB(r.db).
		Where("workspace_id = ?", workspaceID).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

func (r *apiKeyRepo) Revoke(dbc dbctx.Context, workspaceID, id uuid.UUID, at time.Time) (bool, error) {
	res := dbc.DB(r.db).
		Model(&types.APIKey{}).
		Where("id = ? AND workspace_id = ? AND revoked_at IS NULL", id, workspaceID).
		Updates(map[string]interface{}{"revoked_at": at, "updated_at": at})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *apiKeyRepo) TouchLastUsed(dbc dbctx.Context, id uuid.UUID, at time.Time) error {
	return dbc.DB(r.db).
		Model(&types.APIKey{}).
		Where("id = ?", id).
		UpdateColumn("last_used_at", at).Error
}
