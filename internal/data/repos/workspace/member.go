package workspace

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/sitechat-backend/internal/domain"
	"github.com/yungbote/sitechat-backend/internal/platform/dbctx"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
)

type MemberRepo interface {
	Upsert(dbc dbctx.Context, m *types.WorkspaceMember) error
	Get(dbc dbctx.Context, workspaceID, userID uuid.UUID) (*types.WorkspaceMember, error)
	List(dbc dbctx.Context, workspaceID uuid.UUID) ([]*types.WorkspaceMember, error)
	Remove(dbc dbctx.Context, workspaceID, userID uuid.UUID) (bool, error)
}

type memberRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMemberRepo(db *gorm.DB, baseLog *logger.Logger) MemberRepo {
	return &memberRepo{db: db, log: baseLog.With("repo", "WorkspaceMemberRepo")}
}

// Upsert adds the member or updates role/email if already present.
func (r *memberRepo) Upsert(dbc dbctx.Context, m *types.WorkspaceMember) error {
	if m == nil || m.WorkspaceID == uuid.Nil || m.UserID == uuid.Nil {
		return fmt.Errorf("workspace_id and user_id required")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "workspace_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"role", "email", "updated_at"}),
		}).
		Create(m).Error
}

func (r *memberRepo) Get(dbc dbctx.Context, workspaceID, userID uuid.UUID) (*types.WorkspaceMember, error) {
	if workspaceID == uuid.Nil || userID == uuid.Nil {
		return nil, nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var m types.WorkspaceMember
	err := txx.WithContext(dbc.Ctx).
		Where("workspace_id = ? AND user_id = ?", workspaceID, userID).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *memberRepo) List(dbc dbctx.Context, workspaceID uuid.UUID) ([]*types.WorkspaceMember, error) {
	var out []*types.WorkspaceMember
	err := dbc.DB(r.db).
		Where("workspace_id = ?", workspaceID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

func (r *memberRepo) Remove(dbc dbctx.Context, workspaceID, userID uuid.UUID) (bool, error) {
	res := dbc.DB(r.db).
		Where("workspace_id = ? AND user_id = ?", workspaceID, userID).
		Delete(&types.WorkspaceMember{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
