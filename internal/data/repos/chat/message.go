package chat

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/sitechat-backend/internal/domain"
	"github.com/yungbote/sitechat-backend/internal/platform/dbctx"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
)

type MessageRepo interface {
	Create(dbc dbctx.Context, rows []*types.Message) ([]*types.Message, error)
	ListByConversation(dbc dbctx.Context, conversationID uuid.UUID, limit int) ([]*types.Message, error)
	ListRecent(dbc dbctx.Context, conversationID uuid.UUID, n int) ([]*types.Message, error)
	CountForWorkspaceSince(dbc dbctx.Context, workspaceID uuid.UUID, since time.Time) (int64, error)
}

type messageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMessageRepo(db *gorm.DB, baseLog *logger.Logger) MessageRepo {
	return &messageRepo{db: db, log: baseLog.With("repo", "MessageRepo")}
}

func (r *messageRepo) Create(dbc dbctx.Context, rows []*types.Message) ([]*types.Message, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	for _, m := range rows {
		if m.ConversationID == uuid.Nil {
			return nil, fmt.Errorf("message missing conversation_id")
		}
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	if err := txx.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListByConversation returns messages oldest first.
func (r *messageRepo) ListByConversation(dbc dbctx.Context, conversationID uuid.UUID, limit int) ([]*types.Message, error) {
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	var out []*types.Message
	err := dbc.DB(r.db).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListRecent returns the last n messages, oldest first.
func (r *messageRepo) ListRecent(dbc dbctx.Context, conversationID uuid.UUID, n int) ([]*types.Message, error) {
	if n <= 0 {
		return nil, nil
	}
	var out []*types.Message
	err := dbc.DB(r.db).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Limit(n).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// CountForWorkspaceSince counts user messages across all bots of a
// workspace, used for the monthly quota.
func (r *messageRepo) CountForWorkspaceSince(dbc dbctx.Context, workspaceID uuid.UUID, since time.Time) (int64, error) {
	var n int64
	err := dbc.DB(r.db).
		Model(&types.Message{}).
		Joins("JOIN conversation c ON c.id = message.conversation_id").
		Where("c.workspace_id = ? AND message.role = ? AND message.created_at >= ?", workspaceID, "user", since).
		Count(&n).Error
	return n, err
}
