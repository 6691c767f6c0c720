package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/sitechat-backend/internal/data/repos/analytics"
	"github.com/yungbote/sitechat-backend/internal/data/repos/auth"
	"github.com/yungbote/sitechat-backend/internal/data/repos/bot"
	"github.com/yungbote/sitechat-backend/internal/data/repos/chat"
	"github.com/yungbote/sitechat-backend/internal/data/repos/content"
	"github.com/yungbote/sitechat-backend/internal/data/repos/jobs"
	"github.com/yungbote/sitechat-backend/internal/data/repos/workspace"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
)

type (
	WorkspaceRepo    = workspace.WorkspaceRepo
	MemberRepo       = workspace.MemberRepo
	BotRepo          = bot.BotRepo
	PageRepo         = content.PageRepo
	EmbeddingRepo    = content.EmbeddingRepo
	ConversationRepo = chat.ConversationRepo
	MessageRepo      = chat.MessageRepo
	APIKeyRepo       = auth.APIKeyRepo
	EventRepo        = analytics.EventRepo
	JobRunRepo       = jobs.JobRunRepo
)

// Set bundles every repository over one connection pool.
type Set struct {
	Workspaces    WorkspaceRepo
	Members       MemberRepo
	Bots          BotRepo
	Pages         PageRepo
	Embeddings    EmbeddingRepo
	Conversations ConversationRepo
	Messages      MessageRepo
	APIKeys       APIKeyRepo
	Events        EventRepo
	JobRuns       JobRunRepo
}

func NewSet(db *gorm.DB, log *logger.Logger) *Set {
	return &Set{
		Workspaces:    workspace.NewWorkspaceRepo(db, log),
		Members:       workspace.NewMemberRepo(db, log),
		Bots:          bot.NewBotRepo(db, log),
		Pages:         content.NewPageRepo(db, log),
		Embeddings:    content.NewEmbeddingRepo(db, log),
		Conversations: chat.NewConversationRepo(db, log),
		Messages:      chat.NewMessageRepo(db, log),
		APIKeys:       auth.NewAPIKeyRepo(db, log),
		Events:        analytics.NewEventRepo(db, log),
		JobRuns:       jobs.NewJobRunRepo(db, log),
	}
}
