package domain

import (
	"github.com/yungbote/sitechat-backend/internal/domain/analytics"
	"github.com/yungbote/sitechat-backend/internal/domain/auth"
	"github.com/yungbote/sitechat-backend/internal/domain/bot"
	"github.com/yungbote/sitechat-backend/internal/domain/chat"
	"github.com/yungbote/sitechat-backend/internal/domain/content"
	"github.com/yungbote/sitechat-backend/internal/domain/jobs"
	"github.com/yungbote/sitechat-backend/internal/domain/workspace"
)

type (
	Workspace       = workspace.Workspace
	WorkspaceMember = workspace.WorkspaceMember
	Bot             = bot.Bot
	BotTheme        = bot.Theme
	Conversation    = chat.Conversation
	Message         = chat.Message
	MessageSource   = chat.Source
	ScrapedPage     = content.ScrapedPage
	PageHeading     = content.Heading
	Embedding       = content.Embedding
	APIKey          = auth.APIKey
	AnalyticsEvent  = analytics.AnalyticsEvent
	DailyCount      = analytics.DailyCount
	JobRun          = jobs.JobRun
)

var JobStatuses = jobs.Statuses

// Models lists every table owned by the schema, in migration order.
func Models() []any {
	return []any{
		&Workspace{},
		&WorkspaceMember{},
		&Bot{},
		&ScrapedPage{},
		&Embedding{},
		&Conversation{},
		&Message{},
		&APIKey{},
		&AnalyticsEvent{},
		&JobRun{},
	}
}
