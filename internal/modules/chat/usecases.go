package chat

import (
	"context"

	"gorm.io/gorm"

	"github.com/yungbote/sitechat-backend/internal/data/repos"
	"github.com/yungbote/sitechat-backend/internal/platform/envutil"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
	"github.com/yungbote/sitechat-backend/internal/platform/openai"
	"github.com/yungbote/sitechat-backend/internal/platform/pinecone"
	"github.com/yungbote/sitechat-backend/internal/services"
)

// Options tunes retrieval and prompt assembly.
type Options struct {
	TopK         int
	MinScore     float64
	ContextChars int
	HistoryTurns int
	MaxTokens    int
	DefaultModel string
}

func OptionsFromEnv() Options {
	return Options{
		TopK:         envutil.Int("CHAT_TOP_K", 5),
		MinScore:     envutil.Float("CHAT_MIN_SCORE", 0.25),
		ContextChars: envutil.Int("CHAT_CONTEXT_CHARS", 6000),
		HistoryTurns: envutil.Int("CHAT_HISTORY_MESSAGES", 10),
		MaxTokens:    envutil.Int("CHAT_MAX_TOKENS", 700),
		DefaultModel: envutil.String("OPENAI_MODEL", ""),
	}
}

func (o Options) normalized() Options {
	if o.TopK <= 0 {
		o.TopK = 5
	}
	if o.TopK > 20 {
		o.TopK = 20
	}
	if o.MinScore < 0 {
		o.MinScore = 0
	}
	if o.ContextChars <= 0 {
		o.ContextChars = 6000
	}
	if o.HistoryTurns < 0 {
		o.HistoryTurns = 0
	}
	return o
}

type UsecasesDeps struct {
	DB  *gorm.DB
	Log *logger.Logger

	AI  openai.Client
	Vec pinecone.VectorStore

	Bots          repos.BotRepo
	Workspaces    repos.WorkspaceRepo
	Conversations repos.ConversationRepo
	Messages      repos.MessageRepo

	Billing   services.BillingService
	Analytics services.AnalyticsService

	Options Options
}

type Usecases struct {
	deps UsecasesDeps
}

func New(deps UsecasesDeps) Usecases {
	deps.Options = deps.Options.normalized()
	return Usecases{deps: deps}
}

func (u Usecases) WithLog(log *logger.Logger) Usecases {
	u.deps.Log = log
	return u
}

// Prepare validates the request, stores the visitor message and retrieves
// context. Streaming the answer is left to Turn.Stream.
func (u Usecases) Prepare(ctx context.Context, in ReplyInput) (*Turn, error) {
	return Prepare(ctx, u.deps, in)
}

// Reply runs Prepare and streams the answer to onDelta.
func (u Usecases) Reply(ctx context.Context, in ReplyInput, onDelta func(delta string) error) (*ReplyOutput, error) {
	turn, err := Prepare(ctx, u.deps, in)
	if err != nil {
		return nil, err
	}
	return turn.Stream(ctx, onDelta)
}
