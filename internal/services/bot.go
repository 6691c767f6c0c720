package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/sitechat-backend/internal/data/repos"
	types "github.com/yungbote/sitechat-backend/internal/domain"
	"github.com/yungbote/sitechat-backend/internal/domain/bot"
	"github.com/yungbote/sitechat-backend/internal/domain/workspace"
	"github.com/yungbote/sitechat-backend/internal/modules/ingestion"
	"github.com/yungbote/sitechat-backend/internal/platform/apierr"
	"github.com/yungbote/sitechat-backend/internal/platform/avatar"
	"github.com/yungbote/sitechat-backend/internal/platform/dbctx"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
	"github.com/yungbote/sitechat-backend/internal/platform/objectstore"
	"github.com/yungbote/sitechat-backend/internal/platform/pinecone"
	"github.com/yungbote/sitechat-backend/internal/platform/redisx"
	"github.com/yungbote/sitechat-backend/internal/platform/scraper"
)

const widgetConfigTTL = 60 * time.Second

// BotInput is used for create and partial update. Nil fields are left alone.
type BotInput struct {
	Name            *string    `json:"name"`
	Description     *string    `json:"description"`
	SystemPrompt    *string    `json:"system_prompt"`
	Model           *string    `json:"model"`
	Temperature     *float64   `json:"temperature"`
	WelcomeMessage  *string    `json:"welcome_message"`
	Theme           *bot.Theme `json:"theme"`
	AllowedDomains  *[]string  `json:"allowed_domains"`
	SourceURLs      *[]string  `json:"source_urls"`
	MaxPages        *int       `json:"max_pages"`
	RetrainSchedule *string    `json:"retrain_schedule"`
}

type TrainInput struct {
	URLs     []string `json:"urls"`
	MaxPages int      `json:"max_pages"`
}

// WidgetConfig is the public, unauthenticated view of a bot.
type WidgetConfig struct {
	ID             uuid.UUID `json:"id"`
	WorkspaceID    uuid.UUID `json:"-"`
	Name           string    `json:"name"`
	WelcomeMessage string    `json:"welcome_message,omitempty"`
	Theme          bot.Theme `json:"theme"`
	AvatarURL      string    `json:"avatar_url,omitempty"`
}

type Page[T any] struct {
	Items  []T   `json:"items"`
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

type Transcript struct {
	Conversation *types.Conversation `json:"conversation"`
	Messages     []*types.Message    `json:"messages"`
}

type BotService interface {
	Create(dbc dbctx.Context, workspaceID uuid.UUID, in BotInput) (*types.Bot, error)
	List(dbc dbctx.Context, workspaceID uuid.UUID) ([]*types.Bot, error)
	Get(dbc dbctx.Context, workspaceID, botID uuid.UUID) (*types.Bot, error)
	Update(dbc dbctx.Context, workspaceID, botID uuid.UUID, in BotInput) (*types.Bot, error)
	Delete(dbc dbctx.Context, workspaceID, botID uuid.UUID) error
	SetAvatar(dbc dbctx.Context, workspaceID, botID uuid.UUID, raw []byte) (*types.Bot, error)
	Train(dbc dbctx.Context, workspaceID, botID uuid.UUID, in TrainInput) (*types.JobRun, error)

	ListPages(dbc dbctx.Context, workspaceID, botID uuid.UUID, limit, offset int) (*Page[*types.ScrapedPage], error)
	ListConversations(dbc dbctx.Context, workspaceID, botID uuid.UUID, limit, offset int) (*Page[*types.Conversation], error)
	GetTranscript(dbc dbctx.Context, workspaceID, botID, conversationID uuid.UUID) (*Transcript, error)

	// WorkspaceOf resolves the owning workspace for routes addressed by bot
	// id alone. It does not authorize.
	WorkspaceOf(dbc dbctx.Context, botID uuid.UUID) (uuid.UUID, error)
	WidgetConfig(ctx context.Context, botID uuid.UUID) (*WidgetConfig, error)
	// PublicBot loads a bot for unauthenticated widget traffic.
	PublicBot(ctx context.Context, botID uuid.UUID) (*types.Bot, error)
}

type botService struct {
	db            *gorm.DB
	log           *logger.Logger
	bots          repos.BotRepo
	pages         repos.PageRepo
	conversations repos.ConversationRepo
	messages      repos.MessageRepo
	access        WorkspaceService
	billing       BillingService
	jobs          JobService
	vectors       pinecone.VectorStore
	store         objectstore.Store
	avatars       *avatar.Renderer
	cache         *redisx.JSONCache
	defaultModel  string
}

type BotServiceDeps struct {
	DB            *gorm.DB
	Log           *logger.Logger
	Bots          repos.BotRepo
	Pages         repos.PageRepo
	Conversations repos.ConversationRepo
	Messages      repos.MessageRepo
	Access        WorkspaceService
	Billing       BillingService
	Jobs          JobService
	Vectors       pinecone.VectorStore
	Store         objectstore.Store
	Avatars       *avatar.Renderer
	Cache         *redisx.JSONCache
	DefaultModel  string
}

func NewBotService(d BotServiceDeps) BotService {
	return &botService{
		db:            d.DB,
		log:           d.Log.With("service", "BotService"),
		bots:          d.Bots,
		pages:         d.Pages,
		conversations: d.Conversations,
		messages:      d.Messages,
		access:        d.Access,
		billing:       d.Billing,
		jobs:          d.Jobs,
		vectors:       d.Vectors,
		store:         d.Store,
		avatars:       d.Avatars,
		cache:         d.Cache,
		defaultModel:  d.DefaultModel,
	}
}

func (s *botService) load(dbc dbctx.Context, workspaceID, botID uuid.UUID, minRole string) (*types.Workspace, *types.Bot, error) {
	ws, _, err := s.access.Authorize(dbc, workspaceID, minRole)
	if err != nil {
		return nil, nil, err
	}
	b, err := s.bots.GetInWorkspace(dbc, workspaceID, botID)
	if err != nil {
		return nil, nil, err
	}
	if b == nil {
		return nil, nil, apierr.NotFound("bot")
	}
	return ws, b, nil
}

func (s *botService) Create(dbc dbctx.Context, workspaceID uuid.UUID, in BotInput) (*types.Bot, error) {
	ws, _, err := s.access.Authorize(dbc, workspaceID, workspace.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if in.Name == nil {
		return nil, apierr.BadRequest("invalid_request", errors.New("name required"))
	}
	if err := s.billing.CheckBotLimit(dbc, ws); err != nil {
		return nil, err
	}
	b := &types.Bot{
		ID:          uuid.New(),
		WorkspaceID: ws.ID,
		Model:       s.defaultModel,
		Temperature: 0.3,
		MaxPages:    25,
		Status:      bot.StatusDraft,
	}
	if err := applyBotInput(b, in, s.billing.MaxPagesPerBot(ws)); err != nil {
		return nil, err
	}
	if err := s.bots.Create(dbc, b); err != nil {
		return nil, err
	}
	s.log.Info("bot created", "bot_id", b.ID, "workspace_id", ws.ID)

	if err := s.generateAvatar(dbc.Ctx, b); err != nil {
		s.log.Warn("default avatar skipped", "bot_id", b.ID, "error", err)
	} else if b.AvatarKey != "" {
		if err := s.bots.UpdateFields(dbc, b.ID, map[string]interface{}{"avatar_url": b.AvatarURL, "avatar_key": b.AvatarKey}); err != nil {
			s.log.Warn("saving avatar url failed", "bot_id", b.ID, "error", err)
		}
	}
	return b, nil
}

func (s *botService) List(dbc dbctx.Context, workspaceID uuid.UUID) ([]*types.Bot, error) {
	if _, _, err := s.access.Authorize(dbc, workspaceID, workspace.RoleMember); err != nil {
		return nil, err
	}
	return s.bots.ListByWorkspace(dbc, workspaceID)
}

func (s *botService) Get(dbc dbctx.Context, workspaceID, botID uuid.UUID) (*types.Bot, error) {
	_, b, err := s.load(dbc, workspaceID, botID, workspace.RoleMember)
	return b, err
}

func (s *botService) Update(dbc dbctx.Context, workspaceID, botID uuid.UUID, in BotInput) (*types.Bot, error) {
	ws, b, err := s.load(dbc, workspaceID, botID, workspace.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if err := applyBotInput(b, in, s.billing.MaxPagesPerBot(ws)); err != nil {
		return nil, err
	}
	updates := map[string]interface{}{
		"name":             b.Name,
		"description":      b.Description,
		"system_prompt":    b.SystemPrompt,
		"model":            b.Model,
		"temperature":      b.Temperature,
		"welcome_message":  b.WelcomeMessage,
		"theme":            b.Theme,
		"allowed_domains":  b.AllowedDomains,
		"source_urls":      b.SourceURLs,
		"max_pages":        b.MaxPages,
		"retrain_schedule": b.RetrainSchedule,
	}
	if err := s.bots.UpdateFields(dbc, b.ID, updates); err != nil {
		return nil, err
	}
	s.cache.Delete(dbc.Ctx, b.ID.String())
	return b, nil
}

func (s *botService) Delete(dbc dbctx.Context, workspaceID, botID uuid.UUID) error {
	_, b, err := s.load(dbc, workspaceID, botID, workspace.RoleAdmin)
	if err != nil {
		return err
	}
	if s.vectors != nil {
		if err := s.vectors.DeleteNamespace(dbc.Ctx, b.Namespace()); err != nil {
			s.log.Warn("vector namespace delete failed (ignored)", "bot_id", b.ID, "error", err)
		}
	}
	if s.store != nil {
		if b.AvatarKey != "" {
			if err := s.store.Delete(dbc.Ctx, objectstore.CategoryAvatar, b.AvatarKey); err != nil && !errors.Is(err, objectstore.ErrNotFound) {
				s.log.Warn("avatar delete failed (ignored)", "bot_id", b.ID, "error", err)
			}
		}
		if err := s.store.DeletePrefix(dbc.Ctx, objectstore.CategorySnapshot, ingestion.SnapshotPrefix(b.ID)); err != nil {
			s.log.Warn("snapshot delete failed (ignored)", "bot_id", b.ID, "error", err)
		}
	}
	if err := s.bots.SoftDelete(dbc, b.ID); err != nil {
		return err
	}
	s.cache.Delete(dbc.Ctx, b.ID.String())
	s.log.Info("bot deleted", "bot_id", b.ID)
	return nil
}

func (s *botService) SetAvatar(dbc dbctx.Context, workspaceID, botID uuid.UUID, raw []byte) (*types.Bot, error) {
	_, b, err := s.load(dbc, workspaceID, botID, workspace.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if s.store == nil {
		return nil, apierr.New(http.StatusServiceUnavailable, "integration_disabled", errors.New("object storage is not configured"))
	}
	png, err := avatar.ProcessUpload(raw)
	if err != nil {
		return nil, apierr.BadRequest("invalid_image", err)
	}
	if err := s.uploadAvatar(dbc.Ctx, b, png); err != nil {
		return nil, err
	}
	if err := s.bots.UpdateFields(dbc, b.ID, map[string]interface{}{"avatar_url": b.AvatarURL, "avatar_key": b.AvatarKey}); err != nil {
		return nil, err
	}
	s.cache.Delete(dbc.Ctx, b.ID.String())
	return b, nil
}

func (s *botService) generateAvatar(ctx context.Context, b *types.Bot) error {
	if s.store == nil || s.avatars == nil {
		return nil
	}
	bg := s.avatars.ColorFor(b.ID.String(), b.Theme.Data().PrimaryColor)
	png, err := s.avatars.Render(b.Name, bg)
	if err != nil {
		return err
	}
	return s.uploadAvatar(ctx, b, png)
}

func (s *botService) uploadAvatar(ctx context.Context, b *types.Bot, png []byte) error {
	oldKey := b.AvatarKey
	// Versioned key so CDNs never serve a stale image.
	key := fmt.Sprintf("bot_avatar/%s/%d.png", b.ID, time.Now().UnixNano())
	if err := s.store.Put(ctx, objectstore.CategoryAvatar, key, bytes.NewReader(png)); err != nil {
		return fmt.Errorf("upload avatar: %w", err)
	}
	b.AvatarKey = key
	b.AvatarURL = s.store.PublicURL(objectstore.CategoryAvatar, key)
	if oldKey != "" && oldKey != key {
		if err := s.store.Delete(ctx, objectstore.CategoryAvatar, oldKey); err != nil {
			s.log.Warn("old avatar delete failed (ignored)", "key", oldKey, "error", err)
		}
	}
	return nil
}

func (s *botService) Train(dbc dbctx.Context, workspaceID, botID uuid.UUID, in TrainInput) (*types.JobRun, error) {
	ws, b, err := s.load(dbc, workspaceID, botID, workspace.RoleAdmin)
	if err != nil {
		return nil, err
	}
	urls := in.URLs
	if len(urls) == 0 {
		urls = b.SourceURLs
	}
	clean, err := normalizeSourceURLs(urls)
	if err != nil {
		return nil, err
	}
	if len(clean) == 0 {
		return nil, apierr.BadRequest("invalid_request", errors.New("no source urls to train on"))
	}
	maxPages := ingestion.EffectiveMaxPages(in.MaxPages, b.MaxPages, s.billing.MaxPagesPerBot(ws))

	var requestedBy *uuid.UUID
	if rd, _ := requireUser(dbc); rd != nil {
		uid := rd.UserID
		requestedBy = &uid
	}
	return s.jobs.EnqueueUnique(dbc, ws.ID, requestedBy, JobTypeBotTrain, EntityTypeBot, b.ID, map[string]any{
		"bot_id":    b.ID.String(),
		"urls":      clean,
		"max_pages": maxPages,
	})
}

func clampPage(limit, offset, def, max int) (int, int) {
	if limit <= 0 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (s *botService) ListPages(dbc dbctx.Context, workspaceID, botID uuid.UUID, limit, offset int) (*Page[*types.ScrapedPage], error) {
	_, b, err := s.load(dbc, workspaceID, botID, workspace.RoleMember)
	if err != nil {
		return nil, err
	}
	limit, offset = clampPage(limit, offset, 50, 200)
	rows, total, err := s.pages.ListByBot(dbc, b.ID, limit, offset)
	if err != nil {
		return nil, err
	}
	return &Page[*types.ScrapedPage]{Items: rows, Total: total, Limit: limit, Offset: offset}, nil
}

func (s *botService) ListConversations(dbc dbctx.Context, workspaceID, botID uuid.UUID, limit, offset int) (*Page[*types.Conversation], error) {
	_, b, err := s.load(dbc, workspaceID, botID, workspace.RoleMember)
	if err != nil {
		return nil, err
	}
	limit, offset = clampPage(limit, offset, 50, 200)
	rows, total, err := s.conversations.ListByBot(dbc, b.ID, limit, offset)
	if err != nil {
		return nil, err
	}
	return &Page[*types.Conversation]{Items: rows, Total: total, Limit: limit, Offset: offset}, nil
}

func (s *botService) GetTranscript(dbc dbctx.Context, workspaceID, botID, conversationID uuid.UUID) (*Transcript, error) {
	_, b, err := s.load(dbc, workspaceID, botID, workspace.RoleMember)
	if err != nil {
		return nil, err
	}
	conv, err := s.conversations.GetForBot(dbc, b.ID, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, apierr.NotFound("conversation")
	}
	msgs, err := s.messages.ListByConversation(dbc, conv.ID, 500)
	if err != nil {
		return nil, err
	}
	return &Transcript{Conversation: conv, Messages: msgs}, nil
}

func (s *botService) WorkspaceOf(dbc dbctx.Context, botID uuid.UUID) (uuid.UUID, error) {
	b, err := s.bots.GetByID(dbc, botID)
	if err != nil {
		return uuid.Nil, err
	}
	if b == nil {
		return uuid.Nil, apierr.NotFound("bot")
	}
	return b.WorkspaceID, nil
}

func (s *botService) PublicBot(ctx context.Context, botID uuid.UUID) (*types.Bot, error) {
	b, err := s.bots.GetByID(dbctx.Of(ctx), botID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, apierr.NotFound("bot")
	}
	return b, nil
}

// widgetConfigEntry is the cached form; WorkspaceID is kept out of the
// public JSON but must survive the cache.
type widgetConfigEntry struct {
	Config      WidgetConfig `json:"config"`
	WorkspaceID uuid.UUID    `json:"workspace_id"`
}

func (s *botService) WidgetConfig(ctx context.Context, botID uuid.UUID) (*WidgetConfig, error) {
	var cached widgetConfigEntry
	if s.cache.Get(ctx, botID.String(), &cached) {
		cfg := cached.Config
		cfg.WorkspaceID = cached.WorkspaceID
		return &cfg, nil
	}
	b, err := s.bots.GetByID(dbctx.Of(ctx), botID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, apierr.NotFound("bot")
	}
	cfg := &WidgetConfig{
		ID:             b.ID,
		WorkspaceID:    b.WorkspaceID,
		Name:           b.Name,
		WelcomeMessage: b.WelcomeMessage,
		Theme:          b.Theme.Data(),
		AvatarURL:      b.AvatarURL,
	}
	s.cache.Set(ctx, botID.String(), widgetConfigEntry{Config: *cfg, WorkspaceID: b.WorkspaceID}, widgetConfigTTL)
	return cfg, nil
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func applyBotInput(b *types.Bot, in BotInput, maxPagesLimit int) error {
	bad := func(format string, args ...any) error {
		return apierr.Newf(http.StatusBadRequest, "invalid_request", format, args...)
	}
	if in.Name != nil {
		name, err := validName(*in.Name, 80)
		if err != nil {
			return err
		}
		b.Name = name
	}
	if in.Description != nil {
		b.Description = strings.TrimSpace(*in.Description)
	}
	if in.SystemPrompt != nil {
		if len([]rune(*in.SystemPrompt)) > 4000 {
			return bad("system_prompt must be at most 4000 characters")
		}
		b.SystemPrompt = strings.TrimSpace(*in.SystemPrompt)
	}
	if in.Model != nil && strings.TrimSpace(*in.Model) != "" {
		b.Model = strings.TrimSpace(*in.Model)
	}
	if in.Temperature != nil {
		if *in.Temperature < 0 || *in.Temperature > 2 {
			return bad("temperature must be between 0 and 2")
		}
		b.Temperature = *in.Temperature
	}
	if in.WelcomeMessage != nil {
		b.WelcomeMessage = strings.TrimSpace(*in.WelcomeMessage)
	}
	if in.Theme != nil {
		t := *in.Theme
		if t.PrimaryColor != "" {
			c, err := avatar.ParseHex(t.PrimaryColor)
			if err != nil {
				return bad("theme.primary_color must be a hex color")
			}
			t.PrimaryColor = avatar.ToHex(c)
		}
		switch t.Position {
		case "", "right", "left":
		default:
			return bad("theme.position must be left or right")
		}
		b.Theme = datatypes.NewJSONType(t)
	}
	if in.AllowedDomains != nil {
		domains, err := normalizeDomains(*in.AllowedDomains)
		if err != nil {
			return err
		}
		b.AllowedDomains = datatypes.JSONSlice[string](domains)
	}
	if in.SourceURLs != nil {
		urls, err := normalizeSourceURLs(*in.SourceURLs)
		if err != nil {
			return err
		}
		b.SourceURLs = datatypes.JSONSlice[string](urls)
	}
	if in.MaxPages != nil {
		if *in.MaxPages < 1 || (maxPagesLimit > 0 && *in.MaxPages > maxPagesLimit) {
			return bad("max_pages must be between 1 and %d", maxPagesLimit)
		}
		b.MaxPages = *in.MaxPages
	}
	if in.RetrainSchedule != nil {
		spec := strings.TrimSpace(*in.RetrainSchedule)
		if spec != "" {
			if _, err := cronParser.Parse(spec); err != nil {
				return bad("retrain_schedule: %v", err)
			}
		}
		b.RetrainSchedule = spec
	}
	return nil
}

// normalizeDomains reduces entries to lower-case hostnames. "*" is kept.
func normalizeDomains(in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, raw := range in {
		raw = strings.ToLower(strings.TrimSpace(raw))
		if raw == "" {
			continue
		}
		host := raw
		if raw != "*" {
			if !strings.Contains(raw, "://") {
				raw = "https://" + raw
			}
			u, err := url.Parse(raw)
			if err != nil || u.Hostname() == "" {
				return nil, apierr.Newf(http.StatusBadRequest, "invalid_request", "invalid domain %q", host)
			}
			host = u.Hostname()
		}
		if !seen[host] {
			seen[host] = true
			out = append(out, host)
		}
	}
	return out, nil
}

func normalizeSourceURLs(in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, raw := range in {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		u, err := scraper.ValidateURL(raw)
		if err != nil {
			return nil, apierr.BadRequest("invalid_request", err)
		}
		s := u.String()
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	if len(out) > 20 {
		return nil, apierr.Newf(http.StatusBadRequest, "invalid_request", "at most 20 source urls")
	}
	return out, nil
}
