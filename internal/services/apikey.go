package services

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/sitechat-backend/internal/data/repos"
	types "github.com/yungbote/sitechat-backend/internal/domain"
	"github.com/yungbote/sitechat-backend/internal/domain/workspace"
	"github.com/yungbote/sitechat-backend/internal/platform/apierr"
	"github.com/yungbote/sitechat-backend/internal/platform/apikey"
	"github.com/yungbote/sitechat-backend/internal/platform/dbctx"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
)

var errInvalidAPIKey = apierr.New(http.StatusUnauthorized, "unauthorized", errors.New("invalid api key"))

// CreatedAPIKey carries the plaintext secret. It is returned exactly once.
type CreatedAPIKey struct {
	*types.APIKey
	Key string `json:"key"`
}

type APIKeyService interface {
	Create(dbc dbctx.Context, workspaceID uuid.UUID, name string) (*CreatedAPIKey, error)
	List(dbc dbctx.Context, workspaceID uuid.UUID) ([]*types.APIKey, error)
	Revoke(dbc dbctx.Context, workspaceID, keyID uuid.UUID) error
	// Authenticate resolves a raw "sk_live_..." secret to its active key.
	Authenticate(ctx context.Context, raw string) (*types.APIKey, error)
}

type apiKeyService struct {
	log        *logger.Logger
	repo       repos.APIKeyRepo
	workspaces WorkspaceService
	now        func() time.Time
}

func NewAPIKeyService(baseLog *logger.Logger, repo repos.APIKeyRepo, workspaces WorkspaceService) APIKeyService {
	return &apiKeyService{
		log:        baseLog.With("service", "APIKeyService"),
		repo:       repo,
		workspaces: workspaces,
		now:        time.Now,
	}
}

func (s *apiKeyService) Create(dbc dbctx.Context, workspaceID uuid.UUID, name string) (*CreatedAPIKey, error) {
	_, member, err := s.workspaces.Authorize(dbc, workspaceID, workspace.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if name, err = validName(name, 80); err != nil {
		return nil, err
	}
	gen, err := apikey.Generate()
	if err != nil {
		return nil, err
	}
	row := &types.APIKey{
		ID:          uuid.New(),
		WorkspaceID: workspaceID,
		Name:        name,
		KeyPrefix:   gen.Display,
		KeyHash:     gen.Hash,
		CreatedBy:   member.UserID,
	}
	if err := s.repo.Create(dbc, row); err != nil {
		return nil, err
	}
	s.log.Info("api key created", "workspace_id", workspaceID, "key_id", row.ID, "prefix", row.KeyPrefix)
	return &CreatedAPIKey{APIKey: row, Key: gen.Plaintext}, nil
}

func (s *apiKeyService) List(dbc dbctx.Context, workspaceID uuid.UUID) ([]*types.APIKey, error) {
	if _, _, err := s.workspaces.Authorize(dbc, workspaceID, workspace.RoleMember); err != nil {
		return nil, err
	}
	return s.repo.ListByWorkspace(dbc, workspaceID)
}

func (s *apiKeyService) Revoke(dbc dbctx.Context, workspaceID, keyID uuid.UUID) error {
	if _, _, err := s.workspaces.Authorize(dbc, workspaceID, workspace.RoleAdmin); err != nil {
		return err
	}
	ok, err := s.repo.Revoke(dbc, workspaceID, keyID, s.now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		return apierr.NotFound("api key")
	}
	return nil
}

func (s *apiKeyService) Authenticate(ctx context.Context, raw string) (*types.APIKey, error) {
	raw, err := apikey.Parse(raw)
	if err != nil {
		return nil, errInvalidAPIKey
	}
	key, err := s.repo.GetByHash(dbctx.Of(ctx), apikey.Hash(raw))
	if err != nil {
		return nil, err
	}
	if key == nil || key.Revoked() {
		return nil, errInvalidAPIKey
	}
	go func(id uuid.UUID, at time.Time) {
		bg, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.repo.TouchLastUsed(dbctx.Of(bg), id, at); err != nil {
			s.log.Warn("api key touch failed", "key_id", id, "error", err)
		}
	}(key.ID, s.now().UTC())
	return key, nil
}
