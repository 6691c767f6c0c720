package services

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode"

	"github.com/google/uuid"
	nanoid "github.com/matoous/go-nanoid/v2"
	"gorm.io/gorm"

	"github.com/yungbote/sitechat-backend/internal/data/repos"
	types "github.com/yungbote/sitechat-backend/internal/domain"
	"github.com/yungbote/sitechat-backend/internal/domain/workspace"
	"github.com/yungbote/sitechat-backend/internal/platform/apierr"
	"github.com/yungbote/sitechat-backend/internal/platform/ctxutil"
	"github.com/yungbote/sitechat-backend/internal/platform/dbctx"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
	"github.com/yungbote/sitechat-backend/internal/platform/plans"
)

const slugAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

type WorkspaceService interface {
	Create(dbc dbctx.Context, name string) (*types.Workspace, error)
	ListMine(dbc dbctx.Context) ([]*types.Workspace, error)
	Get(dbc dbctx.Context, id uuid.UUID) (*types.Workspace, error)
	Rename(dbc dbctx.Context, id uuid.UUID, name string) (*types.Workspace, error)
	Delete(dbc dbctx.Context, id uuid.UUID) error

	ListMembers(dbc dbctx.Context, id uuid.UUID) ([]*types.WorkspaceMember, error)
	AddMember(dbc dbctx.Context, id uuid.UUID, userID uuid.UUID, email, role string) (*types.WorkspaceMember, error)
	RemoveMember(dbc dbctx.Context, id uuid.UUID, userID uuid.UUID) error

	// Authorize loads the workspace and checks the request user holds at
	// least minRole in it.
	Authorize(dbc dbctx.Context, id uuid.UUID, minRole string) (*types.Workspace, *types.WorkspaceMember, error)
	Plan(ws *types.Workspace) plans.Plan
}

type workspaceService struct {
	db      *gorm.DB
	log     *logger.Logger
	repo    repos.WorkspaceRepo
	members repos.MemberRepo
	plans   *plans.Catalog
}

func NewWorkspaceService(db *gorm.DB, baseLog *logger.Logger, repo repos.WorkspaceRepo, members repos.MemberRepo, catalog *plans.Catalog) WorkspaceService {
	return &workspaceService{
		db:      db,
		log:     baseLog.With("service", "WorkspaceService"),
		repo:    repo,
		members: members,
		plans:   catalog,
	}
}

func requireUser(dbc dbctx.Context) (*ctxutil.RequestData, error) {
	rd := ctxutil.GetRequestData(dbc.Ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, apierr.New(http.StatusUnauthorized, "unauthorized", errors.New("not signed in"))
	}
	return rd, nil
}

func validName(name string, max int) (string, error) {
	name = strings.TrimSpace(name)
	if n := len([]rune(name)); n == 0 || n > max {
		return "", apierr.Newf(http.StatusBadRequest, "invalid_request", "name must be 1-%d characters", max)
	}
	return name, nil
}

func (s *workspaceService) Create(dbc dbctx.Context, name string) (*types.Workspace, error) {
	rd, err := requireUser(dbc)
	if err != nil {
		return nil, err
	}
	if name, err = validName(name, 80); err != nil {
		return nil, err
	}
	slug, err := s.uniqueSlug(dbc, name)
	if err != nil {
		return nil, err
	}

	ws := &types.Workspace{
		ID:          uuid.New(),
		Name:        name,
		Slug:        slug,
		OwnerUserID: rd.UserID,
		Plan:        plans.Free,
	}
	err = dbc.DB(s.db).Transaction(func(tx *gorm.DB) error {
		inner := dbctx.Context{Ctx: dbc.Ctx, Tx: tx}
		if err := s.repo.Create(inner, ws); err != nil {
			return err
		}
		return s.members.Upsert(inner, &types.WorkspaceMember{
			WorkspaceID: ws.ID,
			UserID:      rd.UserID,
			Role:        workspace.RoleOwner,
			Email:       rd.Email,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	s.log.Info("workspace created", "workspace_id", ws.ID, "user_id", rd.UserID)
	return ws, nil
}

func (s *workspaceService) uniqueSlug(dbc dbctx.Context, name string) (string, error) {
	base := Slugify(name)
	if base == "" {
		base = "workspace"
	}
	candidate := base
	for i := 0; i < 5; i++ {
		exists, err := s.repo.SlugExists(dbc, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		suffix, err := nanoid.Generate(slugAlphabet, 6)
		if err != nil {
			return "", err
		}
		candidate = base + "-" + suffix
	}
	return "", apierr.Conflict("slug_taken", "could not allocate a unique slug")
}

// Slugify lower-cases s and joins its alphanumeric runs with "-".
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if r < 128 && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if b.Len() > 0 && !dash {
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimRight(b.String(), "-")
	if len(out) > 40 {
		out = strings.TrimRight(out[:40], "-")
	}
	return out
}

func (s *workspaceService) ListMine(dbc dbctx.Context) ([]*types.Workspace, error) {
	rd, err := requireUser(dbc)
	if err != nil {
		return nil, err
	}
	return s.repo.ListForUser(dbc, rd.UserID)
}

func (s *workspaceService) Get(dbc dbctx.Context, id uuid.UUID) (*types.Workspace, error) {
	ws, _, err := s.Authorize(dbc, id, workspace.RoleMember)
	return ws, err
}

func (s *workspaceService) Rename(dbc dbctx.Context, id uuid.UUID, name string) (*types.Workspace, error) {
	ws, _, err := s.Authorize(dbc, id, workspace.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if name, err = validName(name, 80); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateFields(dbc, ws.ID, map[string]interface{}{"name": name}); err != nil {
		return nil, err
	}
	ws.Name = name
	return ws, nil
}

func (s *workspaceService) Delete(dbc dbctx.Context, id uuid.UUID) error {
	ws, _, err := s.Authorize(dbc, id, workspace.RoleOwner)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(dbc, ws.ID); err != nil {
		return err
	}
	s.log.Info("workspace deleted", "workspace_id", ws.ID)
	return nil
}

func (s *workspaceService) ListMembers(dbc dbctx.Context, id uuid.UUID) ([]*types.WorkspaceMember, error) {
	if _, _, err := s.Authorize(dbc, id, workspace.RoleMember); err != nil {
		return nil, err
	}
	return s.members.List(dbc, id)
}

func (s *workspaceService) AddMember(dbc dbctx.Context, id uuid.UUID, userID uuid.UUID, email, role string) (*types.WorkspaceMember, error) {
	ws, _, err := s.Authorize(dbc, id, workspace.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if userID == uuid.Nil {
		return nil, apierr.BadRequest("invalid_request", errors.New("user_id required"))
	}
	if role == "" {
		role = workspace.RoleMember
	}
	if role != workspace.RoleMember && role != workspace.RoleAdmin {
		return nil, apierr.BadRequest("invalid_request", errors.New("role must be member or admin"))
	}
	if userID == ws.OwnerUserID {
		return nil, apierr.Conflict("conflict", "owner role cannot be changed")
	}
	m := &types.WorkspaceMember{WorkspaceID: ws.ID, UserID: userID, Role: role, Email: strings.TrimSpace(email)}
	if err := s.members.Upsert(dbc, m); err != nil {
		return nil, err
	}
	return s.members.Get(dbc, ws.ID, userID)
}

func (s *workspaceService) RemoveMember(dbc dbctx.Context, id uuid.UUID, userID uuid.UUID) error {
	ws, _, err := s.Authorize(dbc, id, workspace.RoleAdmin)
	if err != nil {
		return err
	}
	if userID == ws.OwnerUserID {
		return apierr.Conflict("conflict", "the owner cannot be removed")
	}
	removed, err := s.members.Remove(dbc, ws.ID, userID)
	if err != nil {
		return err
	}
	if !removed {
		return apierr.NotFound("member")
	}
	return nil
}

func (s *workspaceService) Authorize(dbc dbctx.Context, id uuid.UUID, minRole string) (*types.Workspace, *types.WorkspaceMember, error) {
	rd, err := requireUser(dbc)
	if err != nil {
		return nil, nil, err
	}
	ws, err := s.repo.GetByID(dbc, id)
	if err != nil {
		return nil, nil, err
	}
	if ws == nil {
		return nil, nil, apierr.NotFound("workspace")
	}
	m, err := s.members.Get(dbc, id, rd.UserID)
	if err != nil {
		return nil, nil, err
	}
	if m == nil {
		return nil, nil, apierr.Forbidden("not a member of this workspace")
	}
	if workspace.RoleRank(m.Role) < workspace.RoleRank(minRole) {
		return nil, nil, apierr.Forbidden(minRole + " role required")
	}
	return ws, m, nil
}

func (s *workspaceService) Plan(ws *types.Workspace) plans.Plan {
	if ws == nil {
		return s.plans.Get(plans.Free)
	}
	return s.plans.Get(ws.Plan)
}
