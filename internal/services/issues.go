package services

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/sitechat-backend/internal/domain/workspace"
	"github.com/yungbote/sitechat-backend/internal/platform/apierr"
	"github.com/yungbote/sitechat-backend/internal/platform/ctxutil"
	"github.com/yungbote/sitechat-backend/internal/platform/dbctx"
	"github.com/yungbote/sitechat-backend/internal/platform/issuetracker"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
)

type IssueService interface {
	Create(dbc dbctx.Context, workspaceID uuid.UUID, title, body string) (*issuetracker.Issue, error)
	List(dbc dbctx.Context, workspaceID uuid.UUID, state string) ([]issuetracker.Issue, error)
}

type issueService struct {
	log     *logger.Logger
	tracker issuetracker.Tracker
	access  WorkspaceService
}

func NewIssueService(baseLog *logger.Logger, tracker issuetracker.Tracker, access WorkspaceService) IssueService {
	return &issueService{log: baseLog.With("service", "IssueService"), tracker: tracker, access: access}
}

func workspaceLabel(id uuid.UUID) string { return "workspace:" + id.String() }

func (s *issueService) disabled() error {
	return apierr.New(http.StatusServiceUnavailable, "integration_disabled", errors.New("issue reporting is not configured"))
}

func (s *issueService) Create(dbc dbctx.Context, workspaceID uuid.UUID, title, body string) (*issuetracker.Issue, error) {
	if s.tracker == nil {
		return nil, s.disabled()
	}
	ws, _, err := s.access.Authorize(dbc, workspaceID, workspace.RoleMember)
	if err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if n := len([]rune(title)); n < 3 || n > 120 {
		return nil, apierr.BadRequest("invalid_request", errors.New("title must be 3-120 characters"))
	}
	body = strings.TrimSpace(body)
	if len([]rune(body)) > 8000 {
		return nil, apierr.BadRequest("invalid_request", errors.New("body must be at most 8000 characters"))
	}
	reporter := ""
	if rd := ctxutil.GetRequestData(dbc.Ctx); rd != nil {
		reporter = rd.UserID.String()
	}
	full := fmt.Sprintf("%s\n\n---\nworkspace: %s (%s)\nreporter: %s", body, ws.Name, ws.ID, reporter)
	return s.tracker.Create(dbc.Ctx, issuetracker.CreateInput{
		Title:  title,
		Body:   full,
		Labels: []string{issuetracker.ReportLabel, workspaceLabel(ws.ID)},
	})
}

func (s *issueService) List(dbc dbctx.Context, workspaceID uuid.UUID, state string) ([]issuetracker.Issue, error) {
	if s.tracker == nil {
		return nil, s.disabled()
	}
	if _, _, err := s.access.Authorize(dbc, workspaceID, workspace.RoleMember); err != nil {
		return nil, err
	}
	return s.tracker.List(dbc.Ctx, state, []string{issuetracker.ReportLabel, workspaceLabel(workspaceID)})
}
