package issuetracker

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"

	"github.com/yungbote/sitechat-backend/internal/platform/envutil"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
)

const ReportLabel = "user-report"

type Issue struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	State     string    `json:"state"`
	URL       string    `json:"url"`
	Labels    []string  `json:"labels"`
	CreatedAt time.Time `json:"created_at"`
}

type CreateInput struct {
	Title  string
	Body   string
	Labels []string
}

type Tracker interface {
	Create(ctx context.Context, in CreateInput) (*Issue, error)
	List(ctx context.Context, state string, labels []string) ([]Issue, error)
}

type githubTracker struct {
	log   *logger.Logger
	gh    *github.Client
	owner string
	repo  string
}

// NewFromEnv returns nil, nil when GITHUB_TOKEN is unset.
func NewFromEnv(log *logger.Logger) (Tracker, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	token := envutil.String("GITHUB_TOKEN", "")
	if token == "" {
		log.Warn("GITHUB_TOKEN not set; issue integration disabled")
		return nil, nil
	}
	return New(log, token, envutil.String("GITHUB_REPO", ""), envutil.String("GITHUB_API_URL", ""))
}

// New builds a tracker for repo ("owner/name"). apiURL overrides the GitHub
// API root, e.g. for Enterprise.
func New(log *logger.Logger, token, repo, apiURL string) (Tracker, error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(repo), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return nil, fmt.Errorf("GITHUB_REPO must be owner/name, got %q", repo)
	}
	gh := github.NewClient(nil).WithAuthToken(token)
	if apiURL != "" {
		if !strings.HasSuffix(apiURL, "/") {
			apiURL += "/"
		}
		u, err := url.Parse(apiURL)
		if err != nil {
			return nil, fmt.Errorf("invalid GITHUB_API_URL: %w", err)
		}
		gh.BaseURL = u
	}
	return &githubTracker{
		log:   log.With("client", "GitHubIssues", "repo", repo),
		gh:    gh,
		owner: owner,
		repo:  name,
	}, nil
}

func (t *githubTracker) Create(ctx context.Context, in CreateInput) (*Issue, error) {
	labels := append([]string{}, in.Labels...)
	req := &github.IssueRequest{
		Title:  github.String(in.Title),
		Body:   github.String(in.Body),
		Labels: &labels,
	}
	issue, _, err := t.gh.Issues.Create(ctx, t.owner, t.repo, req)
	if err != nil {
		return nil, fmt.Errorf("github create issue: %w", err)
	}
	out := toIssue(issue)
	t.log.Info("issue created", "number", out.Number)
	return &out, nil
}

func (t *githubTracker) List(ctx context.Context, state string, labels []string) ([]Issue, error) {
	switch state {
	case "open", "closed", "all":
	default:
		state = "open"
	}
	opts := &github.IssueListByRepoOptions{
		State:       state,
		Labels:      labels,
		Sort:        "created",
		Direction:   "desc",
		ListOptions: github.ListOptions{PerPage: 50},
	}
	issues, _, err := t.gh.Issues.ListByRepo(ctx, t.owner, t.repo, opts)
	if err != nil {
		return nil, fmt.Errorf("github list issues: %w", err)
	}
	out := make([]Issue, 0, len(issues))
	for _, is := range issues {
		if is == nil || is.IsPullRequest() {
			continue
		}
		out = append(out, toIssue(is))
	}
	return out, nil
}

func toIssue(is *github.Issue) Issue {
	out := Issue{
		Number:    is.GetNumber(),
		Title:     is.GetTitle(),
		State:     is.GetState(),
		URL:       is.GetHTMLURL(),
		CreatedAt: is.GetCreatedAt().Time,
	}
	for _, l := range is.Labels {
		if l != nil && l.GetName() != "" {
			out.Labels = append(out.Labels, l.GetName())
		}
	}
	return out
}
