package issuetracker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/sitechat-backend/internal/platform/logger"
)

func TestNewValidatesRepo(t *testing.T) {
	for _, repo := range []string{"", "acme", "/x", "acme/", "a/b/c"} {
		_, err := New(logger.Nop(), "tok", repo, "")
		assert.Error(t, err, repo)
	}
}

func TestNewFromEnvDisabledWithoutToken(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "")
	tr, err := NewFromEnv(logger.Nop())
	require.NoError(t, err)
	assert.Nil(t, tr)
}

func TestCreateAndList(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/support/issues", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodPost:
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "Widget broken", body["title"])
			assert.ElementsMatch(t, []any{"user-report", "workspace:w1"}, body["labels"])
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"number":7,"title":"Widget broken","state":"open","html_url":"https://github.com/acme/support/issues/7",
				"created_at":"2026-01-02T03:04:05Z","labels":[{"name":"user-report"},{"name":"workspace:w1"}]}`))
		case http.MethodGet:
			assert.Equal(t, "closed", r.URL.Query().Get("state"))
			assert.Equal(t, "user-report,workspace:w1", r.URL.Query().Get("labels"))
			_, _ = w.Write([]byte(`[
				{"number":7,"title":"Widget broken","state":"closed"},
				{"number":8,"title":"A PR","state":"closed","pull_request":{"url":"x"}}
			]`))
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	tr, err := New(logger.Nop(), "tok", "acme/support", srv.URL)
	require.NoError(t, err)

	is, err := tr.Create(context.Background(), CreateInput{
		Title:  "Widget broken",
		Body:   "Steps...",
		Labels: []string{ReportLabel, "workspace:w1"},
	})
	require.NoError(t, err)
	assert.Equal(t, 7, is.Number)
	assert.Equal(t, []string{"user-report", "workspace:w1"}, is.Labels)
	assert.Equal(t, 2026, is.CreatedAt.Year())

	list, err := tr.List(context.Background(), "closed", []string{ReportLabel, "workspace:w1"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 7, list[0].Number)
}
