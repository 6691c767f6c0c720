package bot

import (
	"testing"
	"time"

	"gorm.io/datatypes"
)

func TestAllowsOrigin(t *testing.T) {
	b := &Bot{}
	if !b.AllowsOrigin("anything.example") {
		t.Fatalf("empty allow-list should admit all hosts")
	}

	b.AllowedDomains = datatypes.JSONSlice[string]{"example.com"}
	cases := map[string]bool{
		"example.com":      true,
		"www.example.com":  true,
		"badexample.com":   false,
		"example.com.evil": false,
		"":                 false,
	}
	for host, want := range cases {
		if got := b.AllowsOrigin(host); got != want {
			t.Fatalf("host %q: got %v want %v", host, got, want)
		}
	}
}

func TestServing(t *testing.T) {
	trained := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		status  string
		trained *time.Time
		want    bool
	}{
		{StatusReady, &trained, true},
		{StatusReady, nil, true},
		{StatusTraining, &trained, true},
		{StatusFailed, &trained, true},
		{StatusTraining, nil, false},
		{StatusFailed, nil, false},
		{StatusDraft, nil, false},
	}
	for _, c := range cases {
		b := &Bot{Status: c.status, LastTrainedAt: c.trained}
		if got := b.Serving(); got != c.want {
			t.Fatalf("status=%s trained=%v: got %v want %v", c.status, c.trained != nil, got, c.want)
		}
	}
}
