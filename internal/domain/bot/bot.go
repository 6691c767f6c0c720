package bot

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	StatusDraft    = "draft"
	StatusTraining = "training"
	StatusReady    = "ready"
	StatusFailed   = "failed"
)

type Theme struct {
	PrimaryColor string `json:"primary_color,omitempty"`
	Position     string `json:"position,omitempty"`
	Title        string `json:"title,omitempty"`
}

type Bot struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	WorkspaceID uuid.UUID `gorm:"type:uuid;column:workspace_id;not null;index" json:"workspace_id"`

	Name           string  `gorm:"column:name;not null" json:"name"`
	Description    string  `gorm:"column:description" json:"description,omitempty"`
	SystemPrompt   string  `gorm:"column:system_prompt" json:"system_prompt,omitempty"`
	Model          string  `gorm:"column:model" json:"model,omitempty"`
	Temperature    float64 `gorm:"column:temperature;not null;default:0.3" json:"temperature"`
	WelcomeMessage string  `gorm:"column:welcome_message" json:"welcome_message,omitempty"`

	Theme          datatypes.JSONType[Theme]   `gorm:"column:theme;type:jsonb" json:"theme"`
	AllowedDomains datatypes.JSONSlice[string] `gorm:"column:allowed_domains;type:jsonb" json:"allowed_domains"`
	SourceURLs     datatypes.JSONSlice[string] `gorm:"column:source_urls;type:jsonb" json:"source_urls"`
	MaxPages       int                         `gorm:"column:max_pages;not null;default:25" json:"max_pages"`

	Status      string `gorm:"column:status;not null;default:'draft';index" json:"status"`
	StatusError string `gorm:"column:status_error" json:"status_error,omitempty"`

	AvatarURL string `gorm:"column:avatar_url" json:"avatar_url,omitempty"`
	AvatarKey string `gorm:"column:avatar_key" json:"-"`

	RetrainSchedule string     `gorm:"column:retrain_schedule" json:"retrain_schedule,omitempty"`
	LastTrainedAt   *time.Time `gorm:"column:last_trained_at" json:"last_trained_at,omitempty"`
	PageCount       int        `gorm:"column:page_count;not null;default:0" json:"page_count"`
	ChunkCount      int        `gorm:"column:chunk_count;not null;default:0" json:"chunk_count"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Bot) TableName() string { return "bot" }

// Namespace is the bot's partition in the vector index.
func (b *Bot) Namespace() string {
	return "bot:" + b.ID.String()
}

// Serving reports whether chat can answer from the bot's index. A bot that was
// trained before keeps its vectors while a retrain runs or after one fails.
func (b *Bot) Serving() bool {
	switch b.Status {
	case StatusReady:
		return true
	case StatusTraining, StatusFailed:
		return b.LastTrainedAt != nil
	default:
		return false
	}
}

// AllowsOrigin reports whether host may embed the widget. An empty
// allow-list admits every host; entries match the host or any subdomain.
func (b *Bot) AllowsOrigin(host string) bool {
	if len(b.AllowedDomains) == 0 {
		return true
	}
	if host == "" {
		return false
	}
	for _, d := range b.AllowedDomains {
		if d == "*" || host == d {
			return true
		}
		if len(host) > len(d) && host[len(host)-len(d)-1:] == "."+d {
			return true
		}
	}
	return false
}
