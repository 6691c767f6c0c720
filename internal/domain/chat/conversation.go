package chat

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	SourceWidget    = "widget"
	SourceAPI       = "api"
	SourceDashboard = "dashboard"

	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

type Conversation struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	BotID       uuid.UUID `gorm:"type:uuid;column:bot_id;not null;index" json:"bot_id"`
	WorkspaceID uuid.UUID `gorm:"type:uuid;column:workspace_id;not null;index" json:"workspace_id"`
	VisitorID   string    `gorm:"column:visitor_id;index" json:"visitor_id,omitempty"`
	Source      string    `gorm:"column:source;not null;default:'widget'" json:"source"`
	Title       string    `gorm:"column:title" json:"title,omitempty"`

	MessageCount  int            `gorm:"column:message_count;not null;default:0" json:"message_count"`
	LastMessageAt time.Time      `gorm:"column:last_message_at;not null;default:now();index" json:"last_message_at"`
	Metadata      datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Conversation) TableName() string { return "conversation" }

// Source is a retrieved page cited by an assistant message.
type Source struct {
	URL   string  `json:"url"`
	Title string  `json:"title,omitempty"`
	Score float64 `json:"score"`
}

type Message struct {
	ID             uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ConversationID uuid.UUID `gorm:"type:uuid;column:conversation_id;not null;index:idx_message_conversation_created" json:"conversation_id"`
	BotID          uuid.UUID `gorm:"type:uuid;column:bot_id;not null;index" json:"bot_id"`
	Role           string    `gorm:"column:role;not null" json:"role"`
	Content        string    `gorm:"column:content;not null" json:"content"`
	Tokens         int       `gorm:"column:tokens;not null;default:0" json:"tokens"`

	Sources datatypes.JSONSlice[Source] `gorm:"column:sources;type:jsonb" json:"sources,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now();index:idx_message_conversation_created" json:"created_at"`
}

func (Message) TableName() string { return "message" }
