package analytics

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	EventConversationStarted = "conversation_started"
	EventMessageSent         = "message_sent"
	EventWidgetLoaded        = "widget_loaded"
	EventBotTrained          = "bot_trained"
	EventRateLimited         = "rate_limited"
)

type AnalyticsEvent struct {
	ID             uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	WorkspaceID    uuid.UUID      `gorm:"type:uuid;column:workspace_id;not null;index" json:"workspace_id"`
	BotID          *uuid.UUID     `gorm:"type:uuid;column:bot_id;index:idx_analytics_bot_created" json:"bot_id,omitempty"`
	ConversationID *uuid.UUID     `gorm:"type:uuid;column:conversation_id" json:"conversation_id,omitempty"`
	EventType      string         `gorm:"column:event_type;not null;index" json:"event_type"`
	Properties     datatypes.JSON `gorm:"column:properties;type:jsonb" json:"properties,omitempty"`
	CreatedAt      time.Time      `gorm:"not null;default:now();index:idx_analytics_bot_created" json:"created_at"`
}

func (AnalyticsEvent) TableName() string { return "analytics_event" }

// DailyCount is one (day, event type) bucket of a summary.
type DailyCount struct {
	Day       time.Time `json:"day"`
	EventType string    `json:"event_type"`
	Count     int64     `json:"count"`
}
