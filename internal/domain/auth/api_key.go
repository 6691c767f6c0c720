package auth

import (
	"time"

	"github.com/google/uuid"
)

// APIKey grants programmatic access to a workspace's bots. Only the digest
// of the secret is stored.
type APIKey struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	WorkspaceID uuid.UUID  `gorm:"type:uuid;column:workspace_id;not null;index" json:"workspace_id"`
	Name        string     `gorm:"column:name;not null" json:"name"`
	KeyPrefix   string     `gorm:"column:key_prefix;not null" json:"key_prefix"`
	KeyHash     string     `gorm:"column:key_hash;not null;uniqueIndex" json:"-"`
	CreatedBy   uuid.UUID  `gorm:"type:uuid;column:created_by" json:"created_by"`
	LastUsedAt  *time.Time `gorm:"column:last_used_at" json:"last_used_at,omitempty"`
	RevokedAt   *time.Time `gorm:"column:revoked_at;index" json:"revoked_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (APIKey) TableName() string { return "api_key" }

func (k *APIKey) Revoked() bool { return k.RevokedAt != nil }
