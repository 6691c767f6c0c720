package workspace

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Workspace is the tenant boundary: it owns bots, members, keys and billing.
type Workspace struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Name        string    `gorm:"column:name;not null" json:"name"`
	Slug        string    `gorm:"column:slug;not null;uniqueIndex" json:"slug"`
	OwnerUserID uuid.UUID `gorm:"type:uuid;column:owner_user_id;not null;index" json:"owner_user_id"`

	Plan                 string     `gorm:"column:plan;not null;default:'free'" json:"plan"`
	StripeCustomerID     string     `gorm:"column:stripe_customer_id;index" json:"-"`
	StripeSubscriptionID string     `gorm:"column:stripe_subscription_id;index" json:"-"`
	SubscriptionStatus   string     `gorm:"column:subscription_status" json:"subscription_status,omitempty"`
	CurrentPeriodEnd     *time.Time `gorm:"column:current_period_end" json:"current_period_end,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Workspace) TableName() string { return "workspace" }

type WorkspaceMember struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	WorkspaceID uuid.UUID `gorm:"type:uuid;column:workspace_id;not null;uniqueIndex:idx_workspace_member" json:"workspace_id"`
	UserID      uuid.UUID `gorm:"type:uuid;column:user_id;not null;uniqueIndex:idx_workspace_member;index" json:"user_id"`
	Role        string    `gorm:"column:role;not null;default:'member'" json:"role"`
	Email       string    `gorm:"column:email" json:"email,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (WorkspaceMember) TableName() string { return "workspace_member" }

// RoleRank orders roles so that a higher rank includes the lower ones.
func RoleRank(role string) int {
	switch role {
	case RoleOwner:
		return 3
	case RoleAdmin:
		return 2
	case RoleMember:
		return 1
	default:
		return 0
	}
}
