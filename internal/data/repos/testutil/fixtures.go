package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/sitechat-backend/internal/domain"
)

func SeedWorkspace(tb testing.TB, ctx context.Context, tx *gorm.DB, ownerID uuid.UUID) *types.Workspace {
	tb.Helper()
	ws := &types.Workspace{
		ID:          uuid.New(),
		Name:        "Acme",
		Slug:        "acme-" + uuid.NewString()[:8],
		OwnerUserID: ownerID,
		Plan:        "free",
	}
	if err := tx.WithContext(ctx).Create(ws).Error; err != nil {
		tb.Fatalf("seed workspace: %v", err)
	}
	return ws
}

func SeedBot(tb testing.TB, ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID) *types.Bot {
	tb.Helper()
	b := &types.Bot{
		ID:          uuid.New(),
		WorkspaceID: workspaceID,
		Name:        "Helper",
		Temperature: 0.3,
		MaxPages:    25,
		Status:      "draft",
	}
	if err := tx.WithContext(ctx).Create(b).Error; err != nil {
		tb.Fatalf("seed bot: %v", err)
	}
	return b
}

func SeedConversation(tb testing.TB, ctx context.Context, tx *gorm.DB, b *types.Bot) *types.Conversation {
	tb.Helper()
	c := &types.Conversation{
		ID:          uuid.New(),
		BotID:       b.ID,
		WorkspaceID: b.WorkspaceID,
		VisitorID:   "v-1",
		Source:      "widget",
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed conversation: %v", err)
	}
	return c
}
