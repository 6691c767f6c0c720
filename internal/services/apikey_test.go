package services

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/sitechat-backend/internal/platform/apikey"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
)

func TestAPIKeyCreateAndAuthenticate(t *testing.T) {
	f := newFixture(t)
	repo := newMemAPIKeys()
	svc := NewAPIKeyService(logger.Nop(), repo, f.access)

	_, err := svc.Create(asUser(f.member), f.ws.ID, "ci")
	requireAPIErr(t, err, http.StatusForbidden, "forbidden")

	created, err := svc.Create(asUser(f.admin), f.ws.ID, " ci ")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(created.Key, apikey.Prefix))
	assert.Len(t, created.Key, len(apikey.Prefix)+apikey.BodyLength)
	assert.Equal(t, created.Key[:apikey.DisplayChars], created.KeyPrefix)
	assert.Equal(t, apikey.Hash(created.Key), created.KeyHash)
	assert.Equal(t, "ci", created.Name)
	assert.Equal(t, f.admin, created.CreatedBy)

	key, err := svc.Authenticate(context.Background(), "  "+created.Key+"\n")
	require.NoError(t, err)
	assert.Equal(t, created.ID, key.ID)
	assert.Equal(t, f.ws.ID, key.WorkspaceID)

	select {
	case id := <-repo.touched:
		assert.Equal(t, created.ID, id)
	case <-time.After(2 * time.Second):
		t.Fatal("last_used_at was not touched")
	}
}

func TestAPIKeyAuthenticateRejects(t *testing.T) {
	f := newFixture(t)
	repo := newMemAPIKeys()
	svc := NewAPIKeyService(logger.Nop(), repo, f.access)

	created, err := svc.Create(asUser(f.owner), f.ws.ID, "prod")
	require.NoError(t, err)

	unknown, err := apikey.Generate()
	require.NoError(t, err)

	for name, raw := range map[string]string{
		"empty":      "",
		"malformed":  "sk_test_abc",
		"bad body":   apikey.Prefix + strings.Repeat("!", apikey.BodyLength),
		"unknown":    unknown.Plaintext,
		"wrong case": strings.ToUpper(created.Key[:3]) + created.Key[3:],
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Authenticate(context.Background(), raw)
			requireAPIErr(t, err, http.StatusUnauthorized, "unauthorized")
		})
	}

	require.NoError(t, svc.Revoke(asUser(f.owner), f.ws.ID, created.ID))
	_, err = svc.Authenticate(context.Background(), created.Key)
	requireAPIErr(t, err, http.StatusUnauthorized, "unauthorized")
}

func TestAPIKeyRevoke(t *testing.T) {
	f := newFixture(t)
	repo := newMemAPIKeys()
	svc := NewAPIKeyService(logger.Nop(), repo, f.access)

	created, err := svc.Create(asUser(f.owner), f.ws.ID, "prod")
	require.NoError(t, err)

	err = svc.Revoke(asUser(f.member), f.ws.ID, created.ID)
	requireAPIErr(t, err, http.StatusForbidden, "forbidden")

	err = svc.Revoke(asUser(f.admin), f.ws.ID, uuid.New())
	requireAPIErr(t, err, http.StatusNotFound, "not_found")

	require.NoError(t, svc.Revoke(asUser(f.admin), f.ws.ID, created.ID))
	err = svc.Revoke(asUser(f.admin), f.ws.ID, created.ID)
	requireAPIErr(t, err, http.StatusNotFound, "not_found")

	keys, err := svc.List(asUser(f.member), f.ws.ID)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.True(t, keys[0].Revoked())
}
