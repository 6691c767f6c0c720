package supabase

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyRoundTrip(t *testing.T) {
	v, err := NewVerifier("secret", "https://proj.supabase.co/auth/v1")
	require.NoError(t, err)

	uid := uuid.New()
	tok, err := v.Sign(uid, "a@b.test", time.Minute)
	require.NoError(t, err)

	id, err := v.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, uid, id.UserID)
	assert.Equal(t, "a@b.test", id.Email)
}

func TestVerifyRejects(t *testing.T) {
	v, _ := NewVerifier("secret", "")
	other, _ := NewVerifier("other", "")
	uid := uuid.New()

	expired, _ := v.Sign(uid, "", -time.Hour)
	wrongKey, _ := other.Sign(uid, "", time.Minute)
	wrongAud, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   uid.String(),
		Audience:  jwt.ClaimStrings{"anon"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString([]byte("secret"))
	badSub, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "not-a-uuid",
		Audience:  jwt.ClaimStrings{Audience},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString([]byte("secret"))

	for name, tok := range map[string]string{
		"empty":     "",
		"garbage":   "a.b.c",
		"expired":   expired,
		"wrong key": wrongKey,
		"wrong aud": wrongAud,
		"bad sub":   badSub,
	} {
		_, err := v.Verify(tok)
		assert.ErrorIs(t, err, ErrInvalidToken, name)
	}
}

func TestIssuerPinned(t *testing.T) {
	signer, _ := NewVerifier("secret", "https://evil.test/auth/v1")
	v, _ := NewVerifier("secret", "https://proj.supabase.co/auth/v1")
	tok, _ := signer.Sign(uuid.New(), "", time.Minute)
	_, err := v.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewVerifierRequiresSecret(t *testing.T) {
	_, err := NewVerifier(" ", "")
	assert.Error(t, err)
}
