package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyonhq/halcyon/internal/model"
)

func TestTokenRoundTrip(t *testing.T) {
	mgr, err := NewJWTManager("", "", time.Hour)
	require.NoError(t, err)

	user := model.User{ID: uuid.New(), Email: "dev@example.com"}
	token, expiresAt, err := mgr.IssueToken(user)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

	claims, err := mgr.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, user.Email, claims.Email)
	assert.Equal(t, "halcyon", claims.Issuer)
}

func TestValidateToken_WrongKey(t *testing.T) {
	mgrA, err := NewJWTManager("", "", time.Hour)
	require.NoError(t, err)
	mgrB, err := NewJWTManager("", "", time.Hour)
	require.NoError(t, err)

	token, _, err := mgrA.IssueToken(model.User{ID: uuid.New(), Email: "dev@example.com"})
	require.NoError(t, err)

	_, err = mgrB.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateToken_Expired(t *testing.T) {
	mgr, err := NewJWTManager("", "", -time.Minute)
	require.NoError(t, err)

	token, _, err := mgr.IssueToken(model.User{ID: uuid.New(), Email: "dev@example.com"})
	require.NoError(t, err)

	_, err = mgr.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateToken_Garbage(t *testing.T) {
	mgr, err := NewJWTManager("", "", time.Hour)
	require.NoError(t, err)

	_, err = mgr.ValidateToken("not.a.jwt")
	assert.Error(t, err)
}

func TestAPIKeyHashing(t *testing.T) {
	hash, err := HashAPIKey("secret-key")
	require.NoError(t, err)
	assert.NotContains(t, hash, "secret-key")

	ok, err := VerifyAPIKey("secret-key", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyAPIKey("wrong-key", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyAPIKey_MalformedHash(t *testing.T) {
	_, err := VerifyAPIKey("anything", "no-separator")
	assert.Error(t, err)
}
