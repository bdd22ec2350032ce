package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndVerify(t *testing.T) {
	m := NewJWTManager("secret", 1, 7)

	access, err := m.GenerateToken(42, "guest-1", "guest")
	require.NoError(t, err)
	claims, err := m.VerifyToken(access)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "guest", claims.UserType)
	assert.False(t, claims.Refresh)

	refresh, err := m.GenerateRefreshToken(42, "guest-1", "guest")
	require.NoError(t, err)
	claims, err = m.VerifyToken(refresh)
	require.NoError(t, err)
	assert.True(t, claims.Refresh)
}

func TestVerifyRejectsForeignAndExpired(t *testing.T) {
	other := NewJWTManager("other", 1, 1)
	tok, err := other.GenerateToken(1, "u", "regular")
	require.NoError(t, err)

	_, err = NewJWTManager("secret", 1, 1).VerifyToken(tok)
	assert.Error(t, err)

	expired := NewJWTManager("secret", -1, 1)
	tok, err = expired.GenerateToken(1, "u", "regular")
	require.NoError(t, err)
	_, err = expired.VerifyToken(tok)
	assert.Error(t, err)
}

func TestGenerateRandomString(t *testing.T) {
	s := GenerateRandomString(4)
	assert.Len(t, s, 8)
	assert.NotEqual(t, s, GenerateRandomString(4))
}
