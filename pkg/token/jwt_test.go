package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndVerifyToken(t *testing.T) {
	manager := NewJWTManager("test-secret", 2, 7)

	tokenString, err := manager.GenerateToken(42, "alice", "USER")
	require.NoError(t, err)
	require.NotEmpty(t, tokenString)

	claims, err := manager.VerifyToken(tokenString)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "USER", claims.Role)
	assert.True(t, claims.ExpiresAt.After(time.Now()))
}

func TestVerifyTokenWrongSecret(t *testing.T) {
	manager := NewJWTManager("secret-a", 2, 7)
	other := NewJWTManager("secret-b", 2, 7)

	tokenString, err := manager.GenerateToken(1, "bob", "USER")
	require.NoError(t, err)

	_, err = other.VerifyToken(tokenString)
	assert.Error(t, err)
}

func TestVerifyTokenGarbage(t *testing.T) {
	manager := NewJWTManager("test-secret", 2, 7)
	_, err := manager.VerifyToken("not-a-jwt")
	assert.Error(t, err)
}

func TestRefreshTokenLongerLived(t *testing.T) {
	manager := NewJWTManager("test-secret", 1, 7)

	access, err := manager.GenerateToken(1, "carol", "USER")
	require.NoError(t, err)
	refresh, err := manager.GenerateRefreshToken(1, "carol", "USER")
	require.NoError(t, err)

	accessClaims, err := manager.VerifyToken(access)
	require.NoError(t, err)
	refreshClaims, err := manager.VerifyToken(refresh)
	require.NoError(t, err)

	assert.True(t, refreshClaims.ExpiresAt.After(accessClaims.ExpiresAt.Time))
}

func TestGenerateRandomString(t *testing.T) {
	a := GenerateRandomString(16)
	b := GenerateRandomString(16)
	assert.Len(t, a, 32) // 16 字节的十六进制编码
	assert.NotEqual(t, a, b)
}
