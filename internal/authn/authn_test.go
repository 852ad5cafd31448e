package authn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testService() *Service {
	return NewService(Config{JWTSecret: "test-secret", TokenDuration: time.Hour})
}

func TestHashAndComparePassword(t *testing.T) {
	s := testService()
	hash, err := s.HashPassword("correct-horse")
	require.NoError(t, err)
	assert.NoError(t, s.ComparePassword(hash, "correct-horse"))
	assert.Error(t, s.ComparePassword(hash, "wrong-password"))
}

func TestGenerateAndValidateToken(t *testing.T) {
	s := testService()
	token, err := s.GenerateToken("alice", RoleAdmin)
	require.NoError(t, err)

	claims, err := s.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, RoleAdmin, claims.Role)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	s := testService()
	token, err := s.GenerateToken("alice", RoleViewer)
	require.NoError(t, err)

	other := NewService(Config{JWTSecret: "different-secret"})
	_, err = other.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	s := NewService(Config{JWTSecret: "test-secret", TokenDuration: -time.Minute})
	token, err := s.GenerateToken("alice", RoleViewer)
	require.NoError(t, err)

	_, err = s.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCanLockDevices(t *testing.T) {
	assert.True(t, CanLockDevices(RoleAdmin))
	assert.False(t, CanLockDevices(RoleViewer))
}
