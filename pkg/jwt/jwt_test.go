package jwt

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret = "test-secret-key-for-testing-purposes"
	testIssuer = "summitcamp-auth"
)

func TestNewService(t *testing.T) {
	service := NewService(testSecret, testIssuer, time.Hour)

	assert.NotNil(t, service)
	assert.Equal(t, testSecret, service.secret)
	assert.Equal(t, testIssuer, service.issuer)
	assert.Equal(t, time.Hour, service.expiry)
}

func TestGenerateToken(t *testing.T) {
	service := NewService(testSecret, testIssuer, time.Hour)
	userID := uuid.New()
	email := "climber@example.com"
	roles := []string{"user"}

	token, err := service.GenerateToken(userID, email, roles)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	// Validate the generated token
	claims, err := service.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, email, claims.Email)
	assert.Equal(t, roles, claims.Roles)
	assert.Equal(t, testIssuer, claims.Issuer)
	assert.Equal(t, userID.String(), claims.Subject)
}

func TestValidateToken(t *testing.T) {
	service := NewService(testSecret, testIssuer, time.Hour)
	userID := uuid.New()

	token, err := service.GenerateToken(userID, "climber@example.com", []string{"user"})
	require.NoError(t, err)

	// Test valid token
	claims, err := service.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)

	// Test invalid token
	_, err = service.ValidateToken("invalid.token.here")
	assert.Error(t, err)

	// Test token with wrong secret
	wrongService := NewService("wrong-secret", testIssuer, time.Hour)
	_, err = wrongService.ValidateToken(token)
	assert.Error(t, err)

	// Test token from another issuer
	otherIssuer := NewService(testSecret, "someone-else", time.Hour)
	foreignToken, err := otherIssuer.GenerateToken(userID, "climber@example.com", nil)
	require.NoError(t, err)
	_, err = service.ValidateToken(foreignToken)
	assert.Error(t, err)
}

func TestValidateExpiredToken(t *testing.T) {
	service := NewService(testSecret, testIssuer, -time.Minute)
	userID := uuid.New()

	token, err := service.GenerateToken(userID, "climber@example.com", []string{"user"})
	require.NoError(t, err)

	_, err = service.ValidateToken(token)
	assert.Error(t, err)
	assert.True(t, service.IsTokenExpired(token))
}

func TestIsTokenExpired(t *testing.T) {
	service := NewService(testSecret, testIssuer, time.Hour)
	userID := uuid.New()

	token, err := service.GenerateToken(userID, "climber@example.com", nil)
	require.NoError(t, err)

	assert.False(t, service.IsTokenExpired(token))
	assert.True(t, service.IsTokenExpired("not-a-token"))
}

func TestExtractClaims(t *testing.T) {
	service := NewService(testSecret, testIssuer, time.Hour)
	userID := uuid.New()

	token, err := service.GenerateToken(userID, "climber@example.com", []string{"user"})
	require.NoError(t, err)

	// Extraction works without validation, even with the wrong secret
	otherService := NewService("different-secret", testIssuer, time.Hour)
	claims, err := otherService.ExtractClaims(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)

	_, err = service.ExtractClaims("garbage")
	assert.Error(t, err)
}
