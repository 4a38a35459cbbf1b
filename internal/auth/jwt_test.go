package auth

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	svc := NewJWTService("test-secret", 24)
	userID := uuid.New()

	token, err := svc.Generate(userID, "jane@example.com", "employee", "laptop-01")
	require.NoError(t, err)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "jane@example.com", claims.Email)
	assert.Equal(t, "employee", claims.Role)
	assert.Equal(t, "laptop-01", claims.DeviceID)
}

func TestJWTDeviceIDOptional(t *testing.T) {
	svc := NewJWTService("test-secret", 24)

	token, err := svc.Generate(uuid.New(), "jane@example.com", "employee", "")
	require.NoError(t, err)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Empty(t, claims.DeviceID)
}

func TestJWTWrongSecretRejected(t *testing.T) {
	token, err := NewJWTService("secret-a", 24).Generate(uuid.New(), "x@example.com", "employee", "")
	require.NoError(t, err)

	_, err = NewJWTService("secret-b", 24).Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTExpiredRejected(t *testing.T) {
	svc := NewJWTService("test-secret", -1)
	token, err := svc.Generate(uuid.New(), "x@example.com", "employee", "")
	require.NoError(t, err)

	_, err = svc.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTGarbageRejected(t *testing.T) {
	_, err := NewJWTService("test-secret", 24).Validate("not.a.jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
