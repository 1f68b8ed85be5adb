package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/careloop/careteam/internal/models"
)

func TestJWTServiceRoundTrip(t *testing.T) {
	svc, err := NewJWTService(JWTConfig{Secret: "unit-secret", Issuer: "careteam"})
	require.NoError(t, err)

	token, err := svc.GenerateAccessToken("user-123", models.RoleProfessional)
	require.NoError(t, err)

	claims, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)
	require.Equal(t, "user-123", claims.UserID)
	require.Equal(t, models.RoleProfessional, claims.Role)
	require.Equal(t, "careteam", claims.Issuer)
}

func TestJWTServiceRejectsExpiredToken(t *testing.T) {
	issued := time.Date(2026, time.January, 1, 12, 0, 0, 0, time.UTC)
	clock := issued

	svc, err := NewJWTService(JWTConfig{
		Secret:         "unit-secret",
		AccessTokenTTL: time.Minute,
		Clock:          func() time.Time { return clock },
	})
	require.NoError(t, err)

	token, err := svc.GenerateAccessToken("user-123", models.RolePatient)
	require.NoError(t, err)

	clock = issued.Add(2 * time.Minute)
	_, err = svc.ValidateAccessToken(token)
	require.Error(t, err)
}

func TestJWTServiceRejectsForeignSignature(t *testing.T) {
	issuer, err := NewJWTService(JWTConfig{Secret: "secret-a"})
	require.NoError(t, err)
	verifier, err := NewJWTService(JWTConfig{Secret: "secret-b"})
	require.NoError(t, err)

	token, err := issuer.GenerateAccessToken("user-123", models.RoleCaregiver)
	require.NoError(t, err)

	_, err = verifier.ValidateAccessToken(token)
	require.Error(t, err)
}

func TestJWTServiceRequiresSecret(t *testing.T) {
	_, err := NewJWTService(JWTConfig{})
	require.Error(t, err)
}
