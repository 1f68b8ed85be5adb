package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/careloop/careteam/internal/models"
	apperrors "github.com/careloop/careteam/pkg/errors"
)

func TestUserRegisterAndAuthenticate(t *testing.T) {
	db := openServicesTestDB(t)

	auditSvc, err := NewAuditService(db)
	require.NoError(t, err)
	userSvc, err := NewUserService(db, auditSvc)
	require.NoError(t, err)

	ctx := context.Background()

	user, err := userSvc.Register(ctx, RegisterUserInput{
		Email:    "Reg-User@Example.com",
		Password: "s3cretPass!",
		Role:     models.RolePatient,
	})
	require.NoError(t, err)
	require.Equal(t, "reg-user@example.com", user.Email)
	require.NotEqual(t, "s3cretPass!", user.Password)

	authed, err := userSvc.Authenticate(ctx, "reg-user@example.com", "s3cretPass!")
	require.NoError(t, err)
	require.Equal(t, user.ID, authed.ID)

	_, err = userSvc.Authenticate(ctx, "reg-user@example.com", "wrong")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	_, err = userSvc.Authenticate(ctx, "nobody@example.com", "whatever")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestUserRegisterRejectsDuplicateEmail(t *testing.T) {
	db := openServicesTestDB(t)

	auditSvc, err := NewAuditService(db)
	require.NoError(t, err)
	userSvc, err := NewUserService(db, auditSvc)
	require.NoError(t, err)

	ctx := context.Background()

	input := RegisterUserInput{
		Email:    "dup-user@example.com",
		Password: "s3cretPass!",
		Role:     models.RoleCaregiver,
	}

	_, err = userSvc.Register(ctx, input)
	require.NoError(t, err)

	_, err = userSvc.Register(ctx, input)
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestUserRegisterValidatesInput(t *testing.T) {
	db := openServicesTestDB(t)

	userSvc, err := NewUserService(db, nil)
	require.NoError(t, err)

	ctx := context.Background()

	_, err = userSvc.Register(ctx, RegisterUserInput{Password: "s3cretPass!", Role: models.RolePatient})
	require.Error(t, err)

	_, err = userSvc.Register(ctx, RegisterUserInput{Email: "short@example.com", Password: "short", Role: models.RolePatient})
	require.Error(t, err)

	_, err = userSvc.Register(ctx, RegisterUserInput{Email: "role@example.com", Password: "s3cretPass!", Role: "robot"})
	require.Error(t, err)
}
