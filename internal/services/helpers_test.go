package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/careloop/careteam/internal/models"
	"github.com/careloop/careteam/pkg/crypto"
)

func openServicesTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Team{},
		&models.TeamMember{},
		&models.Invitation{},
		&models.DirectShare{},
		&models.AuditLog{},
	))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}

func newTestUser(t *testing.T, db *gorm.DB, role models.Role, email string) *models.User {
	t.Helper()

	hashed, err := crypto.HashPassword("p@ssW0rd!")
	require.NoError(t, err)

	user := models.User{
		Email:    email,
		Password: hashed,
		Role:     role,
	}
	require.NoError(t, db.Create(&user).Error)
	return &user
}

func newTestServices(t *testing.T, db *gorm.DB) (*TeamService, *InvitationService, *DirectShareService, *MembershipService) {
	t.Helper()

	auditSvc, err := NewAuditService(db)
	require.NoError(t, err)

	invitationSvc, err := NewInvitationService(db, auditSvc, nil)
	require.NoError(t, err)

	teamSvc, err := NewTeamService(db, auditSvc, invitationSvc)
	require.NoError(t, err)

	shareSvc, err := NewDirectShareService(db, auditSvc, invitationSvc)
	require.NoError(t, err)

	membershipSvc, err := NewMembershipService(db, teamSvc, invitationSvc, shareSvc, auditSvc)
	require.NoError(t, err)

	return teamSvc, invitationSvc, shareSvc, membershipSvc
}

func newTestTeam(t *testing.T, teamSvc *TeamService, creator *models.User, name string) *models.Team {
	t.Helper()

	team, err := teamSvc.Create(context.Background(), creator, CreateTeamInput{
		Name:  name,
		Phone: "+33 1 23 45 67 89",
		Address: models.Address{
			Line1:   "12 rue de la Sante",
			Zip:     "75013",
			City:    "Paris",
			Country: "FR",
		},
	})
	require.NoError(t, err)
	return team
}
