package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/careloop/careteam/internal/models"
)

func TestInvitationCreateRejectsDuplicateTriple(t *testing.T) {
	db := openServicesTestDB(t)
	teamSvc, invitationSvc, _, _ := newTestServices(t, db)

	ctx := context.Background()
	pro := newTestUser(t, db, models.RoleProfessional, "dup-pro@example.com")
	team := newTestTeam(t, teamSvc, pro, "Duplicate Clinic")

	_, err := invitationSvc.Create(ctx, CreateInvitationInput{
		WireType:  models.WirePatientInvitation,
		CreatorID: pro.ID,
		Email:     "dup-patient@example.com",
		TeamID:    &team.ID,
	})
	require.NoError(t, err)

	_, err = invitationSvc.Create(ctx, CreateInvitationInput{
		WireType:  models.WirePatientInvitation,
		CreatorID: pro.ID,
		Email:     "dup-patient@example.com",
		TeamID:    &team.ID,
	})
	require.ErrorIs(t, err, ErrInvitationExists)

	// A different team makes it a different triple.
	other := newTestTeam(t, teamSvc, pro, "Duplicate Clinic Annex")
	_, err = invitationSvc.Create(ctx, CreateInvitationInput{
		WireType:  models.WirePatientInvitation,
		CreatorID: pro.ID,
		Email:     "dup-patient@example.com",
		TeamID:    &other.ID,
	})
	require.NoError(t, err)
}

func TestInvitationCreateRejectsUnknownWireKind(t *testing.T) {
	db := openServicesTestDB(t)
	_, invitationSvc, _, _ := newTestServices(t, db)

	pro := newTestUser(t, db, models.RoleProfessional, "unknown-kind@example.com")

	_, err := invitationSvc.Create(context.Background(), CreateInvitationInput{
		WireType:  models.WireDoAdminNotice,
		CreatorID: pro.ID,
		Email:     "someone@example.com",
	})
	require.ErrorIs(t, err, ErrUnknownInvitationType)
}

func TestInvitationReceivedSuppressesAdministrativeKinds(t *testing.T) {
	db := openServicesTestDB(t)
	teamSvc, invitationSvc, _, _ := newTestServices(t, db)

	ctx := context.Background()
	pro := newTestUser(t, db, models.RoleProfessional, "suppress-pro@example.com")
	patient := newTestUser(t, db, models.RolePatient, "suppress-patient@example.com")
	team := newTestTeam(t, teamSvc, pro, "Suppression Clinic")

	_, err := invitationSvc.Create(ctx, CreateInvitationInput{
		WireType:  models.WirePatientInvitation,
		CreatorID: pro.ID,
		Email:     patient.Email,
		TeamID:    &team.ID,
	})
	require.NoError(t, err)

	// Administrative notices arrive on the same channel but never surface.
	for _, kind := range []string{models.WireDoAdminNotice, models.WireRemoveMemberNotice} {
		row := models.Invitation{
			WireType:  kind,
			CreatorID: pro.ID,
			Email:     patient.Email,
			TeamID:    &team.ID,
			ExpiresAt: time.Now().Add(time.Hour),
		}
		require.NoError(t, db.Create(&row).Error)
	}

	received, err := invitationSvc.Received(ctx, patient)
	require.NoError(t, err)
	require.Len(t, received, 1)
	require.Equal(t, models.WirePatientInvitation, received[0].WireType)
}

func TestInvitationAcceptCreatesDirectShare(t *testing.T) {
	db := openServicesTestDB(t)
	_, invitationSvc, _, _ := newTestServices(t, db)

	ctx := context.Background()
	patient := newTestUser(t, db, models.RolePatient, "share-patient@example.com")
	caregiver := newTestUser(t, db, models.RoleCaregiver, "share-caregiver@example.com")

	invitation, err := invitationSvc.Create(ctx, CreateInvitationInput{
		WireType:  models.WireDirectInvitation,
		CreatorID: patient.ID,
		Email:     caregiver.Email,
	})
	require.NoError(t, err)

	require.NoError(t, invitationSvc.Accept(ctx, caregiver, invitation))

	var share models.DirectShare
	require.NoError(t, db.First(&share, "patient_id = ? AND viewer_id = ?", patient.ID, caregiver.ID).Error)
	require.Equal(t, models.ShareStatusAccepted, share.Status)

	// The ledger entry is gone: the id never re-enters the ledger.
	_, err = invitationSvc.Get(ctx, invitation.ID)
	require.ErrorIs(t, err, ErrInvitationNotFound)
}

func TestInvitationAcceptFlipsPendingMembership(t *testing.T) {
	db := openServicesTestDB(t)
	teamSvc, invitationSvc, _, _ := newTestServices(t, db)

	ctx := context.Background()
	admin := newTestUser(t, db, models.RoleProfessional, "flip-admin@example.com")
	invitee := newTestUser(t, db, models.RoleProfessional, "flip-invitee@example.com")
	team := newTestTeam(t, teamSvc, admin, "Flip Clinic")

	invitation, err := teamSvc.InviteMember(ctx, admin, team.ID, invitee.Email, models.MemberRoleMember)
	require.NoError(t, err)

	var pending models.TeamMember
	require.NoError(t, db.First(&pending, "team_id = ? AND user_id = ?", team.ID, invitee.ID).Error)
	require.Equal(t, models.MemberStatusPending, pending.Status)
	require.NotNil(t, pending.InvitationID)
	require.Equal(t, invitation.ID, *pending.InvitationID)

	require.NoError(t, invitationSvc.Accept(ctx, invitee, invitation))

	var accepted models.TeamMember
	require.NoError(t, db.First(&accepted, "team_id = ? AND user_id = ?", team.ID, invitee.ID).Error)
	require.Equal(t, models.MemberStatusAccepted, accepted.Status)
	require.Equal(t, models.MemberRoleMember, accepted.Role)
	require.Nil(t, accepted.InvitationID)
}

func TestInvitationAcceptRejectsMismatchedEmail(t *testing.T) {
	db := openServicesTestDB(t)
	_, invitationSvc, _, _ := newTestServices(t, db)

	ctx := context.Background()
	patient := newTestUser(t, db, models.RolePatient, "mismatch-patient@example.com")
	stranger := newTestUser(t, db, models.RoleCaregiver, "mismatch-stranger@example.com")

	invitation, err := invitationSvc.Create(ctx, CreateInvitationInput{
		WireType:  models.WireDirectInvitation,
		CreatorID: patient.ID,
		Email:     "someone-else@example.com",
	})
	require.NoError(t, err)

	require.ErrorIs(t, invitationSvc.Accept(ctx, stranger, invitation), ErrInvitationMismatch)
}

func TestInvitationDeclineRemovesPendingMembership(t *testing.T) {
	db := openServicesTestDB(t)
	teamSvc, invitationSvc, _, _ := newTestServices(t, db)

	ctx := context.Background()
	admin := newTestUser(t, db, models.RoleProfessional, "decline-admin@example.com")
	invitee := newTestUser(t, db, models.RoleProfessional, "decline-invitee@example.com")
	team := newTestTeam(t, teamSvc, admin, "Decline Clinic")

	invitation, err := teamSvc.InviteMember(ctx, admin, team.ID, invitee.Email, models.MemberRoleAdmin)
	require.NoError(t, err)

	require.NoError(t, invitationSvc.Decline(ctx, invitee, invitation))

	var count int64
	require.NoError(t, db.Model(&models.TeamMember{}).
		Where("team_id = ? AND user_id = ?", team.ID, invitee.ID).
		Count(&count).Error)
	require.Zero(t, count)

	_, err = invitationSvc.Get(ctx, invitation.ID)
	require.ErrorIs(t, err, ErrInvitationNotFound)
}

func TestInvitationCancelIsIdempotent(t *testing.T) {
	db := openServicesTestDB(t)
	_, invitationSvc, _, _ := newTestServices(t, db)

	ctx := context.Background()
	patient := newTestUser(t, db, models.RolePatient, "cancel-patient@example.com")

	invitation, err := invitationSvc.Create(ctx, CreateInvitationInput{
		WireType:  models.WireDirectInvitation,
		CreatorID: patient.ID,
		Email:     "cancel-target@example.com",
	})
	require.NoError(t, err)

	require.NoError(t, invitationSvc.Cancel(ctx, patient.ID, invitation.ID))
	// A second retraction of the same id still succeeds.
	require.NoError(t, invitationSvc.Cancel(ctx, patient.ID, invitation.ID))

	_, err = invitationSvc.Get(ctx, invitation.ID)
	require.ErrorIs(t, err, ErrInvitationNotFound)
}

func TestInvitationCancelRequiresOwnership(t *testing.T) {
	db := openServicesTestDB(t)
	teamSvc, invitationSvc, _, membershipSvc := newTestServices(t, db)

	ctx := context.Background()
	pro := newTestUser(t, db, models.RoleProfessional, "own-pro@example.com")
	stranger := newTestUser(t, db, models.RolePatient, "own-stranger@example.com")
	team := newTestTeam(t, teamSvc, pro, "Ownership Clinic")

	invitation, err := invitationSvc.Create(ctx, CreateInvitationInput{
		WireType:  models.WirePatientInvitation,
		CreatorID: pro.ID,
		Email:     "own-patient@example.com",
		TeamID:    &team.ID,
	})
	require.NoError(t, err)

	// An unrelated account cannot retract someone else's invitation, and
	// learns nothing beyond "not found".
	require.ErrorIs(t, invitationSvc.Cancel(ctx, stranger.ID, invitation.ID), ErrInvitationNotFound)

	fetched, err := invitationSvc.Get(ctx, invitation.ID)
	require.NoError(t, err)
	require.Equal(t, invitation.ID, fetched.ID)

	// Staff of the target team may retract it even without having created it.
	colleague := newTestUser(t, db, models.RoleProfessional, "own-colleague@example.com")
	staffInvite, err := teamSvc.InviteMember(ctx, pro, team.ID, colleague.Email, models.MemberRoleMember)
	require.NoError(t, err)
	require.NoError(t, membershipSvc.ConfirmJoin(ctx, colleague, FromInvitation(staffInvite), ""))

	require.NoError(t, invitationSvc.Cancel(ctx, colleague.ID, invitation.ID))
	_, err = invitationSvc.Get(ctx, invitation.ID)
	require.ErrorIs(t, err, ErrInvitationNotFound)
}

func TestInvitationCancelRoundTripAllowsReinvite(t *testing.T) {
	db := openServicesTestDB(t)
	teamSvc, invitationSvc, _, _ := newTestServices(t, db)

	ctx := context.Background()
	pro := newTestUser(t, db, models.RoleProfessional, "roundtrip-pro@example.com")
	team := newTestTeam(t, teamSvc, pro, "Roundtrip Clinic")

	input := CreateInvitationInput{
		WireType:  models.WirePatientInvitation,
		CreatorID: pro.ID,
		Email:     "roundtrip-patient@example.com",
		TeamID:    &team.ID,
	}

	first, err := invitationSvc.Create(ctx, input)
	require.NoError(t, err)

	require.NoError(t, invitationSvc.Cancel(ctx, pro.ID, first.ID))

	second, err := invitationSvc.Create(ctx, input)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)
}

func TestInvitationCleanupExpired(t *testing.T) {
	db := openServicesTestDB(t)

	auditSvc, err := NewAuditService(db)
	require.NoError(t, err)

	base := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	invitationSvc, err := NewInvitationService(db, auditSvc, nil,
		WithInvitationExpiry(24*time.Hour),
		WithInvitationClock(func() time.Time { return base }),
	)
	require.NoError(t, err)

	ctx := context.Background()
	patient := newTestUser(t, db, models.RolePatient, "expiry-patient@example.com")

	invitation, err := invitationSvc.Create(ctx, CreateInvitationInput{
		WireType:  models.WireDirectInvitation,
		CreatorID: patient.ID,
		Email:     "expiry-target@example.com",
	})
	require.NoError(t, err)

	purged, err := invitationSvc.CleanupExpired(ctx, base.Add(12*time.Hour))
	require.NoError(t, err)
	require.Zero(t, purged)

	purged, err = invitationSvc.CleanupExpired(ctx, base.Add(48*time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), purged)

	_, err = invitationSvc.Get(ctx, invitation.ID)
	require.ErrorIs(t, err, ErrInvitationNotFound)
}
