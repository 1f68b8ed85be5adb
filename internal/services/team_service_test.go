package services

import (
	"context"
	"errors"
	"testing"
	"unicode"

	"github.com/stretchr/testify/require"

	"github.com/careloop/careteam/internal/models"
	apperrors "github.com/careloop/careteam/pkg/errors"
	"github.com/careloop/careteam/pkg/teamcode"
)

func TestTeamCreateValidatesBeforeWriting(t *testing.T) {
	db := openServicesTestDB(t)
	teamSvc, _, _, _ := newTestServices(t, db)

	ctx := context.Background()
	pro := newTestUser(t, db, models.RoleProfessional, "validate-pro@example.com")

	cases := []CreateTeamInput{
		{Phone: "+331", Address: models.Address{Line1: "a", Zip: "b", City: "c", Country: "d"}},
		{Name: "No Address", Phone: "+331"},
		{Name: "No Phone", Address: models.Address{Line1: "a", Zip: "b", City: "c", Country: "d"}},
	}

	for _, input := range cases {
		_, err := teamSvc.Create(ctx, pro, input)
		var appErr *apperrors.AppError
		require.True(t, errors.As(err, &appErr))
		require.Equal(t, apperrors.ErrBadRequest.Code, appErr.Code)
	}

	// Validation failed before anything touched the registry.
	var count int64
	require.NoError(t, db.Model(&models.Team{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestTeamCreateAssignsCodeAndAdmin(t *testing.T) {
	db := openServicesTestDB(t)
	teamSvc, _, _, _ := newTestServices(t, db)

	pro := newTestUser(t, db, models.RoleProfessional, "create-pro@example.com")
	team := newTestTeam(t, teamSvc, pro, "Create Clinic")

	require.Len(t, team.Code, teamcode.Length)
	for _, r := range team.Code {
		require.True(t, unicode.IsDigit(r))
	}
	require.Equal(t, models.TeamTypeMedical, team.Type)

	var member models.TeamMember
	require.NoError(t, db.First(&member, "team_id = ? AND user_id = ?", team.ID, pro.ID).Error)
	require.Equal(t, models.MemberRoleAdmin, member.Role)
	require.Equal(t, models.MemberStatusAccepted, member.Status)
}

func TestTeamListAppendsPrivateTeamForProfessionals(t *testing.T) {
	db := openServicesTestDB(t)
	teamSvc, _, _, _ := newTestServices(t, db)

	ctx := context.Background()
	pro := newTestUser(t, db, models.RoleProfessional, "list-pro@example.com")
	patient := newTestUser(t, db, models.RolePatient, "list-patient@example.com")

	team := newTestTeam(t, teamSvc, pro, "List Clinic")

	teams, err := teamSvc.List(ctx, pro)
	require.NoError(t, err)
	require.Len(t, teams, 2)
	require.Equal(t, team.ID, teams[0].ID)
	require.Equal(t, models.PrivateTeamID, teams[1].ID)
	require.Equal(t, models.TeamTypePrivate, teams[1].Type)

	// Patients with no memberships see an empty list, and never the
	// synthetic private team.
	teams, err = teamSvc.List(ctx, patient)
	require.NoError(t, err)
	require.Empty(t, teams)
}

func TestTeamGetByCodeAbsenceIsNotAnError(t *testing.T) {
	db := openServicesTestDB(t)
	teamSvc, _, _, _ := newTestServices(t, db)

	ctx := context.Background()
	pro := newTestUser(t, db, models.RoleProfessional, "bycode-pro@example.com")
	team := newTestTeam(t, teamSvc, pro, "ByCode Clinic")

	found, err := teamSvc.GetByCode(ctx, team.Code)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, team.ID, found.ID)

	// Grouped display form resolves the same team.
	found, err = teamSvc.GetByCode(ctx, teamcode.Format(team.Code))
	require.NoError(t, err)
	require.NotNil(t, found)

	found, err = teamSvc.GetByCode(ctx, "000000000")
	require.NoError(t, err)
	require.Nil(t, found)

	found, err = teamSvc.GetByCode(ctx, "not-a-code")
	require.NoError(t, err)
	require.Nil(t, found)
}

func TestTeamInviteMemberConflicts(t *testing.T) {
	db := openServicesTestDB(t)
	teamSvc, _, _, _ := newTestServices(t, db)

	ctx := context.Background()
	admin := newTestUser(t, db, models.RoleProfessional, "invconf-admin@example.com")
	team := newTestTeam(t, teamSvc, admin, "Conflict Clinic")

	// The inviter is already an accepted member.
	_, err := teamSvc.InviteMember(ctx, admin, team.ID, admin.Email, models.MemberRoleMember)
	require.ErrorIs(t, err, ErrTeamMemberExists)

	_, err = teamSvc.InviteMember(ctx, admin, team.ID, "invconf-new@example.com", models.MemberRoleMember)
	require.NoError(t, err)

	_, err = teamSvc.InviteMember(ctx, admin, team.ID, "invconf-new@example.com", models.MemberRoleMember)
	require.ErrorIs(t, err, ErrMemberAlreadyInvited)

	_, err = teamSvc.InviteMember(ctx, admin, team.ID, "invconf-other@example.com", models.MemberRolePatient)
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, apperrors.ErrBadRequest.Code, appErr.Code)
}

func TestTeamChangeMemberRolePendingUpdatesInvitationFirst(t *testing.T) {
	db := openServicesTestDB(t)
	teamSvc, invitationSvc, _, _ := newTestServices(t, db)

	ctx := context.Background()
	admin := newTestUser(t, db, models.RoleProfessional, "role-admin@example.com")
	invitee := newTestUser(t, db, models.RoleProfessional, "role-invitee@example.com")
	team := newTestTeam(t, teamSvc, admin, "Role Clinic")

	invitation, err := teamSvc.InviteMember(ctx, admin, team.ID, invitee.Email, models.MemberRoleMember)
	require.NoError(t, err)

	require.NoError(t, teamSvc.ChangeMemberRole(ctx, admin, team.ID, invitee.ID, models.MemberRoleAdmin))

	// Both the recorded invitation and the membership carry the new role, so
	// a later acceptance grants admin rights.
	stored, err := invitationSvc.Get(ctx, invitation.ID)
	require.NoError(t, err)
	require.Equal(t, models.MemberRoleAdmin, stored.Role)

	var member models.TeamMember
	require.NoError(t, db.First(&member, "team_id = ? AND user_id = ?", team.ID, invitee.ID).Error)
	require.Equal(t, models.MemberRoleAdmin, member.Role)
}

func TestTeamChangeMemberRoleMissingInvitationLink(t *testing.T) {
	db := openServicesTestDB(t)
	teamSvc, _, _, _ := newTestServices(t, db)

	ctx := context.Background()
	admin := newTestUser(t, db, models.RoleProfessional, "rolemiss-admin@example.com")
	other := newTestUser(t, db, models.RoleProfessional, "rolemiss-other@example.com")
	team := newTestTeam(t, teamSvc, admin, "RoleMiss Clinic")

	// A pending membership without its ledger link is a data inconsistency.
	member := models.TeamMember{
		TeamID: team.ID,
		UserID: other.ID,
		Role:   models.MemberRoleMember,
		Status: models.MemberStatusPending,
	}
	require.NoError(t, db.Create(&member).Error)

	err := teamSvc.ChangeMemberRole(ctx, admin, team.ID, other.ID, models.MemberRoleAdmin)
	require.ErrorIs(t, err, ErrMissingInvitationID)
}

func TestTeamRemoveMemberBranchesOnStatus(t *testing.T) {
	db := openServicesTestDB(t)
	teamSvc, invitationSvc, _, _ := newTestServices(t, db)

	ctx := context.Background()
	admin := newTestUser(t, db, models.RoleProfessional, "remove-admin@example.com")
	pending := newTestUser(t, db, models.RoleProfessional, "remove-pending@example.com")
	accepted := newTestUser(t, db, models.RoleProfessional, "remove-accepted@example.com")
	team := newTestTeam(t, teamSvc, admin, "Remove Clinic")

	invitation, err := teamSvc.InviteMember(ctx, admin, team.ID, pending.Email, models.MemberRoleMember)
	require.NoError(t, err)

	require.NoError(t, db.Create(&models.TeamMember{
		TeamID: team.ID,
		UserID: accepted.ID,
		Role:   models.MemberRoleMember,
		Status: models.MemberStatusAccepted,
	}).Error)

	// Pending member: the removal goes through invitation cancellation.
	require.NoError(t, teamSvc.RemoveMember(ctx, admin, team.ID, pending.ID))
	_, err = invitationSvc.Get(ctx, invitation.ID)
	require.ErrorIs(t, err, ErrInvitationNotFound)

	var count int64
	require.NoError(t, db.Model(&models.TeamMember{}).
		Where("team_id = ? AND user_id = ?", team.ID, pending.ID).
		Count(&count).Error)
	require.Zero(t, count)

	// Accepted member: straight delete.
	require.NoError(t, teamSvc.RemoveMember(ctx, admin, team.ID, accepted.ID))

	// Already gone: still a success.
	require.NoError(t, teamSvc.RemoveMember(ctx, admin, team.ID, accepted.ID))
}

func TestTeamLeaveLastMemberDeletesTeam(t *testing.T) {
	db := openServicesTestDB(t)
	teamSvc, _, _, _ := newTestServices(t, db)

	ctx := context.Background()
	pro := newTestUser(t, db, models.RoleProfessional, "lastmember-pro@example.com")
	team := newTestTeam(t, teamSvc, pro, "LastMember Clinic")

	require.NoError(t, teamSvc.Leave(ctx, pro, team.ID))

	_, err := teamSvc.GetByID(ctx, team.ID)
	require.ErrorIs(t, err, ErrTeamNotFound)

	var count int64
	require.NoError(t, db.Model(&models.TeamMember{}).Where("team_id = ?", team.ID).Count(&count).Error)
	require.Zero(t, count)
}

func TestTeamLeaveLastAdminBlockedWhileMembersRemain(t *testing.T) {
	db := openServicesTestDB(t)
	teamSvc, _, _, _ := newTestServices(t, db)

	ctx := context.Background()
	admin := newTestUser(t, db, models.RoleProfessional, "lastadmin-admin@example.com")
	member := newTestUser(t, db, models.RoleProfessional, "lastadmin-member@example.com")
	team := newTestTeam(t, teamSvc, admin, "LastAdmin Clinic")

	require.NoError(t, db.Create(&models.TeamMember{
		TeamID: team.ID,
		UserID: member.ID,
		Role:   models.MemberRoleMember,
		Status: models.MemberStatusAccepted,
	}).Error)

	require.ErrorIs(t, teamSvc.Leave(ctx, admin, team.ID), ErrLastAdmin)

	// Promote the other member; the admin can now leave.
	require.NoError(t, teamSvc.ChangeMemberRole(ctx, admin, team.ID, member.ID, models.MemberRoleAdmin))
	require.NoError(t, teamSvc.Leave(ctx, admin, team.ID))

	team2, err := teamSvc.GetByID(ctx, team.ID)
	require.NoError(t, err)
	require.Len(t, team2.Members, 1)
}

func TestTeamLeavePendingMemberCancelsInvitation(t *testing.T) {
	db := openServicesTestDB(t)
	teamSvc, invitationSvc, _, _ := newTestServices(t, db)

	ctx := context.Background()
	admin := newTestUser(t, db, models.RoleProfessional, "leavepending-admin@example.com")
	pending := newTestUser(t, db, models.RoleProfessional, "leavepending-member@example.com")
	team := newTestTeam(t, teamSvc, admin, "LeavePending Clinic")

	invitation, err := teamSvc.InviteMember(ctx, admin, team.ID, pending.Email, models.MemberRoleMember)
	require.NoError(t, err)

	require.NoError(t, teamSvc.Leave(ctx, pending, team.ID))

	// Both the membership row and the ledger entry are gone; accepting the
	// old invitation later cannot resurrect the membership.
	var count int64
	require.NoError(t, db.Model(&models.TeamMember{}).
		Where("team_id = ? AND user_id = ?", team.ID, pending.ID).
		Count(&count).Error)
	require.Zero(t, count)

	_, err = invitationSvc.Get(ctx, invitation.ID)
	require.ErrorIs(t, err, ErrInvitationNotFound)
}

func TestTeamJoinByCodePendingInvitationWins(t *testing.T) {
	db := openServicesTestDB(t)
	teamSvc, invitationSvc, _, _ := newTestServices(t, db)

	ctx := context.Background()
	pro := newTestUser(t, db, models.RoleProfessional, "joinwin-pro@example.com")
	patient := newTestUser(t, db, models.RolePatient, "joinwin-patient@example.com")
	team := newTestTeam(t, teamSvc, pro, "JoinWin Clinic")

	_, err := invitationSvc.Create(ctx, CreateInvitationInput{
		WireType:  models.WirePatientInvitation,
		CreatorID: pro.ID,
		Email:     patient.Email,
		TeamID:    &team.ID,
	})
	require.NoError(t, err)

	require.ErrorIs(t, teamSvc.JoinByCode(ctx, patient, team.ID), ErrAlreadyInvited)
}

func TestTeamJoinByCodeCreatesAcceptedPatient(t *testing.T) {
	db := openServicesTestDB(t)
	teamSvc, _, _, _ := newTestServices(t, db)

	ctx := context.Background()
	pro := newTestUser(t, db, models.RoleProfessional, "join-pro@example.com")
	patient := newTestUser(t, db, models.RolePatient, "join-patient@example.com")
	team := newTestTeam(t, teamSvc, pro, "Join Clinic")

	require.NoError(t, teamSvc.JoinByCode(ctx, patient, team.ID))

	var member models.TeamMember
	require.NoError(t, db.First(&member, "team_id = ? AND user_id = ?", team.ID, patient.ID).Error)
	require.Equal(t, models.MemberRolePatient, member.Role)
	require.Equal(t, models.MemberStatusAccepted, member.Status)

	require.ErrorIs(t, teamSvc.JoinByCode(ctx, patient, team.ID), ErrTeamMemberExists)
}

func TestTeamRemovePatientIsIdempotent(t *testing.T) {
	db := openServicesTestDB(t)
	teamSvc, _, _, _ := newTestServices(t, db)

	ctx := context.Background()
	pro := newTestUser(t, db, models.RoleProfessional, "rmpat-pro@example.com")
	patient := newTestUser(t, db, models.RolePatient, "rmpat-patient@example.com")
	team := newTestTeam(t, teamSvc, pro, "RmPat Clinic")

	require.NoError(t, teamSvc.JoinByCode(ctx, patient, team.ID))

	require.NoError(t, teamSvc.RemovePatient(ctx, pro, team.ID, patient.ID))
	require.NoError(t, teamSvc.RemovePatient(ctx, pro, team.ID, patient.ID))

	var count int64
	require.NoError(t, db.Model(&models.TeamMember{}).
		Where("team_id = ? AND user_id = ?", team.ID, patient.ID).
		Count(&count).Error)
	require.Zero(t, count)
}
