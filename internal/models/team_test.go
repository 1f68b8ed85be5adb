package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewPrivateTeam(t *testing.T) {
	team := NewPrivateTeam()
	require.Equal(t, PrivateTeamID, team.ID)
	require.Equal(t, TeamTypePrivate, team.Type)
	require.Empty(t, team.Code)
}

func TestAddressEmpty(t *testing.T) {
	require.True(t, Address{}.Empty())
	require.True(t, Address{Line2: "apt 4"}.Empty())
	require.False(t, Address{Line1: "12 rue x"}.Empty())
	require.False(t, Address{City: "Paris"}.Empty())
}

func TestTeamMemberPredicates(t *testing.T) {
	admin := TeamMember{Role: MemberRoleAdmin, Status: MemberStatusAccepted}
	require.True(t, admin.IsMedicalStaff())
	require.True(t, admin.IsAccepted())

	patient := TeamMember{Role: MemberRolePatient, Status: MemberStatusPending}
	require.False(t, patient.IsMedicalStaff())
	require.False(t, patient.IsAccepted())
}
