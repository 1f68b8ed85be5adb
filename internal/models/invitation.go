package models

import "time"

// Wire-level invitation kinds as produced by upstream notification feeds.
// Administrative notices (do-admin, remove) are carried on the same channel
// but are not user-facing invitations and are suppressed at ingestion.
const (
	WireDirectInvitation     = "careteam_invitation"
	WireProInvitation        = "medicalteam_invitation"
	WirePatientInvitation    = "medicalteam_patient_invitation"
	WireMonitoringInvitation = "medicalteam_monitoring_invitation"
	WireDoAdminNotice        = "medicalteam_do_admin"
	WireRemoveMemberNotice   = "medicalteam_remove"
)

// InvitationType is the logical classification of an actionable invitation.
type InvitationType string

const (
	TypeDirectInvitation             InvitationType = "direct_invitation"
	TypeCareTeamProInvitation        InvitationType = "careteam_pro_invitation"
	TypeCareTeamPatientInvitation    InvitationType = "careteam_patient_invitation"
	TypeCareTeamMonitoringInvitation InvitationType = "careteam_monitoring_invitation"
)

// ClassifyWireType maps a wire-level kind to its logical invitation type.
// The second return value is false for the two suppressed administrative
// kinds and for anything outside the known enumeration.
func ClassifyWireType(wireType string) (InvitationType, bool) {
	switch wireType {
	case WireDirectInvitation:
		return TypeDirectInvitation, true
	case WireProInvitation:
		return TypeCareTeamProInvitation, true
	case WirePatientInvitation:
		return TypeCareTeamPatientInvitation, true
	case WireMonitoringInvitation:
		return TypeCareTeamMonitoringInvitation, true
	}
	return "", false
}

// Invitation is a ledger entry representing a pending offer to join a team or
// to receive direct data access. Its lifecycle is created -> exactly one of
// accepted, declined or cancelled, after which the row is removed.
type Invitation struct {
	BaseModel

	WireType  string  `gorm:"type:varchar(64);not null;index" json:"wire_type"`
	CreatorID string  `gorm:"type:uuid;not null;index" json:"creator_id"`
	Email     string  `gorm:"not null;index" json:"email"`
	TeamID    *string `gorm:"type:uuid;index" json:"team_id,omitempty"`

	// Role records the membership role a professional invitation grants
	// on acceptance.
	Role MemberRole `gorm:"type:varchar(16)" json:"role,omitempty"`

	ExpiresAt time.Time `gorm:"index" json:"expires_at"`

	Team    *Team `gorm:"foreignKey:TeamID;constraint:OnDelete:CASCADE" json:"team,omitempty"`
	Creator *User `gorm:"foreignKey:CreatorID" json:"creator,omitempty"`
}

// Classify returns the logical type of the invitation, with ok=false for
// suppressed or unknown wire kinds.
func (i Invitation) Classify() (InvitationType, bool) {
	return ClassifyWireType(i.WireType)
}

// RequiresCodeConfirmation reports whether accepting this invitation routes
// through the team-code confirmation sub-flow before the ledger transition.
func (i Invitation) RequiresCodeConfirmation() bool {
	t, ok := i.Classify()
	if !ok {
		return false
	}
	return t == TypeCareTeamPatientInvitation || t == TypeCareTeamMonitoringInvitation
}
