package models

// MemberRole is the role a user holds inside one team.
type MemberRole string

const (
	MemberRoleAdmin   MemberRole = "admin"
	MemberRoleMember  MemberRole = "member"
	MemberRolePatient MemberRole = "patient"
)

// MemberStatus tracks whether a membership is still awaiting invitation
// acceptance.
type MemberStatus string

const (
	MemberStatusPending  MemberStatus = "pending"
	MemberStatusAccepted MemberStatus = "accepted"
)

// TeamMember is the (team, user) relationship record. While the membership is
// pending, InvitationID links back to the ledger entry that created it.
type TeamMember struct {
	BaseModel

	TeamID string       `gorm:"type:uuid;not null;uniqueIndex:idx_team_user" json:"team_id"`
	UserID string       `gorm:"type:uuid;not null;uniqueIndex:idx_team_user" json:"user_id"`
	Role   MemberRole   `gorm:"type:varchar(16);not null" json:"role"`
	Status MemberStatus `gorm:"type:varchar(16);not null;default:'pending'" json:"status"`

	InvitationID *string `gorm:"type:uuid;index" json:"invitation_id,omitempty"`

	Team *Team `gorm:"foreignKey:TeamID" json:"-"`
	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// IsMedicalStaff reports whether the member counts toward the medical staff of
// the team. Patients belong to a team without being staff.
func (m TeamMember) IsMedicalStaff() bool {
	return m.Role != MemberRolePatient
}

// IsAccepted reports whether the membership has been confirmed.
func (m TeamMember) IsAccepted() bool {
	return m.Status == MemberStatusAccepted
}
