package models

import "gorm.io/datatypes"

// TeamType distinguishes formal medical teams from the implicit private
// container every professional owns.
type TeamType string

const (
	TeamTypeMedical TeamType = "medical"
	TeamTypePrivate TeamType = "private"
)

// PrivateTeamID is the conventional identifier of the synthetic private team.
// Private teams are never persisted; the registry materialises one per
// professional when listing.
const PrivateTeamID = "private"

// Team is a named group that professionals and their patients belong to.
// Medical teams carry a 9-digit join code, contact details and default
// monitoring alert thresholds for their patients.
type Team struct {
	BaseModel

	Name  string   `gorm:"not null" json:"name"`
	Type  TeamType `gorm:"type:varchar(16);not null;default:'medical'" json:"type"`
	Code  string   `gorm:"type:varchar(9);uniqueIndex" json:"code,omitempty"`
	Email string   `json:"email,omitempty"`
	Phone string   `gorm:"not null" json:"phone"`

	Address Address `gorm:"embedded;embeddedPrefix:address_" json:"address"`

	// MonitoringAlerts holds the default alerting thresholds applied to the
	// team's monitored patients.
	MonitoringAlerts datatypes.JSON `json:"monitoring_alerts,omitempty"`

	Members []TeamMember `gorm:"foreignKey:TeamID;constraint:OnDelete:CASCADE" json:"members,omitempty"`
}

// Address holds the postal address of a medical team.
type Address struct {
	Line1   string `json:"line1"`
	Line2   string `json:"line2,omitempty"`
	Zip     string `json:"zip"`
	City    string `json:"city"`
	Country string `json:"country"`
}

// Empty reports whether no address fields are set.
func (a Address) Empty() bool {
	return a.Line1 == "" && a.Zip == "" && a.City == ""
}

// NewPrivateTeam returns the synthetic private team presented to professionals.
func NewPrivateTeam() Team {
	return Team{
		BaseModel: BaseModel{ID: PrivateTeamID},
		Name:      "Private practice",
		Type:      TeamTypePrivate,
	}
}
