package models

// ShareStatus is the state of a direct share. There is no pending state: a
// share exists only once the caregiver accepted the direct invitation.
type ShareStatus string

const ShareStatusAccepted ShareStatus = "accepted"

// DirectShare grants a caregiver read access to a patient's data without any
// team involvement. Either party may destroy it.
type DirectShare struct {
	BaseModel

	PatientID string      `gorm:"type:uuid;not null;uniqueIndex:idx_patient_viewer" json:"patient_id"`
	ViewerID  string      `gorm:"type:uuid;not null;uniqueIndex:idx_patient_viewer" json:"viewer_id"`
	Status    ShareStatus `gorm:"type:varchar(16);not null;default:'accepted'" json:"status"`

	Patient *User `gorm:"foreignKey:PatientID" json:"patient,omitempty"`
	Viewer  *User `gorm:"foreignKey:ViewerID" json:"viewer,omitempty"`
}
