package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role identifies the kind of account a user holds. A patient may later be
// upgraded to professional, but a professional never becomes a patient again.
type Role string

const (
	RoleProfessional Role = "professional"
	RolePatient      Role = "patient"
	RoleCaregiver    Role = "caregiver"
)

// Valid reports whether the role is one of the three known account kinds.
func (r Role) Valid() bool {
	switch r {
	case RoleProfessional, RolePatient, RoleCaregiver:
		return true
	}
	return false
}

// User describes an account taking part in care-team workflows.
type User struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	Password string `gorm:"not null" json:"-"`
	Role     Role   `gorm:"type:varchar(32);not null;index" json:"role"`

	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`

	Memberships []TeamMember `gorm:"foreignKey:UserID" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// IsProfessional reports whether the user holds a professional account.
func (u *User) IsProfessional() bool { return u.Role == RoleProfessional }

// IsPatient reports whether the user holds a patient account.
func (u *User) IsPatient() bool { return u.Role == RolePatient }

// IsCaregiver reports whether the user holds an informal caregiver account.
func (u *User) IsCaregiver() bool { return u.Role == RoleCaregiver }
