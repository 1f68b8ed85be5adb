package database

import (
	"gorm.io/gorm"

	"github.com/careloop/careteam/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Team{},
		&models.TeamMember{},
		&models.Invitation{},
		&models.DirectShare{},
		&models.AuditLog{},
	)
}
