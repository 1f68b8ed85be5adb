package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"gorm.io/gorm"

	"github.com/careloop/careteam/internal/models"
	apperrors "github.com/careloop/careteam/pkg/errors"
)

var (
	// ErrCannotBeCaregiver rejects sharing data with a professional account.
	// Professionals receive access through care teams, never direct shares.
	ErrCannotBeCaregiver = apperrors.New("CANNOT_BE_CAREGIVER", "A professional account cannot be added as a caregiver", http.StatusMethodNotAllowed)
	// ErrShareExists signals an active share already links the two users.
	ErrShareExists = apperrors.New("SHARE_EXISTS", "Data is already shared with this user", http.StatusConflict)
	// ErrNotAPatient rejects share creation by non-patient accounts.
	ErrNotAPatient = apperrors.New("NOT_A_PATIENT", "Only patients can share their data directly", http.StatusForbidden)
)

// DirectShareService manages patient-to-caregiver data shares. Shares have no
// pending state of their own: the pending phase lives in the invitation
// ledger, and a share row exists only once accepted.
type DirectShareService struct {
	db          *gorm.DB
	audit       *AuditService
	invitations *InvitationService
}

// NewDirectShareService constructs a DirectShareService.
func NewDirectShareService(db *gorm.DB, audit *AuditService, invitations *InvitationService) (*DirectShareService, error) {
	if db == nil {
		return nil, errors.New("direct share service: db is required")
	}
	if invitations == nil {
		return nil, errors.New("direct share service: invitation service is required")
	}
	return &DirectShareService{
		db:          db,
		audit:       audit,
		invitations: invitations,
	}, nil
}

// InviteCaregiver creates a direct-share invitation from a patient to the
// given email. The target must not hold a professional account.
func (s *DirectShareService) InviteCaregiver(ctx context.Context, patient *models.User, email string) (*models.Invitation, error) {
	ctx = ensureContext(ctx)
	if patient == nil {
		return nil, errors.New("direct share service: patient is required")
	}
	if !patient.IsPatient() {
		return nil, ErrNotAPatient
	}

	email = normaliseEmail(email)
	if email == "" {
		return nil, apperrors.NewBadRequest("caregiver email is required")
	}
	if email == normaliseEmail(patient.Email) {
		return nil, apperrors.NewBadRequest("cannot share data with yourself")
	}

	var target models.User
	err := s.db.WithContext(ctx).First(&target, "email = ?", email).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("direct share service: find target: %w", err)
	}
	if err == nil {
		if target.IsProfessional() {
			return nil, ErrCannotBeCaregiver
		}

		var existing int64
		if err := s.db.WithContext(ctx).
			Model(&models.DirectShare{}).
			Where("patient_id = ? AND viewer_id = ?", patient.ID, target.ID).
			Count(&existing).Error; err != nil {
			return nil, fmt.Errorf("direct share service: check existing share: %w", err)
		}
		if existing > 0 {
			return nil, ErrShareExists
		}
	}

	invitation, err := s.invitations.Create(ctx, CreateInvitationInput{
		WireType:  models.WireDirectInvitation,
		CreatorID: patient.ID,
		Email:     email,
	})
	if err != nil {
		return nil, err
	}

	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   &patient.ID,
		Action:   "share.invite",
		Resource: invitation.ID,
		Result:   "success",
		Metadata: map[string]any{"email": email},
	})

	return invitation, nil
}

// List returns the shares the user participates in, in either direction.
func (s *DirectShareService) List(ctx context.Context, user *models.User) ([]models.DirectShare, error) {
	ctx = ensureContext(ctx)
	if user == nil {
		return nil, errors.New("direct share service: user is required")
	}

	var shares []models.DirectShare
	if err := s.db.WithContext(ctx).
		Preload("Patient").
		Preload("Viewer").
		Where("patient_id = ? OR viewer_id = ?", user.ID, user.ID).
		Order("created_at ASC").
		Find(&shares).Error; err != nil {
		return nil, fmt.Errorf("direct share service: list shares: %w", err)
	}

	return shares, nil
}

// Remove deletes a share between the caller and the other user. Either party
// may sever the link, and an absent share counts as already removed.
func (s *DirectShareService) Remove(ctx context.Context, user *models.User, otherUserID string) error {
	ctx = ensureContext(ctx)
	if user == nil {
		return errors.New("direct share service: user is required")
	}

	result := s.db.WithContext(ctx).
		Where("(patient_id = ? AND viewer_id = ?) OR (patient_id = ? AND viewer_id = ?)",
			user.ID, otherUserID, otherUserID, user.ID).
		Delete(&models.DirectShare{})
	if result.Error != nil {
		return fmt.Errorf("direct share service: remove share: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		recordAudit(s.audit, ctx, AuditEntry{
			UserID:   &user.ID,
			Action:   "share.remove",
			Resource: otherUserID,
			Result:   "success",
		})
	}

	return nil
}
