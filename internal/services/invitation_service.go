package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/careloop/careteam/internal/models"
	apperrors "github.com/careloop/careteam/pkg/errors"
	"github.com/careloop/careteam/pkg/logger"
	"github.com/careloop/careteam/pkg/mail"
	"github.com/careloop/careteam/pkg/metrics"
)

const defaultInvitationExpiry = 30 * 24 * time.Hour

var (
	// ErrInvitationNotFound indicates the ledger holds no entry for the id.
	ErrInvitationNotFound = apperrors.New("INVITATION_NOT_FOUND", "Invitation not found", http.StatusNotFound)
	// ErrInvitationExists signals an outstanding invitation already covers the
	// invitee for this team, or the same (creator, invitee) pair for a direct
	// share.
	ErrInvitationExists = apperrors.New("INVITATION_EXISTS", "An invitation is already pending", http.StatusConflict)
	// ErrUnknownInvitationType aborts workflows that reach an invitation whose
	// wire kind is outside the known enumeration. Never treated as recoverable.
	ErrUnknownInvitationType = apperrors.New("UNKNOWN_INVITATION_TYPE", "Unknown invitation type", http.StatusInternalServerError)
	// ErrInvalidTarget signals a team invitation without a team reference.
	ErrInvalidTarget = apperrors.New("INVALID_TARGET", "Invitation has no target team", http.StatusInternalServerError)
	// ErrInvitationMismatch signals an invitation addressed to someone else.
	ErrInvitationMismatch = apperrors.New("INVITATION_MISMATCH", "Invitation is not addressed to this user", http.StatusForbidden)
)

// CreateInvitationInput carries the attributes of a new ledger entry.
type CreateInvitationInput struct {
	WireType  string
	CreatorID string
	Email     string
	TeamID    *string
	Role      models.MemberRole
}

// InvitationOption customises InvitationService behaviour.
type InvitationOption func(*InvitationService)

// WithInvitationExpiry overrides the invitation lifetime.
func WithInvitationExpiry(d time.Duration) InvitationOption {
	return func(s *InvitationService) {
		if d > 0 {
			s.expiry = d
		}
	}
}

// WithInvitationClock injects a custom clock primarily for testing.
func WithInvitationClock(clock func() time.Time) InvitationOption {
	return func(s *InvitationService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// InvitationService owns the invitation ledger: creation, classification and
// the single terminal transition of each entry (accept, decline or cancel).
// Terminal transitions remove the row; an id never re-enters the ledger.
type InvitationService struct {
	db     *gorm.DB
	audit  *AuditService
	mailer mail.Mailer
	expiry time.Duration
	now    func() time.Time
}

// NewInvitationService constructs an InvitationService.
func NewInvitationService(db *gorm.DB, audit *AuditService, mailer mail.Mailer, opts ...InvitationOption) (*InvitationService, error) {
	if db == nil {
		return nil, errors.New("invitation service: db is required")
	}

	service := &InvitationService{
		db:     db,
		audit:  audit,
		mailer: mailer,
		expiry: defaultInvitationExpiry,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// Create registers a new invitation after enforcing the one-outstanding-entry
// rule: at most one invitation per (email, team) regardless of who created it,
// and per (creator, email) for direct invitations.
func (s *InvitationService) Create(ctx context.Context, input CreateInvitationInput) (*models.Invitation, error) {
	ctx = ensureContext(ctx)

	email := normaliseEmail(input.Email)
	if email == "" {
		return nil, apperrors.NewBadRequest("invitee email is required")
	}
	if _, ok := models.ClassifyWireType(input.WireType); !ok {
		return nil, ErrUnknownInvitationType
	}

	query := s.db.WithContext(ctx).
		Model(&models.Invitation{}).
		Where("email = ?", email)
	if input.TeamID != nil {
		query = query.Where("team_id = ?", *input.TeamID)
	} else {
		query = query.Where("creator_id = ? AND team_id IS NULL", input.CreatorID)
	}

	var outstanding int64
	if err := query.Count(&outstanding).Error; err != nil {
		return nil, fmt.Errorf("invitation service: check duplicates: %w", err)
	}
	if outstanding > 0 {
		return nil, ErrInvitationExists
	}

	invitation := models.Invitation{
		WireType:  input.WireType,
		CreatorID: input.CreatorID,
		Email:     email,
		TeamID:    input.TeamID,
		Role:      input.Role,
		ExpiresAt: s.now().Add(s.expiry),
	}

	if err := s.db.WithContext(ctx).Create(&invitation).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrInvitationExists
		}
		return nil, fmt.Errorf("invitation service: create invitation: %w", err)
	}

	s.sendInvitationEmail(ctx, &invitation)

	metrics.InvitationEvents.WithLabelValues(invitation.WireType, "created").Inc()
	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   &invitation.CreatorID,
		Action:   "invitation.create",
		Resource: invitation.ID,
		Result:   "success",
		Metadata: map[string]any{"wire_type": invitation.WireType, "email": email},
	})

	return &invitation, nil
}

// Get loads a single ledger entry by id.
func (s *InvitationService) Get(ctx context.Context, id string) (*models.Invitation, error) {
	ctx = ensureContext(ctx)

	var invitation models.Invitation
	err := s.db.WithContext(ctx).Preload("Team").First(&invitation, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvitationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("invitation service: load invitation: %w", err)
	}
	return &invitation, nil
}

// Received returns the actionable invitations addressed to the user. Entries
// with suppressed or unknown wire kinds never surface; an empty ledger yields
// an empty slice, not an error.
func (s *InvitationService) Received(ctx context.Context, user *models.User) ([]models.Invitation, error) {
	ctx = ensureContext(ctx)
	if user == nil {
		return nil, errors.New("invitation service: user is required")
	}

	var rows []models.Invitation
	if err := s.db.WithContext(ctx).
		Preload("Team").
		Preload("Creator").
		Where("email = ?", normaliseEmail(user.Email)).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("invitation service: list received: %w", err)
	}

	return filterActionable(rows), nil
}

// Sent returns the actionable invitations created by the user.
func (s *InvitationService) Sent(ctx context.Context, userID string) ([]models.Invitation, error) {
	ctx = ensureContext(ctx)

	var rows []models.Invitation
	if err := s.db.WithContext(ctx).
		Preload("Team").
		Where("creator_id = ?", userID).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("invitation service: list sent: %w", err)
	}

	return filterActionable(rows), nil
}

// Accept performs the terminal accept transition: the membership or share the
// invitation promised is materialised and the ledger entry removed, in one
// transaction so the caller never observes one without the other.
func (s *InvitationService) Accept(ctx context.Context, user *models.User, invitation *models.Invitation) error {
	ctx = ensureContext(ctx)
	if user == nil || invitation == nil {
		return errors.New("invitation service: user and invitation are required")
	}

	if normaliseEmail(invitation.Email) != normaliseEmail(user.Email) {
		return ErrInvitationMismatch
	}

	logicalType, ok := invitation.Classify()
	if !ok {
		logger.WithModule("invitations").Error("accept reached an unclassifiable invitation")
		return ErrUnknownInvitationType
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		switch logicalType {
		case models.TypeDirectInvitation:
			if err := acceptDirectShare(tx, user, invitation); err != nil {
				return err
			}
		case models.TypeCareTeamProInvitation, models.TypeCareTeamPatientInvitation, models.TypeCareTeamMonitoringInvitation:
			if invitation.TeamID == nil {
				return ErrInvalidTarget
			}
			if err := acceptTeamMembership(tx, user, invitation, logicalType); err != nil {
				return err
			}
		}

		return deleteLedgerEntry(tx, invitation.ID)
	})
	if err != nil {
		return err
	}

	metrics.InvitationEvents.WithLabelValues(invitation.WireType, "accepted").Inc()
	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   &user.ID,
		Action:   "invitation.accept",
		Resource: invitation.ID,
		Result:   "success",
		Metadata: map[string]any{"wire_type": invitation.WireType},
	})

	return nil
}

// Decline performs the terminal decline transition. Team invitations require
// a target team reference; its absence is a fatal data inconsistency.
func (s *InvitationService) Decline(ctx context.Context, user *models.User, invitation *models.Invitation) error {
	ctx = ensureContext(ctx)
	if user == nil || invitation == nil {
		return errors.New("invitation service: user and invitation are required")
	}

	if normaliseEmail(invitation.Email) != normaliseEmail(user.Email) {
		return ErrInvitationMismatch
	}

	logicalType, ok := invitation.Classify()
	if !ok {
		logger.WithModule("invitations").Error("decline reached an unclassifiable invitation")
		return ErrUnknownInvitationType
	}

	if logicalType != models.TypeDirectInvitation && invitation.TeamID == nil {
		return ErrInvalidTarget
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := deletePendingMemberships(tx, invitation.ID); err != nil {
			return err
		}
		return deleteLedgerEntry(tx, invitation.ID)
	})
	if err != nil {
		return err
	}

	metrics.InvitationEvents.WithLabelValues(invitation.WireType, "declined").Inc()
	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   &user.ID,
		Action:   "invitation.decline",
		Resource: invitation.ID,
		Result:   "success",
	})

	return nil
}

// Cancel retracts an invitation and removes any pending membership it spawned.
// Only the creator, or a staff member of the invitation's team, may retract
// it; anyone else learns nothing beyond "not found". A missing entry is
// treated as already satisfied, so concurrent retractions stay non-fatal.
func (s *InvitationService) Cancel(ctx context.Context, actorID, invitationID string) error {
	ctx = ensureContext(ctx)

	var invitation models.Invitation
	err := s.db.WithContext(ctx).First(&invitation, "id = ?", invitationID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("invitation service: load invitation: %w", err)
	}

	allowed, err := s.canRetract(ctx, actorID, &invitation)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrInvitationNotFound
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := deletePendingMemberships(tx, invitation.ID); err != nil {
			return err
		}
		return deleteLedgerEntry(tx, invitation.ID)
	})
	if err != nil {
		return err
	}

	metrics.InvitationEvents.WithLabelValues(invitation.WireType, "cancelled").Inc()
	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   &actorID,
		Action:   "invitation.cancel",
		Resource: invitation.ID,
		Result:   "success",
	})

	return nil
}

// CleanupExpired purges invitations past their expiry together with the
// pending memberships they created. Invoked by the maintenance scheduler.
func (s *InvitationService) CleanupExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx = ensureContext(ctx)

	var expired []models.Invitation
	if err := s.db.WithContext(ctx).
		Where("expires_at < ?", now).
		Find(&expired).Error; err != nil {
		return 0, fmt.Errorf("invitation service: list expired: %w", err)
	}
	if len(expired) == 0 {
		return 0, nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, invitation := range expired {
			if err := deletePendingMemberships(tx, invitation.ID); err != nil {
				return err
			}
			if err := deleteLedgerEntry(tx, invitation.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, invitation := range expired {
		metrics.InvitationEvents.WithLabelValues(invitation.WireType, "expired").Inc()
	}

	return int64(len(expired)), nil
}

// canRetract reports whether the actor may cancel the invitation: its creator
// always can, and medical staff of the target team can retract team kinds.
func (s *InvitationService) canRetract(ctx context.Context, actorID string, invitation *models.Invitation) (bool, error) {
	if actorID != "" && actorID == invitation.CreatorID {
		return true, nil
	}
	if actorID == "" || invitation.TeamID == nil {
		return false, nil
	}

	staffRoles := []models.MemberRole{models.MemberRoleAdmin, models.MemberRoleMember}
	var staff int64
	err := s.db.WithContext(ctx).
		Model(&models.TeamMember{}).
		Where("team_id = ? AND user_id = ? AND role IN ?", *invitation.TeamID, actorID, staffRoles).
		Count(&staff).Error
	if err != nil {
		return false, fmt.Errorf("invitation service: check retraction rights: %w", err)
	}
	return staff > 0, nil
}

func (s *InvitationService) sendInvitationEmail(ctx context.Context, invitation *models.Invitation) {
	if s.mailer == nil {
		return
	}

	message := mail.Message{
		To:      []string{invitation.Email},
		Subject: "You have a pending care-team invitation",
		Body: "Hello,\n\nYou have been invited to join a care team. " +
			"Sign in to review and accept the invitation.\n\n" +
			"If you did not expect this email, you can ignore it.\n",
	}
	if err := s.mailer.Send(ctx, message); err != nil && !errors.Is(err, mail.ErrSMTPDisabled) {
		logger.WithModule("invitations").Warn("invitation email delivery failed")
	}
}

func acceptDirectShare(tx *gorm.DB, viewer *models.User, invitation *models.Invitation) error {
	share := models.DirectShare{
		PatientID: invitation.CreatorID,
		ViewerID:  viewer.ID,
		Status:    models.ShareStatusAccepted,
	}
	if err := tx.Create(&share).Error; err != nil {
		if isUniqueConstraintError(err) {
			// Share already exists; the accept is still a success.
			return nil
		}
		return fmt.Errorf("invitation service: create direct share: %w", err)
	}
	return nil
}

func acceptTeamMembership(tx *gorm.DB, user *models.User, invitation *models.Invitation, logicalType models.InvitationType) error {
	role := invitation.Role
	if logicalType != models.TypeCareTeamProInvitation {
		role = models.MemberRolePatient
	}
	if role == "" {
		role = models.MemberRoleMember
	}

	var member models.TeamMember
	err := tx.Where("team_id = ? AND user_id = ?", *invitation.TeamID, user.ID).First(&member).Error
	switch {
	case err == nil:
		return tx.Model(&member).Updates(map[string]any{
			"status":        models.MemberStatusAccepted,
			"role":          role,
			"invitation_id": nil,
		}).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		member = models.TeamMember{
			TeamID: *invitation.TeamID,
			UserID: user.ID,
			Role:   role,
			Status: models.MemberStatusAccepted,
		}
		if err := tx.Create(&member).Error; err != nil {
			return fmt.Errorf("invitation service: create membership: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("invitation service: load membership: %w", err)
	}
}

func deletePendingMemberships(tx *gorm.DB, invitationID string) error {
	if err := tx.
		Where("invitation_id = ? AND status = ?", invitationID, models.MemberStatusPending).
		Delete(&models.TeamMember{}).Error; err != nil {
		return fmt.Errorf("invitation service: delete pending membership: %w", err)
	}
	return nil
}

func deleteLedgerEntry(tx *gorm.DB, invitationID string) error {
	if err := tx.Delete(&models.Invitation{}, "id = ?", invitationID).Error; err != nil {
		return fmt.Errorf("invitation service: delete invitation: %w", err)
	}
	return nil
}

func filterActionable(rows []models.Invitation) []models.Invitation {
	items := make([]models.Invitation, 0, len(rows))
	for _, row := range rows {
		if _, ok := row.Classify(); !ok {
			continue
		}
		items = append(items, row)
	}
	return items
}
