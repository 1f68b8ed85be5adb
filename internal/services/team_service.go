package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/careloop/careteam/internal/models"
	apperrors "github.com/careloop/careteam/pkg/errors"
	"github.com/careloop/careteam/pkg/metrics"
	"github.com/careloop/careteam/pkg/teamcode"
)

const codeGenerationAttempts = 5

var (
	// ErrTeamNotFound indicates the requested team does not exist.
	ErrTeamNotFound = apperrors.New("TEAM_NOT_FOUND", "Team not found", http.StatusNotFound)
	// ErrTeamMemberExists signals the user already belongs to the team.
	ErrTeamMemberExists = apperrors.New("TEAM_MEMBER_EXISTS", "User is already a member of the team", http.StatusConflict)
	// ErrMemberAlreadyInvited signals an outstanding professional invitation for the email.
	ErrMemberAlreadyInvited = apperrors.New("MEMBER_ALREADY_INVITED", "An invitation is already pending for this email", http.StatusConflict)
	// ErrAlreadyInvited tells a joining patient to accept their pending
	// invitation instead of creating a fresh relationship.
	ErrAlreadyInvited = apperrors.New("ALREADY_INVITED", "A pending invitation exists for this team; accept it instead", http.StatusConflict)
	// ErrMissingInvitationID flags a pending membership without its ledger
	// link. Upstream data inconsistency; surfaced as-is, never retried.
	ErrMissingInvitationID = apperrors.New("MISSING_INVITATION_ID", "Pending membership has no invitation reference", http.StatusInternalServerError)
	// ErrLastAdmin rejects an admin leaving while other members remain.
	ErrLastAdmin = apperrors.New("LAST_ADMIN", "The only administrator cannot leave while the team has members", http.StatusConflict)
	// ErrNotAMember indicates the caller does not belong to the team.
	ErrNotAMember = apperrors.New("NOT_A_MEMBER", "User is not a member of the team", http.StatusForbidden)
)

// defaultMonitoringAlerts are the alerting thresholds a new medical team
// starts with. Values are percentages and hypo/hyper thresholds in mg/dL.
var defaultMonitoringAlerts = map[string]any{
	"time_spent_severe_hypoglycemia_threshold": 10,
	"time_spent_hypoglycemia_threshold":        5,
	"frequency_severe_hyperglycemia_threshold": 25,
	"non_data_transmission_threshold":          15,
	"hypoglycemia_threshold_mgdl":              70,
	"severe_hypoglycemia_threshold_mgdl":       54,
	"hyperglycemia_threshold_mgdl":             180,
}

// CreateTeamInput captures new medical team metadata.
type CreateTeamInput struct {
	Name    string
	Phone   string
	Email   string
	Address models.Address
}

// UpdateTeamInput describes mutable team fields.
type UpdateTeamInput struct {
	Name    *string
	Phone   *string
	Email   *string
	Address *models.Address
}

// TeamService is the team registry: it owns Team and TeamMember rows, their
// lifecycle and the private-team convention for professionals.
type TeamService struct {
	db          *gorm.DB
	audit       *AuditService
	invitations *InvitationService
}

// NewTeamService constructs a TeamService instance.
func NewTeamService(db *gorm.DB, audit *AuditService, invitations *InvitationService) (*TeamService, error) {
	if db == nil {
		return nil, errors.New("team service: db is required")
	}
	if invitations == nil {
		return nil, errors.New("team service: invitation service is required")
	}
	return &TeamService{
		db:          db,
		audit:       audit,
		invitations: invitations,
	}, nil
}

// List returns the teams the user belongs to. Professionals additionally see
// their synthetic private team. An empty registry yields an empty list.
func (s *TeamService) List(ctx context.Context, user *models.User) ([]models.Team, error) {
	ctx = ensureContext(ctx)
	if user == nil {
		return nil, errors.New("team service: user is required")
	}

	var teams []models.Team
	err := s.db.WithContext(ctx).
		Preload("Members").
		Joins("JOIN team_members ON team_members.team_id = teams.id").
		Where("team_members.user_id = ? AND team_members.status = ?", user.ID, models.MemberStatusAccepted).
		Order("teams.created_at ASC").
		Find(&teams).Error
	if err != nil {
		return nil, fmt.Errorf("team service: list teams: %w", err)
	}

	if user.IsProfessional() {
		teams = append(teams, models.NewPrivateTeam())
	}

	return teams, nil
}

// Create registers a new medical team. Name, address and phone are required
// and validated before anything is written; the creator becomes the first
// accepted administrator.
func (s *TeamService) Create(ctx context.Context, creator *models.User, input CreateTeamInput) (*models.Team, error) {
	ctx = ensureContext(ctx)
	if creator == nil {
		return nil, errors.New("team service: creator is required")
	}

	name := strings.TrimSpace(input.Name)
	phone := strings.TrimSpace(input.Phone)
	if name == "" {
		return nil, apperrors.NewBadRequest("team name is required")
	}
	if input.Address.Empty() {
		return nil, apperrors.NewBadRequest("team address is required")
	}
	if phone == "" {
		return nil, apperrors.NewBadRequest("team phone is required")
	}

	alerts, err := json.Marshal(defaultMonitoringAlerts)
	if err != nil {
		return nil, fmt.Errorf("team service: marshal monitoring alerts: %w", err)
	}

	team := &models.Team{
		Name:             name,
		Type:             models.TeamTypeMedical,
		Phone:            phone,
		Email:            strings.TrimSpace(input.Email),
		Address:          input.Address,
		MonitoringAlerts: datatypes.JSON(alerts),
	}

	if err := s.createWithFreshCode(ctx, team, creator); err != nil {
		return nil, err
	}

	metrics.MembershipEvents.WithLabelValues("joined").Inc()
	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   &creator.ID,
		Action:   "team.create",
		Resource: team.ID,
		Result:   "success",
		Metadata: map[string]any{"name": team.Name},
	})

	return team, nil
}

// Update modifies team metadata.
func (s *TeamService) Update(ctx context.Context, actor *models.User, id string, input UpdateTeamInput) (*models.Team, error) {
	ctx = ensureContext(ctx)

	var team models.Team
	err := s.db.WithContext(ctx).First(&team, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTeamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("team service: load team: %w", err)
	}

	updates := map[string]any{}
	if input.Name != nil {
		if name := strings.TrimSpace(*input.Name); name != "" && name != team.Name {
			updates["name"] = name
		}
	}
	if input.Phone != nil {
		if phone := strings.TrimSpace(*input.Phone); phone != "" {
			updates["phone"] = phone
		}
	}
	if input.Email != nil {
		updates["email"] = strings.TrimSpace(*input.Email)
	}
	if input.Address != nil && !input.Address.Empty() {
		updates["address_line1"] = input.Address.Line1
		updates["address_line2"] = input.Address.Line2
		updates["address_zip"] = input.Address.Zip
		updates["address_city"] = input.Address.City
		updates["address_country"] = input.Address.Country
	}

	if len(updates) == 0 {
		return &team, nil
	}

	if err := s.db.WithContext(ctx).Model(&team).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("team service: update team: %w", err)
	}

	if err := s.db.WithContext(ctx).First(&team, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("team service: reload team: %w", err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   actorID(actor),
		Action:   "team.update",
		Resource: team.ID,
		Result:   "success",
		Metadata: updates,
	})

	return &team, nil
}

// GetByID loads a team with its membership.
func (s *TeamService) GetByID(ctx context.Context, id string) (*models.Team, error) {
	ctx = ensureContext(ctx)

	var team models.Team
	err := s.db.WithContext(ctx).
		Preload("Members.User").
		First(&team, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTeamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("team service: get team: %w", err)
	}

	return &team, nil
}

// GetByCode resolves a team from its ungrouped 9-digit code. A missing or
// malformed code yields (nil, nil): absence is an answer here, not a failure.
func (s *TeamService) GetByCode(ctx context.Context, code string) (*models.Team, error) {
	ctx = ensureContext(ctx)

	code = teamcode.Normalize(code)
	if !teamcode.Valid(code) {
		return nil, nil
	}

	var team models.Team
	err := s.db.WithContext(ctx).First(&team, "code = ?", code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("team service: get team by code: %w", err)
	}

	return &team, nil
}

// Delete removes a team and, through cascade, its memberships.
func (s *TeamService) Delete(ctx context.Context, actor *models.User, id string) error {
	ctx = ensureContext(ctx)

	var team models.Team
	err := s.db.WithContext(ctx).First(&team, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrTeamNotFound
	}
	if err != nil {
		return fmt.Errorf("team service: load team: %w", err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("team_id = ?", team.ID).Delete(&models.TeamMember{}).Error; err != nil {
			return fmt.Errorf("team service: delete memberships: %w", err)
		}
		if err := tx.Where("team_id = ?", team.ID).Delete(&models.Invitation{}).Error; err != nil {
			return fmt.Errorf("team service: delete outstanding invitations: %w", err)
		}
		if err := tx.Delete(&team).Error; err != nil {
			return fmt.Errorf("team service: delete team: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   actorID(actor),
		Action:   "team.delete",
		Resource: team.ID,
		Result:   "success",
	})

	return nil
}

// ListMembers returns a fresh membership snapshot for the team.
func (s *TeamService) ListMembers(ctx context.Context, teamID string) ([]models.TeamMember, error) {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(teamID) == "" {
		return nil, apperrors.NewBadRequest("team id is required")
	}

	var members []models.TeamMember
	if err := s.db.WithContext(ctx).
		Preload("User").
		Where("team_id = ?", teamID).
		Order("created_at ASC").
		Find(&members).Error; err != nil {
		return nil, fmt.Errorf("team service: list members: %w", err)
	}

	return members, nil
}

// InviteMember invites a professional into a medical team with an admin or
// member role. The membership itself stays pending until the invitation is
// accepted.
func (s *TeamService) InviteMember(ctx context.Context, inviter *models.User, teamID, email string, role models.MemberRole) (*models.Invitation, error) {
	ctx = ensureContext(ctx)
	if inviter == nil {
		return nil, errors.New("team service: inviter is required")
	}
	if role != models.MemberRoleAdmin && role != models.MemberRoleMember {
		return nil, apperrors.NewBadRequest("member role must be admin or member")
	}

	email = normaliseEmail(email)
	if email == "" {
		return nil, apperrors.NewBadRequest("invitee email is required")
	}

	team, err := s.GetByID(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if team.Type != models.TeamTypeMedical {
		return nil, apperrors.NewBadRequest("members can only be invited into medical teams")
	}

	invitee, err := s.findUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if invitee != nil {
		var existing int64
		if err := s.db.WithContext(ctx).
			Model(&models.TeamMember{}).
			Where("team_id = ? AND user_id = ?", team.ID, invitee.ID).
			Count(&existing).Error; err != nil {
			return nil, fmt.Errorf("team service: check membership: %w", err)
		}
		if existing > 0 {
			return nil, ErrTeamMemberExists
		}
	}

	invitation, err := s.invitations.Create(ctx, CreateInvitationInput{
		WireType:  models.WireProInvitation,
		CreatorID: inviter.ID,
		Email:     email,
		TeamID:    &team.ID,
		Role:      role,
	})
	if errors.Is(err, ErrInvitationExists) {
		return nil, ErrMemberAlreadyInvited
	}
	if err != nil {
		return nil, err
	}

	if invitee != nil {
		if err := s.createPendingMembership(ctx, team.ID, invitee.ID, role, invitation.ID); err != nil {
			return nil, err
		}
	}

	return invitation, nil
}

// ChangeMemberRole grants or revokes admin rights. For a pending member the
// recorded invitation role is updated first, then the membership row; both
// always target the same role value.
func (s *TeamService) ChangeMemberRole(ctx context.Context, actor *models.User, teamID, userID string, newRole models.MemberRole) error {
	ctx = ensureContext(ctx)

	if newRole != models.MemberRoleAdmin && newRole != models.MemberRoleMember {
		return apperrors.NewBadRequest("member role must be admin or member")
	}

	member, err := s.findMember(ctx, teamID, userID)
	if err != nil {
		return err
	}
	if member == nil {
		return ErrNotAMember
	}
	if member.Role == models.MemberRolePatient {
		return apperrors.NewBadRequest("patients cannot hold staff roles")
	}

	if member.Status == models.MemberStatusPending {
		if member.InvitationID == nil {
			return ErrMissingInvitationID
		}
		if err := s.db.WithContext(ctx).
			Model(&models.Invitation{}).
			Where("id = ?", *member.InvitationID).
			Update("role", newRole).Error; err != nil {
			return fmt.Errorf("team service: update invitation role: %w", err)
		}
	}

	if err := s.db.WithContext(ctx).
		Model(&models.TeamMember{}).
		Where("id = ?", member.ID).
		Update("role", newRole).Error; err != nil {
		return fmt.Errorf("team service: update member role: %w", err)
	}

	metrics.MembershipEvents.WithLabelValues("role_changed").Inc()
	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   actorID(actor),
		Action:   "team.change_member_role",
		Resource: teamID,
		Result:   "success",
		Metadata: map[string]any{"user_id": userID, "role": string(newRole)},
	})

	return nil
}

// RemoveMember removes a member from a team. Pending members have no real
// membership yet, so their invitation is cancelled instead; a membership that
// a concurrent actor already removed counts as success.
func (s *TeamService) RemoveMember(ctx context.Context, actor *models.User, teamID, userID string) error {
	ctx = ensureContext(ctx)

	member, err := s.findMember(ctx, teamID, userID)
	if err != nil {
		return err
	}
	if member == nil {
		// Already gone; a concurrent removal is not an error.
		return nil
	}

	if member.Status == models.MemberStatusPending {
		if member.InvitationID == nil {
			return ErrMissingInvitationID
		}
		if err := s.invitations.Cancel(ctx, derefActorID(actor), *member.InvitationID); err != nil {
			return err
		}
	} else {
		if err := s.db.WithContext(ctx).Delete(&models.TeamMember{}, "id = ?", member.ID).Error; err != nil {
			return fmt.Errorf("team service: delete membership: %w", err)
		}
	}

	metrics.MembershipEvents.WithLabelValues("removed").Inc()
	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   actorID(actor),
		Action:   "team.remove_member",
		Resource: teamID,
		Result:   "success",
		Metadata: map[string]any{"user_id": userID, "status": string(member.Status)},
	})

	return nil
}

// Leave removes the professional caller from the team. The decision between
// "leave" and "delete the team" is made from a membership snapshot read here,
// never from caller-supplied state: when the caller is the last accepted
// member the team is deleted in the same operation. A pending caller has no
// real membership yet, so their invitation is cancelled instead.
func (s *TeamService) Leave(ctx context.Context, actor *models.User, teamID string) error {
	ctx = ensureContext(ctx)
	if actor == nil {
		return errors.New("team service: actor is required")
	}

	members, err := s.ListMembers(ctx, teamID)
	if err != nil {
		return err
	}

	var (
		self          *models.TeamMember
		acceptedStaff int
		acceptedAdmin int
	)
	for i := range members {
		m := &members[i]
		if m.UserID == actor.ID {
			self = m
		}
		if m.IsAccepted() && m.IsMedicalStaff() {
			acceptedStaff++
			if m.Role == models.MemberRoleAdmin {
				acceptedAdmin++
			}
		}
	}
	if self == nil {
		return ErrNotAMember
	}

	isLastMedicalMember := self.IsAccepted() && acceptedStaff == 1
	if isLastMedicalMember {
		// Deleting the team is atomic with the last member's departure, so
		// the at-least-one-admin invariant never observably breaks.
		return s.Delete(ctx, actor, teamID)
	}

	if self.Role == models.MemberRoleAdmin && self.IsAccepted() && acceptedAdmin == 1 {
		return ErrLastAdmin
	}

	if self.Status == models.MemberStatusPending {
		if self.InvitationID == nil {
			return ErrMissingInvitationID
		}
		if err := s.invitations.Cancel(ctx, actor.ID, *self.InvitationID); err != nil {
			return err
		}
	} else if err := s.db.WithContext(ctx).Delete(&models.TeamMember{}, "id = ?", self.ID).Error; err != nil {
		return fmt.Errorf("team service: delete membership: %w", err)
	}

	metrics.MembershipEvents.WithLabelValues("left").Inc()
	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   &actor.ID,
		Action:   "team.leave",
		Resource: teamID,
		Result:   "success",
	})

	return nil
}

// JoinByCode adds the user as an accepted patient member after a code-based
// lookup. A pending invitation for the same pair wins over a fresh join: the
// caller must accept it instead.
func (s *TeamService) JoinByCode(ctx context.Context, user *models.User, teamID string) error {
	ctx = ensureContext(ctx)
	if user == nil {
		return errors.New("team service: user is required")
	}

	team, err := s.GetByID(ctx, teamID)
	if err != nil {
		return err
	}

	var pendingInvites int64
	if err := s.db.WithContext(ctx).
		Model(&models.Invitation{}).
		Where("team_id = ? AND email = ?", team.ID, normaliseEmail(user.Email)).
		Count(&pendingInvites).Error; err != nil {
		return fmt.Errorf("team service: check pending invitations: %w", err)
	}
	if pendingInvites > 0 {
		return ErrAlreadyInvited
	}

	member := models.TeamMember{
		TeamID: team.ID,
		UserID: user.ID,
		Role:   models.MemberRolePatient,
		Status: models.MemberStatusAccepted,
	}
	if err := s.db.WithContext(ctx).Create(&member).Error; err != nil {
		if isUniqueConstraintError(err) {
			return ErrTeamMemberExists
		}
		return fmt.Errorf("team service: create patient membership: %w", err)
	}

	metrics.MembershipEvents.WithLabelValues("joined").Inc()
	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   &user.ID,
		Action:   "team.join_by_code",
		Resource: team.ID,
		Result:   "success",
	})

	return nil
}

// RemovePatient deletes a patient membership row. This is the leave path for
// patients and caregivers, and step two of the reinvite workflow; an absent
// row is already-satisfied, not an error.
func (s *TeamService) RemovePatient(ctx context.Context, actor *models.User, teamID, patientID string) error {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Where("team_id = ? AND user_id = ? AND role = ?", teamID, patientID, models.MemberRolePatient).
		Delete(&models.TeamMember{})
	if result.Error != nil {
		return fmt.Errorf("team service: remove patient: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		metrics.MembershipEvents.WithLabelValues("removed").Inc()
		recordAudit(s.audit, ctx, AuditEntry{
			UserID:   actorID(actor),
			Action:   "team.remove_patient",
			Resource: teamID,
			Result:   "success",
			Metadata: map[string]any{"user_id": patientID},
		})
	}

	return nil
}

func (s *TeamService) createPendingMembership(ctx context.Context, teamID, userID string, role models.MemberRole, invitationID string) error {
	member := models.TeamMember{
		TeamID:       teamID,
		UserID:       userID,
		Role:         role,
		Status:       models.MemberStatusPending,
		InvitationID: &invitationID,
	}
	if err := s.db.WithContext(ctx).Create(&member).Error; err != nil {
		if isUniqueConstraintError(err) {
			return ErrTeamMemberExists
		}
		return fmt.Errorf("team service: create pending membership: %w", err)
	}
	return nil
}

func (s *TeamService) findMember(ctx context.Context, teamID, userID string) (*models.TeamMember, error) {
	var member models.TeamMember
	err := s.db.WithContext(ctx).
		Where("team_id = ? AND user_id = ?", teamID, userID).
		First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("team service: load member: %w", err)
	}
	return &member, nil
}

func (s *TeamService) findUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, "email = ?", normaliseEmail(email)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("team service: find user by email: %w", err)
	}
	return &user, nil
}

// createWithFreshCode persists the team and its first admin membership in one
// transaction, retrying the whole write when the generated join code collides.
func (s *TeamService) createWithFreshCode(ctx context.Context, team *models.Team, creator *models.User) error {
	for attempt := 0; attempt < codeGenerationAttempts; attempt++ {
		code, err := teamcode.Generate()
		if err != nil {
			return fmt.Errorf("team service: generate code: %w", err)
		}
		team.Code = code
		team.ID = ""

		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(team).Error; err != nil {
				return err
			}

			member := models.TeamMember{
				TeamID: team.ID,
				UserID: creator.ID,
				Role:   models.MemberRoleAdmin,
				Status: models.MemberStatusAccepted,
			}
			return tx.Create(&member).Error
		})
		if err == nil {
			return nil
		}
		if !isUniqueConstraintError(err) {
			return fmt.Errorf("team service: create team: %w", err)
		}
	}
	return errors.New("team service: could not allocate a unique team code")
}

func actorID(actor *models.User) *string {
	if actor == nil {
		return nil
	}
	return &actor.ID
}

func derefActorID(actor *models.User) string {
	if actor == nil {
		return ""
	}
	return actor.ID
}
