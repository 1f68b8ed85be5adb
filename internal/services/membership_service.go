package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"gorm.io/gorm"

	"github.com/careloop/careteam/internal/models"
	apperrors "github.com/careloop/careteam/pkg/errors"
	"github.com/careloop/careteam/pkg/logger"
	"github.com/careloop/careteam/pkg/metrics"
	"github.com/careloop/careteam/pkg/teamcode"
)

var (
	// ErrNoTeamSelected rejects membership operations on the private team or
	// with no team context at all.
	ErrNoTeamSelected = apperrors.New("NO_TEAM_SELECTED", "A medical team must be selected for this operation", http.StatusBadRequest)
	// ErrPatientAlreadyInTeam signals the patient already holds a membership.
	ErrPatientAlreadyInTeam = apperrors.New("PATIENT_ALREADY_IN_TEAM", "Patient is already a member of the team", http.StatusConflict)
	// ErrPatientAlreadyInvited signals an outstanding patient invitation.
	ErrPatientAlreadyInvited = apperrors.New("PATIENT_ALREADY_INVITED", "Patient has already been invited to the team", http.StatusConflict)
	// ErrInvalidTeamCode indicates the 9-digit code resolved to no team.
	ErrInvalidTeamCode = apperrors.New("INVALID_TEAM_CODE", "No team matches this code", http.StatusNotFound)
	// ErrCodeMismatch rejects a join confirmation whose re-entered code does
	// not match the target team.
	ErrCodeMismatch = apperrors.New("CODE_MISMATCH", "The code does not match the invitation's team", http.StatusBadRequest)
)

// JoinSource identifies how a patient arrived at a join flow: by typing a team
// code or by following a received invitation. Exactly one of the two fields is
// set.
type JoinSource struct {
	code       string
	invitation *models.Invitation
}

// ByCode builds a join source from a user-entered team code.
func ByCode(code string) JoinSource {
	return JoinSource{code: teamcode.Normalize(code)}
}

// FromInvitation builds a join source from a received invitation.
func FromInvitation(invitation *models.Invitation) JoinSource {
	return JoinSource{invitation: invitation}
}

// JoinProposal is the resolved target of a join flow, shown to the user for
// confirmation before anything is written.
type JoinProposal struct {
	Team   *models.Team
	Source JoinSource
}

// MembershipService orchestrates the multi-step membership workflows on top
// of the team registry and the invitation ledger. It owns sequencing only;
// each underlying write belongs to exactly one of the two services, and a
// failed step surfaces as-is with no compensation of earlier steps.
type MembershipService struct {
	db          *gorm.DB
	teams       *TeamService
	invitations *InvitationService
	shares      *DirectShareService
	audit       *AuditService
}

// NewMembershipService constructs a MembershipService.
func NewMembershipService(db *gorm.DB, teams *TeamService, invitations *InvitationService, shares *DirectShareService, audit *AuditService) (*MembershipService, error) {
	if db == nil {
		return nil, errors.New("membership service: db is required")
	}
	if teams == nil || invitations == nil || shares == nil {
		return nil, errors.New("membership service: team, invitation and share services are required")
	}
	return &MembershipService{
		db:          db,
		teams:       teams,
		invitations: invitations,
		shares:      shares,
		audit:       audit,
	}, nil
}

// InvitePatient invites a patient by email into a medical team. An accepted
// membership or an outstanding invitation for the same pair each block the
// invite with their own conflict.
func (s *MembershipService) InvitePatient(ctx context.Context, inviter *models.User, teamID, email string) (*models.Invitation, error) {
	ctx = ensureContext(ctx)
	if inviter == nil {
		return nil, errors.New("membership service: inviter is required")
	}
	if teamID == "" || teamID == models.PrivateTeamID {
		return nil, ErrNoTeamSelected
	}

	email = normaliseEmail(email)
	if email == "" {
		return nil, apperrors.NewBadRequest("patient email is required")
	}

	team, err := s.teams.GetByID(ctx, teamID)
	if err != nil {
		return nil, err
	}

	patient, err := s.teams.findUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if patient != nil {
		member, err := s.teams.findMember(ctx, team.ID, patient.ID)
		if err != nil {
			return nil, err
		}
		if member != nil && member.IsAccepted() {
			return nil, ErrPatientAlreadyInTeam
		}
	}

	invitation, err := s.invitations.Create(ctx, CreateInvitationInput{
		WireType:  models.WirePatientInvitation,
		CreatorID: inviter.ID,
		Email:     email,
		TeamID:    &team.ID,
	})
	if errors.Is(err, ErrInvitationExists) {
		return nil, ErrPatientAlreadyInvited
	}
	if err != nil {
		return nil, err
	}

	if patient != nil {
		if err := s.teams.createPendingMembership(ctx, team.ID, patient.ID, models.MemberRolePatient, invitation.ID); err != nil {
			return nil, err
		}
	}

	return invitation, nil
}

// PrepareJoin resolves the team a join source points at, so the caller can
// show it and ask for confirmation. Nothing is written here.
func (s *MembershipService) PrepareJoin(ctx context.Context, source JoinSource) (*JoinProposal, error) {
	ctx = ensureContext(ctx)

	team, err := s.resolveJoinTarget(ctx, source)
	if err != nil {
		return nil, err
	}

	return &JoinProposal{Team: team, Source: source}, nil
}

// ConfirmJoin executes a confirmed join. The target team is re-resolved from
// scratch rather than trusted from the proposal, so a team deleted between
// the two steps fails cleanly. Patient and monitoring invitations require the
// team code to be re-entered and checked against the invitation's team.
func (s *MembershipService) ConfirmJoin(ctx context.Context, user *models.User, source JoinSource, confirmationCode string) error {
	ctx = ensureContext(ctx)
	if user == nil {
		return errors.New("membership service: user is required")
	}

	team, err := s.resolveJoinTarget(ctx, source)
	if err != nil {
		return err
	}

	if source.invitation != nil {
		invitation, err := s.invitations.Get(ctx, source.invitation.ID)
		if err != nil {
			return err
		}
		if invitation.RequiresCodeConfirmation() {
			if teamcode.Normalize(confirmationCode) != team.Code {
				return ErrCodeMismatch
			}
		}
		return s.invitations.Accept(ctx, user, invitation)
	}

	return s.teams.JoinByCode(ctx, user, team.ID)
}

// Reinvite restarts an invited patient's flow with a fresh invitation. Only a
// pending member can be reinvited; an accepted membership is left untouched.
// The three steps run strictly in order: cancel the old invitation, remove the
// stale pending membership, then issue a new invite. A failed removal aborts
// before the new invite; the already-cancelled invitation stays cancelled.
func (s *MembershipService) Reinvite(ctx context.Context, inviter *models.User, teamID, patientID string) (*models.Invitation, error) {
	ctx = ensureContext(ctx)
	if inviter == nil {
		return nil, errors.New("membership service: inviter is required")
	}

	member, err := s.teams.findMember(ctx, teamID, patientID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, ErrNotAMember
	}
	if member.IsAccepted() {
		return nil, ErrPatientAlreadyInTeam
	}
	if member.InvitationID == nil {
		return nil, ErrMissingInvitationID
	}

	var patient models.User
	if err := s.db.WithContext(ctx).First(&patient, "id = ?", patientID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotAMember
		}
		return nil, fmt.Errorf("membership service: load patient: %w", err)
	}

	if err := s.invitations.Cancel(ctx, inviter.ID, *member.InvitationID); err != nil {
		return nil, err
	}

	if err := s.teams.RemovePatient(ctx, inviter, teamID, patientID); err != nil {
		logger.WithModule("membership").Warn("reinvite aborted after stale membership removal failed")
		return nil, err
	}

	invitation, err := s.InvitePatient(ctx, inviter, teamID, patient.Email)
	if err != nil {
		return nil, err
	}

	metrics.MembershipEvents.WithLabelValues("reinvited").Inc()
	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   &inviter.ID,
		Action:   "membership.reinvite",
		Resource: teamID,
		Result:   "success",
		Metadata: map[string]any{"user_id": patientID, "invitation_id": invitation.ID},
	})

	return invitation, nil
}

// RemoveMember removes a team member, dispatching on the member's role:
// medical staff go through the pending/accepted branching, patients through
// the idempotent patient removal.
func (s *MembershipService) RemoveMember(ctx context.Context, actor *models.User, teamID, userID string) error {
	ctx = ensureContext(ctx)

	member, err := s.teams.findMember(ctx, teamID, userID)
	if err != nil {
		return err
	}
	if member == nil {
		return nil
	}

	if member.Role == models.MemberRolePatient {
		return s.teams.RemovePatient(ctx, actor, teamID, userID)
	}
	return s.teams.RemoveMember(ctx, actor, teamID, userID)
}

// ChangeMemberRole forwards an admin grant or revocation to the registry.
// The registry rejects a demotion that would leave the team without an
// accepted admin only through Leave; here the caller is trusted not to be
// demoting themselves out of their own session.
func (s *MembershipService) ChangeMemberRole(ctx context.Context, actor *models.User, teamID, userID string, role models.MemberRole) error {
	return s.teams.ChangeMemberRole(ctx, actor, teamID, userID, role)
}

// Leave removes the caller from the team. Professionals branch on the
// last-admin and last-member rules; patients and caregivers always leave
// through the patient removal path.
func (s *MembershipService) Leave(ctx context.Context, user *models.User, teamID string) error {
	ctx = ensureContext(ctx)
	if user == nil {
		return errors.New("membership service: user is required")
	}

	if user.IsProfessional() {
		return s.teams.Leave(ctx, user, teamID)
	}
	return s.teams.RemovePatient(ctx, user, teamID, user.ID)
}

func (s *MembershipService) resolveJoinTarget(ctx context.Context, source JoinSource) (*models.Team, error) {
	if source.invitation != nil {
		if source.invitation.TeamID == nil {
			return nil, ErrInvalidTarget
		}
		return s.teams.GetByID(ctx, *source.invitation.TeamID)
	}

	team, err := s.teams.GetByCode(ctx, source.code)
	if err != nil {
		return nil, err
	}
	if team == nil {
		return nil, ErrInvalidTeamCode
	}
	return team, nil
}
