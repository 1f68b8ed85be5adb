package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/careloop/careteam/internal/models"
	"github.com/careloop/careteam/internal/services"
	"github.com/careloop/careteam/pkg/response"
	"github.com/careloop/careteam/pkg/teamcode"
)

// TeamHandler exposes team and membership endpoints.
type TeamHandler struct {
	users      *services.UserService
	teams      *services.TeamService
	membership *services.MembershipService
}

// NewTeamHandler constructs a TeamHandler.
func NewTeamHandler(users *services.UserService, teams *services.TeamService, membership *services.MembershipService) *TeamHandler {
	return &TeamHandler{users: users, teams: teams, membership: membership}
}

type addressPayload struct {
	Line1   string `json:"line1" validate:"required"`
	Line2   string `json:"line2"`
	Zip     string `json:"zip" validate:"required"`
	City    string `json:"city" validate:"required"`
	Country string `json:"country" validate:"required"`
}

func (a addressPayload) toModel() models.Address {
	return models.Address{
		Line1:   a.Line1,
		Line2:   a.Line2,
		Zip:     a.Zip,
		City:    a.City,
		Country: a.Country,
	}
}

type createTeamRequest struct {
	Name    string         `json:"name" validate:"required"`
	Phone   string         `json:"phone" validate:"required"`
	Email   string         `json:"email" validate:"omitempty,email"`
	Address addressPayload `json:"address" validate:"required"`
}

type updateTeamRequest struct {
	Name    *string         `json:"name"`
	Phone   *string         `json:"phone"`
	Email   *string         `json:"email" validate:"omitempty,email"`
	Address *addressPayload `json:"address"`
}

type joinTeamRequest struct {
	Code string `json:"code" validate:"required"`
}

type inviteMemberRequest struct {
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"required,oneof=admin member"`
}

type changeRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=admin member"`
}

type invitePatientRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// teamPreviewResponse is the join-confirmation view of a team. The join code
// is rendered in its grouped display form.
type teamPreviewResponse struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	CodeDisplay string         `json:"code_display"`
	Phone       string         `json:"phone"`
	Address     models.Address `json:"address"`
}

// List handles GET /api/teams.
func (h *TeamHandler) List(c *gin.Context) {
	user, err := currentUser(c, h.users)
	if err != nil {
		response.Error(c, err)
		return
	}

	teams, err := h.teams.List(requestContext(c, user), user)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, teams)
}

// Create handles POST /api/teams.
func (h *TeamHandler) Create(c *gin.Context) {
	user, err := currentUser(c, h.users)
	if err != nil {
		response.Error(c, err)
		return
	}

	var req createTeamRequest
	if err := bindAndValidate(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	team, err := h.teams.Create(requestContext(c, user), user, services.CreateTeamInput{
		Name:    req.Name,
		Phone:   req.Phone,
		Email:   req.Email,
		Address: req.Address.toModel(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, team)
}

// Get handles GET /api/teams/:id.
func (h *TeamHandler) Get(c *gin.Context) {
	user, err := currentUser(c, h.users)
	if err != nil {
		response.Error(c, err)
		return
	}

	team, err := h.teams.GetByID(requestContext(c, user), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, team)
}

// Update handles PATCH /api/teams/:id.
func (h *TeamHandler) Update(c *gin.Context) {
	user, err := currentUser(c, h.users)
	if err != nil {
		response.Error(c, err)
		return
	}

	var req updateTeamRequest
	if err := bindAndValidate(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	input := services.UpdateTeamInput{
		Name:  req.Name,
		Phone: req.Phone,
		Email: req.Email,
	}
	if req.Address != nil {
		addr := req.Address.toModel()
		input.Address = &addr
	}

	team, err := h.teams.Update(requestContext(c, user), user, c.Param("id"), input)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, team)
}

// Delete handles DELETE /api/teams/:id.
func (h *TeamHandler) Delete(c *gin.Context) {
	user, err := currentUser(c, h.users)
	if err != nil {
		response.Error(c, err)
		return
	}

	if err := h.teams.Delete(requestContext(c, user), user, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// Preview handles GET /api/teams/code/:code, resolving the team a join code
// points at without joining it.
func (h *TeamHandler) Preview(c *gin.Context) {
	user, err := currentUser(c, h.users)
	if err != nil {
		response.Error(c, err)
		return
	}

	proposal, err := h.membership.PrepareJoin(requestContext(c, user), services.ByCode(c.Param("code")))
	if err != nil {
		response.Error(c, err)
		return
	}

	team := proposal.Team
	response.Success(c, http.StatusOK, teamPreviewResponse{
		ID:          team.ID,
		Name:        team.Name,
		CodeDisplay: teamcode.Format(team.Code),
		Phone:       team.Phone,
		Address:     team.Address,
	})
}

// Join handles POST /api/teams/join: a confirmed code-based join.
func (h *TeamHandler) Join(c *gin.Context) {
	user, err := currentUser(c, h.users)
	if err != nil {
		response.Error(c, err)
		return
	}

	var req joinTeamRequest
	if err := bindAndValidate(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	if err := h.membership.ConfirmJoin(requestContext(c, user), user, services.ByCode(req.Code), req.Code); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"joined": true})
}

// ListMembers handles GET /api/teams/:id/members.
func (h *TeamHandler) ListMembers(c *gin.Context) {
	user, err := currentUser(c, h.users)
	if err != nil {
		response.Error(c, err)
		return
	}

	members, err := h.teams.ListMembers(requestContext(c, user), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, members)
}

// InviteMember handles POST /api/teams/:id/members.
func (h *TeamHandler) InviteMember(c *gin.Context) {
	user, err := currentUser(c, h.users)
	if err != nil {
		response.Error(c, err)
		return
	}

	var req inviteMemberRequest
	if err := bindAndValidate(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	invitation, err := h.teams.InviteMember(requestContext(c, user), user, c.Param("id"), req.Email, models.MemberRole(req.Role))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, invitation)
}

// ChangeMemberRole handles PATCH /api/teams/:id/members/:userID/role.
func (h *TeamHandler) ChangeMemberRole(c *gin.Context) {
	user, err := currentUser(c, h.users)
	if err != nil {
		response.Error(c, err)
		return
	}

	var req changeRoleRequest
	if err := bindAndValidate(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	err = h.membership.ChangeMemberRole(requestContext(c, user), user, c.Param("id"), c.Param("userID"), models.MemberRole(req.Role))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"updated": true})
}

// RemoveMember handles DELETE /api/teams/:id/members/:userID.
func (h *TeamHandler) RemoveMember(c *gin.Context) {
	user, err := currentUser(c, h.users)
	if err != nil {
		response.Error(c, err)
		return
	}

	if err := h.membership.RemoveMember(requestContext(c, user), user, c.Param("id"), c.Param("userID")); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"removed": true})
}

// Leave handles POST /api/teams/:id/leave.
func (h *TeamHandler) Leave(c *gin.Context) {
	user, err := currentUser(c, h.users)
	if err != nil {
		response.Error(c, err)
		return
	}

	if err := h.membership.Leave(requestContext(c, user), user, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"left": true})
}

// InvitePatient handles POST /api/teams/:id/patients.
func (h *TeamHandler) InvitePatient(c *gin.Context) {
	user, err := currentUser(c, h.users)
	if err != nil {
		response.Error(c, err)
		return
	}

	var req invitePatientRequest
	if err := bindAndValidate(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	invitation, err := h.membership.InvitePatient(requestContext(c, user), user, c.Param("id"), req.Email)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, invitation)
}

// RemovePatient handles DELETE /api/teams/:id/patients/:userID.
func (h *TeamHandler) RemovePatient(c *gin.Context) {
	user, err := currentUser(c, h.users)
	if err != nil {
		response.Error(c, err)
		return
	}

	if err := h.teams.RemovePatient(requestContext(c, user), user, c.Param("id"), c.Param("userID")); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"removed": true})
}

// ReinvitePatient handles POST /api/teams/:id/patients/:userID/reinvite.
func (h *TeamHandler) ReinvitePatient(c *gin.Context) {
	user, err := currentUser(c, h.users)
	if err != nil {
		response.Error(c, err)
		return
	}

	invitation, err := h.membership.Reinvite(requestContext(c, user), user, c.Param("id"), c.Param("userID"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, invitation)
}
