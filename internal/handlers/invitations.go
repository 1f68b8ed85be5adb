package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/careloop/careteam/internal/services"
	"github.com/careloop/careteam/pkg/response"
)

// InvitationHandler exposes the invitation ledger endpoints.
type InvitationHandler struct {
	users       *services.UserService
	invitations *services.InvitationService
	membership  *services.MembershipService
}

// NewInvitationHandler constructs an InvitationHandler.
func NewInvitationHandler(users *services.UserService, invitations *services.InvitationService, membership *services.MembershipService) *InvitationHandler {
	return &InvitationHandler{users: users, invitations: invitations, membership: membership}
}

type acceptInvitationRequest struct {
	// Code carries the re-entered team code for invitation kinds that require
	// code confirmation. Other kinds ignore it.
	Code string `json:"code"`
}

// Received handles GET /api/invitations/received.
func (h *InvitationHandler) Received(c *gin.Context) {
	user, err := currentUser(c, h.users)
	if err != nil {
		response.Error(c, err)
		return
	}

	items, err := h.invitations.Received(requestContext(c, user), user)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, items)
}

// Sent handles GET /api/invitations/sent.
func (h *InvitationHandler) Sent(c *gin.Context) {
	user, err := currentUser(c, h.users)
	if err != nil {
		response.Error(c, err)
		return
	}

	items, err := h.invitations.Sent(requestContext(c, user), user.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, items)
}

// Accept handles POST /api/invitations/:id/accept. Team invitations go
// through the join confirmation flow; direct shares accept immediately.
func (h *InvitationHandler) Accept(c *gin.Context) {
	user, err := currentUser(c, h.users)
	if err != nil {
		response.Error(c, err)
		return
	}

	var req acceptInvitationRequest
	if c.Request.ContentLength > 0 {
		if err := bindAndValidate(c, &req); err != nil {
			response.Error(c, err)
			return
		}
	}

	ctx := requestContext(c, user)
	invitation, err := h.invitations.Get(ctx, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	if invitation.TeamID != nil {
		err = h.membership.ConfirmJoin(ctx, user, services.FromInvitation(invitation), req.Code)
	} else {
		err = h.invitations.Accept(ctx, user, invitation)
	}
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"accepted": true})
}

// Decline handles POST /api/invitations/:id/decline.
func (h *InvitationHandler) Decline(c *gin.Context) {
	user, err := currentUser(c, h.users)
	if err != nil {
		response.Error(c, err)
		return
	}

	ctx := requestContext(c, user)
	invitation, err := h.invitations.Get(ctx, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	if err := h.invitations.Decline(ctx, user, invitation); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"declined": true})
}

// Cancel handles DELETE /api/invitations/:id. A missing invitation still
// reports success so retried cancellations stay safe; an invitation the
// caller may not retract surfaces as not found.
func (h *InvitationHandler) Cancel(c *gin.Context) {
	user, err := currentUser(c, h.users)
	if err != nil {
		response.Error(c, err)
		return
	}

	if err := h.invitations.Cancel(requestContext(c, user), user.ID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"cancelled": true})
}
