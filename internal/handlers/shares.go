package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/careloop/careteam/internal/services"
	"github.com/careloop/careteam/pkg/response"
)

// ShareHandler exposes direct-share endpoints.
type ShareHandler struct {
	users  *services.UserService
	shares *services.DirectShareService
}

// NewShareHandler constructs a ShareHandler.
func NewShareHandler(users *services.UserService, shares *services.DirectShareService) *ShareHandler {
	return &ShareHandler{users: users, shares: shares}
}

type inviteCaregiverRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// List handles GET /api/shares.
func (h *ShareHandler) List(c *gin.Context) {
	user, err := currentUser(c, h.users)
	if err != nil {
		response.Error(c, err)
		return
	}

	shares, err := h.shares.List(requestContext(c, user), user)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, shares)
}

// Invite handles POST /api/shares.
func (h *ShareHandler) Invite(c *gin.Context) {
	user, err := currentUser(c, h.users)
	if err != nil {
		response.Error(c, err)
		return
	}

	var req inviteCaregiverRequest
	if err := bindAndValidate(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	invitation, err := h.shares.InviteCaregiver(requestContext(c, user), user, req.Email)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, invitation)
}

// Remove handles DELETE /api/shares/:userID.
func (h *ShareHandler) Remove(c *gin.Context) {
	user, err := currentUser(c, h.users)
	if err != nil {
		response.Error(c, err)
		return
	}

	if err := h.shares.Remove(requestContext(c, user), user, c.Param("userID")); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"removed": true})
}
