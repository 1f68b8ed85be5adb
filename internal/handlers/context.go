package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/careloop/careteam/internal/auditctx"
	"github.com/careloop/careteam/internal/middleware"
	"github.com/careloop/careteam/internal/models"
	"github.com/careloop/careteam/internal/services"
	apperrors "github.com/careloop/careteam/pkg/errors"
)

// currentUser resolves the authenticated account for the request.
func currentUser(c *gin.Context, users *services.UserService) (*models.User, error) {
	id := c.GetString(middleware.CtxUserIDKey)
	if id == "" {
		return nil, apperrors.ErrUnauthorized
	}
	return users.GetByID(c.Request.Context(), id)
}

// requestContext returns the request context enriched with the acting user,
// so service-layer audit entries can attribute writes.
func requestContext(c *gin.Context, user *models.User) context.Context {
	ctx := c.Request.Context()
	if user == nil {
		return ctx
	}
	return auditctx.WithActor(ctx, auditctx.Actor{UserID: user.ID, Email: user.Email})
}
