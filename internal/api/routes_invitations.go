package api

import (
	"github.com/gin-gonic/gin"

	"github.com/careloop/careteam/internal/handlers"
)

func registerInvitationRoutes(group *gin.RouterGroup, svc Services) {
	handler := handlers.NewInvitationHandler(svc.Users, svc.Invitations, svc.Membership)

	invitations := group.Group("/invitations")
	{
		invitations.GET("/received", handler.Received)
		invitations.GET("/sent", handler.Sent)
		invitations.POST("/:id/accept", handler.Accept)
		invitations.POST("/:id/decline", handler.Decline)
		invitations.DELETE("/:id", handler.Cancel)
	}
}
