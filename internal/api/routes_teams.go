package api

import (
	"github.com/gin-gonic/gin"

	"github.com/careloop/careteam/internal/handlers"
	"github.com/careloop/careteam/internal/middleware"
	"github.com/careloop/careteam/internal/models"
)

func registerTeamRoutes(group *gin.RouterGroup, svc Services) {
	handler := handlers.NewTeamHandler(svc.Users, svc.Teams, svc.Membership)

	professionalOnly := middleware.RequireRole(models.RoleProfessional)

	teams := group.Group("/teams")
	{
		teams.GET("", handler.List)
		teams.POST("", professionalOnly, handler.Create)
		teams.GET("/code/:code", handler.Preview)
		teams.POST("/join", handler.Join)

		teams.GET("/:id", handler.Get)
		teams.PATCH("/:id", professionalOnly, handler.Update)
		teams.DELETE("/:id", professionalOnly, handler.Delete)
		teams.POST("/:id/leave", handler.Leave)

		teams.GET("/:id/members", handler.ListMembers)
		teams.POST("/:id/members", professionalOnly, handler.InviteMember)
		teams.PATCH("/:id/members/:userID/role", professionalOnly, handler.ChangeMemberRole)
		teams.DELETE("/:id/members/:userID", professionalOnly, handler.RemoveMember)

		teams.POST("/:id/patients", professionalOnly, handler.InvitePatient)
		teams.DELETE("/:id/patients/:userID", professionalOnly, handler.RemovePatient)
		teams.POST("/:id/patients/:userID/reinvite", professionalOnly, handler.ReinvitePatient)
	}
}
