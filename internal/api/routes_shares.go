package api

import (
	"github.com/gin-gonic/gin"

	"github.com/careloop/careteam/internal/handlers"
)

func registerShareRoutes(group *gin.RouterGroup, svc Services) {
	handler := handlers.NewShareHandler(svc.Users, svc.Shares)

	shares := group.Group("/shares")
	{
		shares.GET("", handler.List)
		shares.POST("", handler.Invite)
		shares.DELETE("/:userID", handler.Remove)
	}
}
