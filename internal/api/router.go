package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/careloop/careteam/internal/auth"
	"github.com/careloop/careteam/internal/handlers"
	"github.com/careloop/careteam/internal/middleware"
	"github.com/careloop/careteam/internal/services"
)

// Services bundles the service layer the router wires handlers onto.
type Services struct {
	Users       *services.UserService
	Teams       *services.TeamService
	Invitations *services.InvitationService
	Shares      *services.DirectShareService
	Membership  *services.MembershipService
}

// NewRouter assembles the gin engine with all routes and middleware.
func NewRouter(db *gorm.DB, jwt *auth.JWTService, svc Services) *gin.Engine {
	router := gin.New()
	router.Use(
		middleware.Recovery(),
		middleware.Logger(),
		middleware.Metrics(),
		middleware.SecurityHeaders(),
	)
	router.NoRoute(middleware.NotFoundHandler)

	health := handlers.NewHealthHandler(db)
	router.GET("/health", health.Check)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authHandler := handlers.NewAuthHandler(svc.Users, jwt)

	apiGroup := router.Group("/api")
	{
		authGroup := apiGroup.Group("/auth")
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.GET("/me", middleware.Auth(jwt), authHandler.Me)

		protected := apiGroup.Group("")
		protected.Use(middleware.Auth(jwt))

		registerTeamRoutes(protected, svc)
		registerInvitationRoutes(protected, svc)
		registerShareRoutes(protected, svc)
	}

	return router
}
