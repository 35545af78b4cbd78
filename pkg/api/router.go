// Package api exposes the automation orchestrator over HTTP.
package api

import (
	"net/http"

	"github.com/entrhq/regpilot/pkg/api/handlers"
	"github.com/entrhq/regpilot/pkg/api/middleware"
	"github.com/entrhq/regpilot/pkg/auth"
	"github.com/entrhq/regpilot/pkg/automation"
	"github.com/entrhq/regpilot/pkg/logging"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Deps are the collaborators the router serves.
type Deps struct {
	Orchestrator   *automation.Orchestrator
	JWT            *auth.JWTManager
	Store          handlers.Pinger
	Logger         *logging.Logger
	AllowedOrigins []string
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(deps Deps) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(corsConfig(deps.AllowedOrigins)))
	router.Use(middleware.LoggingMiddleware(deps.Logger))

	router.GET("/healthz", handlers.Health(deps.Store))

	automationHandler := handlers.NewAutomationHandler(deps.Orchestrator)

	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(deps.JWT))
	{
		sessions := v1.Group("/automation")
		sessions.GET("/sessions", automationHandler.ListSessions)
		sessions.POST("/sessions", automationHandler.CreateSession)
		sessions.GET("/sessions/:id", automationHandler.GetSession)
		sessions.POST("/sessions/:id/otp", automationHandler.SubmitOTP)
		sessions.DELETE("/sessions/:id", automationHandler.CancelSession)

		// Kind-specific start routes
		sessions.POST("/gst", automationHandler.CreateFor(automation.KindTaxRegistration))
		sessions.POST("/msme", automationHandler.CreateFor(automation.KindSmallEnterprise))
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, handlers.ErrorResponse{Error: "route not found", Code: "not_found"})
	})
	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Authorization", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}
