package api

import (
	"github.com/gin-gonic/gin"
)

// SetupRoutes sets up the API routes
func SetupRoutes(handler *Handler) *gin.Engine {
	router := gin.New()

	// Middleware
	router.Use(Recovery())
	router.Use(CORS())
	router.Use(gin.Logger())

	// Health check
	router.GET("/health", handler.HealthCheck)

	// API v1
	v1 := router.Group("/api/v1")
	{
		owners := v1.Group("/owners/:owner")
		{
			owners.GET("/runs", handler.GetRuns)
			owners.GET("/runs/latest", handler.GetLatestRun)
			owners.GET("/stats", handler.GetOwnerStats)
		}
	}

	return router
}
