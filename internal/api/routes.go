package api

import (
	"github.com/gin-gonic/gin"

	"github.com/modwatch/modwatch/internal/telemetry"
)

// SetupRoutes configures all API routes
func SetupRoutes(router *gin.Engine, handler *Handler, tel *telemetry.Provider) {
	// Health and readiness checks
	router.GET("/health", handler.HealthCheck)
	router.GET("/ready", handler.ReadyCheck)

	if tel != nil {
		router.GET("/metrics", gin.WrapH(tel.Handler()))
	}

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		v1.POST("/classify", handler.Classify)         // POST /api/v1/classify
		v1.GET("/rules", handler.ListRules)            // GET /api/v1/rules
		v1.GET("/stats", handler.GetStats)             // GET /api/v1/stats
		v1.GET("/records/:item_id", handler.GetRecord) // GET /api/v1/records/:item_id
	}
}
