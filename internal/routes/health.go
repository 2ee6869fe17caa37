package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/MDastan2005/whatsapp-ai-bot/internal/controllers"
	"github.com/MDastan2005/whatsapp-ai-bot/internal/faq"
)

// SetupHealthRoutes configures health check endpoints
func SetupHealthRoutes(router *gin.Engine, store *faq.Store) {
	healthController := controllers.NewHealthController(store)

	// Health check endpoints
	router.GET("/health", healthController.HealthCheck)
	router.GET("/health/live", healthController.Liveness)
	router.GET("/health/ready", healthController.Readiness)
}
