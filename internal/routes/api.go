package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MDastan2005/whatsapp-ai-bot/internal/bot"
	"github.com/MDastan2005/whatsapp-ai-bot/internal/config"
	"github.com/MDastan2005/whatsapp-ai-bot/internal/controllers"
	"github.com/MDastan2005/whatsapp-ai-bot/internal/faq"
)

// SetupSystemRoutes configures status, stats and admin endpoints
func SetupSystemRoutes(router *gin.Engine, cfg *config.Config, store *faq.Store, dispatcher *bot.Dispatcher) {
	systemController := controllers.NewSystemController(cfg, store, dispatcher)

	// Root endpoint doubles as the service overview
	router.GET("/", systemController.Root)
	router.GET("/status", systemController.Status)
	router.GET("/stats", systemController.Stats)
	router.POST("/reload-faq", systemController.ReloadFAQ)
}

// Setup404Handler configures the 404 handler
func Setup404Handler(router *gin.Engine) {
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Not Found",
			"message": "The requested resource was not found",
			"path":    c.Request.URL.Path,
		})
	})
}
