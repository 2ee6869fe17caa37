package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/MDastan2005/whatsapp-ai-bot/internal/api/webhook"
	"github.com/MDastan2005/whatsapp-ai-bot/internal/bot"
	"github.com/MDastan2005/whatsapp-ai-bot/internal/config"
	"github.com/MDastan2005/whatsapp-ai-bot/internal/faq"
	"github.com/MDastan2005/whatsapp-ai-bot/internal/middleware"
)

// SetupRoutes configures all application routes
func SetupRoutes(router *gin.Engine, cfg *config.Config, store *faq.Store, dispatcher *bot.Dispatcher) {
	// Apply global middleware
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())

	// Setup route groups
	SetupHealthRoutes(router, store)
	SetupSystemRoutes(router, cfg, store, dispatcher)
	webhook.RegisterRoutes(router, cfg, dispatcher)
	Setup404Handler(router)
}
