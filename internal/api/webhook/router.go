package webhook

import (
	"github.com/gin-gonic/gin"

	"github.com/MDastan2005/whatsapp-ai-bot/internal/bot"
	"github.com/MDastan2005/whatsapp-ai-bot/internal/config"
	"github.com/MDastan2005/whatsapp-ai-bot/internal/utils"
)

// RegisterRoutes registers the webhook endpoints
func RegisterRoutes(router *gin.Engine, cfg *config.Config, dispatcher *bot.Dispatcher) {
	ctrl := NewController(cfg, dispatcher)

	// Meta sends GET for verification, POST for messages
	router.GET("/webhook", ctrl.VerifyWebhook)
	router.POST("/webhook", ctrl.Webhook)

	utils.Zlog.Info("Webhook routes registered")
}
