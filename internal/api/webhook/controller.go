package webhook

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MDastan2005/whatsapp-ai-bot/internal/bot"
	"github.com/MDastan2005/whatsapp-ai-bot/internal/config"
	"github.com/MDastan2005/whatsapp-ai-bot/internal/utils"
	"github.com/MDastan2005/whatsapp-ai-bot/internal/whatsapp"
)

// Controller handles WhatsApp webhook requests
type Controller struct {
	cfg        *config.Config
	dispatcher *bot.Dispatcher
}

// NewController creates a new webhook controller
func NewController(cfg *config.Config, dispatcher *bot.Dispatcher) *Controller {
	return &Controller{
		cfg:        cfg,
		dispatcher: dispatcher,
	}
}

// VerifyWebhook handles Meta's webhook verification handshake
// GET /webhook
func (c *Controller) VerifyWebhook(ctx *gin.Context) {
	mode := ctx.Query("hub.mode")
	token := ctx.Query("hub.verify_token")
	challenge := ctx.Query("hub.challenge")

	if mode == "subscribe" && token == c.cfg.WebhookVerifyToken {
		utils.Zlog.Info("Webhook verified")
		ctx.String(http.StatusOK, challenge)
		return
	}

	utils.Zlog.Warn("Webhook verification rejected",
		zap.String("mode", mode))
	ctx.JSON(http.StatusForbidden, gin.H{
		"error": "verification_failed",
	})
}

// Webhook handles incoming WhatsApp webhook events
// POST /webhook
func (c *Controller) Webhook(ctx *gin.Context) {
	body, err := ctx.GetRawData()
	if err != nil {
		utils.Zlog.Error("Failed to read webhook body", zap.Error(err))
		ctx.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid_body",
		})
		return
	}

	// Meta signs the raw body; verify before parsing when a secret is
	// configured.
	if c.cfg.WhatsAppAppSecret != "" {
		signature := ctx.GetHeader("X-Hub-Signature-256")
		if err := whatsapp.VerifySignature(signature, body, c.cfg.WhatsAppAppSecret); err != nil {
			utils.Zlog.Warn("Webhook signature rejected", zap.Error(err))
			ctx.JSON(http.StatusForbidden, gin.H{
				"error": "invalid_signature",
			})
			return
		}
	}

	var payload whatsapp.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		utils.Zlog.Error("Failed to parse webhook payload", zap.Error(err))
		ctx.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid_payload",
		})
		return
	}

	if len(payload.Entry) == 0 {
		utils.Zlog.Debug("Empty webhook payload")
		ctx.Status(http.StatusOK)
		return
	}

	eventID := uuid.NewString()
	utils.Zlog.Info("Received webhook event",
		zap.String("event_id", eventID),
		zap.Int("entries", len(payload.Entry)))

	// Respond immediately; Meta requires a fast 2xx and retries the
	// whole event otherwise. Processing continues in the background and
	// partial failures stay internal.
	ctx.Status(http.StatusOK)

	go func() {
		outcomes := c.dispatcher.HandleEvent(context.Background(), &payload)
		for _, out := range outcomes {
			if out.Err != nil {
				utils.Zlog.Error("Message processing failed",
					zap.String("event_id", eventID),
					zap.String("message_id", out.MessageID),
					zap.String("status", out.Status.String()),
					zap.Error(out.Err))
			}
		}
	}()
}
