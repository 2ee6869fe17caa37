package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MDastan2005/whatsapp-ai-bot/internal/bot"
	"github.com/MDastan2005/whatsapp-ai-bot/internal/config"
	"github.com/MDastan2005/whatsapp-ai-bot/internal/faq"
	"github.com/MDastan2005/whatsapp-ai-bot/internal/utils"
)

type SystemController struct {
	cfg        *config.Config
	store      *faq.Store
	dispatcher *bot.Dispatcher
}

func NewSystemController(cfg *config.Config, store *faq.Store, dispatcher *bot.Dispatcher) *SystemController {
	return &SystemController{cfg: cfg, store: store, dispatcher: dispatcher}
}

// Root godoc
// @Summary Service overview
// @Description Report that the service is running, with bot statistics
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (s *SystemController) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "running",
		"service":   s.cfg.ServiceName,
		"bot_stats": s.dispatcher.Stats(),
		"timestamp": time.Now().UTC(),
	})
}

// Status godoc
// @Summary Get system status
// @Description Get current system status information
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /status [get]
func (s *SystemController) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":     s.cfg.ServiceName,
		"version":     "1.0.0",
		"environment": s.cfg.Environment,
		"model":       s.cfg.OpenAIModel,
		"timestamp":   time.Now().UTC(),
	})
}

// Stats godoc
// @Summary Get bot statistics
// @Description Get FAQ corpus, session and dispatch statistics
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /stats [get]
func (s *SystemController) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"faq":       s.store.Stats(),
		"dispatch":  s.dispatcher.Stats(),
		"timestamp": time.Now().UTC(),
	})
}

// ReloadFAQ godoc
// @Summary Reload the FAQ corpus
// @Description Re-read the FAQ file from disk. On failure the previous corpus stays active.
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 500 {object} map[string]interface{}
// @Router /reload-faq [post]
func (s *SystemController) ReloadFAQ(c *gin.Context) {
	if err := s.store.Reload(); err != nil {
		utils.Zlog.Error("FAQ reload failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  err.Error(),
		})
		return
	}

	utils.Zlog.Info("FAQ corpus reloaded", zap.Int("entries", s.store.Len()))
	c.JSON(http.StatusOK, gin.H{
		"status":      "reloaded",
		"faq_entries": s.store.Len(),
	})
}
