package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MDastan2005/whatsapp-ai-bot/internal/faq"
)

type HealthController struct {
	store *faq.Store
}

func NewHealthController(store *faq.Store) *HealthController {
	return &HealthController{store: store}
}

// HealthCheck godoc
// @Summary Check application health
// @Description Check if the application and FAQ corpus are healthy
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health [get]
func (h *HealthController) HealthCheck(c *gin.Context) {
	if h.store.Len() == 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "unhealthy",
			"faq":       "empty",
			"timestamp": time.Now().UTC(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"faq":         "loaded",
		"faq_entries": h.store.Len(),
		"timestamp":   time.Now().UTC(),
	})
}

// Liveness godoc
// @Summary Liveness probe
// @Description Check if the application is alive
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health/live [get]
func (h *HealthController) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now().UTC(),
	})
}

// Readiness godoc
// @Summary Readiness probe
// @Description Check if the application is ready to serve traffic
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/ready [get]
func (h *HealthController) Readiness(c *gin.Context) {
	if h.store.Len() == 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "not ready",
			"faq":       "empty",
			"timestamp": time.Now().UTC(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"faq":       "loaded",
		"timestamp": time.Now().UTC(),
	})
}
