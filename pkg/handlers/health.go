package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

func (h *Handlers) HealthCheck(c *gin.Context) {
	log.Debug("Health check endpoint hit")
	clients := 0
	if h.hub != nil {
		clients = h.hub.Count()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":           "ok",
		"message":          "Manim Studio API is running",
		"renderMode":       h.renderMode,
		"websocketClients": clients,
	})
}
