package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthHandler liveness endpoint for the agent itself
type HealthHandler struct{}

// NewHealthHandler creates health handler
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// Healthz reports agent liveness
func (h *HealthHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
