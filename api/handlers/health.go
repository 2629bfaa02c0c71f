package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/taskcloud/mailbridge/interfaces"
)

// HealthCheck provides a simple health check endpoint
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Status returns the stats of the most recent polling pass
func Status(orchestrator interfaces.PollOrchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, orchestrator.LastPass())
	}
}
