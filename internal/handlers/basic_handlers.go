package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

var startTime = time.Now()

// HealthCheckHandler reports process liveness and uptime.
// GET /health
func HealthCheckHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ok":      true,
		"service": "otp-oracle",
		"uptime":  int64(time.Since(startTime).Seconds()),
	})
}
