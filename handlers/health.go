package handlers

import (
	"net/http"

	"backoffice-svc/circuitbreaker"

	"github.com/gin-gonic/gin"
)

func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "backoffice-service"})
}

// Readiness reports the primary breaker; an open breaker means reads are
// degraded and writes are refused.
func Readiness(cb *circuitbreaker.CircuitBreaker) gin.HandlerFunc {
	return func(c *gin.Context) {
		state := cb.GetState()
		status := http.StatusOK
		if state == circuitbreaker.StateOpen {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"primary": state.String()})
	}
}
