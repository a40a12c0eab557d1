package handlers

import (
	"errors"
	"net/http"

	"backoffice-svc/middleware"
	"backoffice-svc/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// respondError maps domain errors to status codes. Unexpected errors are logged
// and hidden from the client.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	var verr *models.ValidationError
	var inv *models.InvariantViolation
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "field": verr.Field})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.As(err, &inv):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": inv.Error(), "rule": inv.Rule})
	case errors.Is(err, models.ErrSourceUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Record source unavailable"})
	default:
		traceID := middleware.GetTraceID(c.Request.Context())
		logger.Error("Request failed", zap.String("trace_id", traceID), zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
