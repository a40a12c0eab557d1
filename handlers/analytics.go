package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"backoffice-svc/analytics"
	"backoffice-svc/models"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type AnalyticsHandler struct {
	agg         *analytics.Aggregator
	defaultDays int
	logger      *zap.Logger
}

func NewAnalyticsHandler(agg *analytics.Aggregator, defaultDays int, logger *zap.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{agg: agg, defaultDays: defaultDays, logger: logger}
}

func (h *AnalyticsHandler) GetKPIs(c *gin.Context) {
	ctx, span := otel.Tracer("backoffice-service").Start(c.Request.Context(), "GetKPIs")
	defer span.End()

	days, err := h.days(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	ctx, cancel, err := withCallerTimeout(ctx, c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	defer cancel()

	span.SetAttributes(attribute.Int("analytics.days", days))
	env, err := h.agg.GetKPIs(ctx, days)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, env)
}

func (h *AnalyticsHandler) GetSalesSeries(c *gin.Context) {
	ctx, span := otel.Tracer("backoffice-service").Start(c.Request.Context(), "GetSalesSeries")
	defer span.End()

	days, err := h.days(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	ctx, cancel, err := withCallerTimeout(ctx, c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	defer cancel()

	env, err := h.agg.GetSalesSeries(ctx, days)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, env)
}

func (h *AnalyticsHandler) GetBreakdown(c *gin.Context) {
	ctx, span := otel.Tracer("backoffice-service").Start(c.Request.Context(), "GetBreakdown")
	defer span.End()

	dim, err := analytics.ParseDimension(c.Param("dimension"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	level, err := analytics.ParseGeoLevel(c.Query("level"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	days, err := h.days(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	ctx, cancel, err := withCallerTimeout(ctx, c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	defer cancel()

	span.SetAttributes(attribute.String("analytics.dimension", string(dim)))
	env, err := h.agg.GetBreakdown(ctx, dim, level, days)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, env)
}

func (h *AnalyticsHandler) GetAnomalies(c *gin.Context) {
	ctx, span := otel.Tracer("backoffice-service").Start(c.Request.Context(), "GetAnomalies")
	defer span.End()

	days, err := h.days(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	ctx, cancel, err := withCallerTimeout(ctx, c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	defer cancel()

	env, err := h.agg.GetAnomalies(ctx, days)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, env)
}

func (h *AnalyticsHandler) GetTopProducts(c *gin.Context) {
	ctx, span := otel.Tracer("backoffice-service").Start(c.Request.Context(), "GetTopProducts")
	defer span.End()

	limit, err := intQuery(c, "limit", 10)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	ctx, cancel, err := withCallerTimeout(ctx, c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	defer cancel()

	env, err := h.agg.GetTopProducts(ctx, limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, env)
}

func (h *AnalyticsHandler) GetCustomerInsights(c *gin.Context) {
	ctx, span := otel.Tracer("backoffice-service").Start(c.Request.Context(), "GetCustomerInsights")
	defer span.End()

	id := c.Param("id")
	span.SetAttributes(attribute.String("customer.id", id))
	ctx, cancel, err := withCallerTimeout(ctx, c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	defer cancel()

	env, err := h.agg.GetCustomerInsights(ctx, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, env)
}

func (h *AnalyticsHandler) days(c *gin.Context) (int, error) {
	return intQuery(c, "days", h.defaultDays)
}

func intQuery(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, models.NewValidationError(name, "must be an integer, got %q", raw)
	}
	return n, nil
}

// withCallerTimeout applies an optional ?timeout= deadline on top of the request context.
func withCallerTimeout(ctx context.Context, c *gin.Context) (context.Context, context.CancelFunc, error) {
	raw := c.Query("timeout")
	if raw == "" {
		return ctx, func() {}, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return ctx, nil, models.NewValidationError("timeout", "must be a positive duration, got %q", raw)
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	return ctx, cancel, nil
}
