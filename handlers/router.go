package handlers

import (
	"backoffice-svc/circuitbreaker"
	"backoffice-svc/middleware"

	"github.com/gin-gonic/gin"
)

// Routes holds everything the admin API serves.
type Routes struct {
	Analytics *AnalyticsHandler
	Bulk      *BulkHandler
	Auth      *AuthHandler
	Breaker   *circuitbreaker.CircuitBreaker
	JWTSecret []byte
}

// Register mounts the public and the authenticated routes on router.
func Register(router *gin.Engine, r Routes) {
	router.GET("/health", HealthCheck)
	router.GET("/ready", Readiness(r.Breaker))
	router.GET("/metrics", middleware.PrometheusHandler())
	router.POST("/auth/login", r.Auth.Login)

	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(r.JWTSecret))
	{
		api.GET("/analytics/kpis", r.Analytics.GetKPIs)
		api.GET("/analytics/sales-series", r.Analytics.GetSalesSeries)
		api.GET("/analytics/breakdown/:dimension", r.Analytics.GetBreakdown)
		api.GET("/analytics/anomalies", r.Analytics.GetAnomalies)
		api.GET("/analytics/top-products", r.Analytics.GetTopProducts)
		api.GET("/customers/:id/insights", r.Analytics.GetCustomerInsights)

		api.POST("/bulk/:entityType", r.Bulk.Execute)
		api.POST("/orders/:id/cancel", r.Bulk.CancelOrder)
		api.POST("/orders/:id/refund", r.Bulk.RefundOrder)
	}
}
