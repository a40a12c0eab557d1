package handlers

import (
	"net/http"

	"backoffice-svc/bulk"
	"backoffice-svc/middleware"
	"backoffice-svc/models"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type BulkRequest struct {
	IDs      []string        `json:"ids"`
	Mutation models.Mutation `json:"mutation"`
}

type RefundRequest struct {
	Amount *decimal.Decimal `json:"amount"`
	Reason string           `json:"reason"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

type BulkHandler struct {
	svc    *bulk.Service
	logger *zap.Logger
}

func NewBulkHandler(svc *bulk.Service, logger *zap.Logger) *BulkHandler {
	return &BulkHandler{svc: svc, logger: logger}
}

// Execute runs POST /bulk/:entityType.
func (h *BulkHandler) Execute(c *gin.Context) {
	var req BulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.run(c, c.Param("entityType"), req.IDs, req.Mutation)
}

func (h *BulkHandler) CancelOrder(c *gin.Context) {
	var req CancelRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	h.run(c, string(models.EntityOrder), []string{c.Param("id")}, models.Mutation{
		Kind:   models.MutationStatusChange,
		Status: string(models.OrderStatusCancelled),
		Reason: req.Reason,
	})
}

func (h *BulkHandler) RefundOrder(c *gin.Context) {
	var req RefundRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	h.run(c, string(models.EntityOrder), []string{c.Param("id")}, models.Mutation{
		Kind:   models.MutationRefund,
		Amount: req.Amount,
		Reason: req.Reason,
	})
}

func (h *BulkHandler) run(c *gin.Context, entity string, ids []string, m models.Mutation) {
	ctx, span := otel.Tracer("backoffice-service").Start(c.Request.Context(), "ExecuteBulk")
	defer span.End()
	span.SetAttributes(
		attribute.String("bulk.entity", entity),
		attribute.String("bulk.operation", string(m.Kind)),
	)

	actor := c.GetString(middleware.ActorKey)
	result, err := h.svc.Execute(ctx, entity, ids, m, actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(bulk.HTTPStatus(result), result)
}
