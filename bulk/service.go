package bulk

import (
	"context"
	"net/http"

	"backoffice-svc/audit"
	"backoffice-svc/cache"
	"backoffice-svc/gateway"
	"backoffice-svc/models"

	"go.uber.org/zap"
)

type runner interface {
	Execute(ctx context.Context, ids []string, m models.Mutation, actor string) (*models.BulkOperationResult, error)
}

// Service routes a batch to the executor of its entity type.
type Service struct {
	executors map[models.EntityType]runner
	cache     cache.MetricsCache
	logger    *zap.Logger
}

func NewService(gw *gateway.Gateway, sink audit.Sink, completions CompletionSink, mc cache.MetricsCache, limits Limits, logger *zap.Logger) *Service {
	if mc == nil {
		mc = cache.Noop{}
	}
	return &Service{
		executors: map[models.EntityType]runner{
			models.EntityOrder:    NewExecutor(OrderHandler(completions), gw, sink, limits, logger),
			models.EntityProduct:  NewExecutor(ProductHandler(), gw, sink, limits, logger),
			models.EntityCustomer: NewExecutor(CustomerHandler(), gw, sink, limits, logger),
		},
		cache:  mc,
		logger: logger,
	}
}

// Execute runs one batch. Cached metrics are dropped once anything changed.
func (s *Service) Execute(ctx context.Context, entityType string, ids []string, m models.Mutation, actor string) (*models.BulkOperationResult, error) {
	entity, err := models.ParseEntityType(entityType)
	if err != nil {
		return nil, err
	}
	result, err := s.executors[entity].Execute(ctx, ids, m, actor)
	if err != nil {
		return nil, err
	}
	if result.SuccessCount > 0 {
		if err := s.cache.Invalidate(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("Failed to invalidate metrics cache", zap.String("batch_id", result.BatchID), zap.Error(err))
		}
	}
	return result, nil
}

// HTTPStatus maps a finished batch to its response code.
func HTTPStatus(r *models.BulkOperationResult) int {
	switch {
	case r.FailureCount == 0:
		return http.StatusOK
	case r.SuccessCount > 0:
		return http.StatusMultiStatus
	}
	for _, f := range r.Failed {
		if f.Code != models.FailureUnavailable {
			return http.StatusUnprocessableEntity
		}
	}
	return http.StatusServiceUnavailable
}
