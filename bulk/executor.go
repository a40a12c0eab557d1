// Package bulk applies one mutation to many entities with per-item isolation
// and an audit trail.
package bulk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"backoffice-svc/audit"
	"backoffice-svc/gateway"
	"backoffice-svc/middleware"
	"backoffice-svc/models"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Handler plugs one entity type into the executor.
type Handler[T any] struct {
	Entity models.EntityType
	Load   func(ctx context.Context, s gateway.Store, id string) (*T, error)
	// Validate checks the mutation once, before any item is touched.
	Validate func(m models.Mutation) error
	// Mutate applies m in memory and returns the audit severity.
	Mutate  func(entity *T, m models.Mutation, actor string, at time.Time) (models.Severity, error)
	Persist func(ctx context.Context, s gateway.Store, entity *T) error
	// AfterPersist runs side effects of a saved change. Optional.
	AfterPersist func(ctx context.Context, before, after *T, at time.Time) error
}

type Limits struct {
	MaxItems int
	Workers  int
}

type Executor[T any] struct {
	handler Handler[T]
	gw      *gateway.Gateway
	sink    audit.Sink
	limits  Limits
	logger  *zap.Logger
	now     func() time.Time
}

func NewExecutor[T any](h Handler[T], gw *gateway.Gateway, sink audit.Sink, limits Limits, logger *zap.Logger) *Executor[T] {
	if limits.Workers <= 0 {
		limits.Workers = 1
	}
	return &Executor[T]{handler: h, gw: gw, sink: sink, limits: limits, logger: logger, now: time.Now}
}

// Execute applies m to every id. Validation problems and an unreachable primary
// fail the whole call before anything is written; after that every id ends up
// in exactly one of Successful or Failed.
func (e *Executor[T]) Execute(ctx context.Context, ids []string, m models.Mutation, actor string) (*models.BulkOperationResult, error) {
	if err := e.validate(ids, m, actor); err != nil {
		return nil, err
	}
	if err := e.gw.Writable(); err != nil {
		return nil, err
	}

	ctx, span := otel.Tracer("backoffice-service").Start(ctx, "bulk.Execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("bulk.entity", string(e.handler.Entity)),
		attribute.String("bulk.operation", string(m.Kind)),
		attribute.Int("bulk.items", len(ids)),
	)

	result := models.NewBulkOperationResult(uuid.NewString(), e.handler.Entity, m.Kind)
	store := e.gw.Writer()
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(e.limits.Workers)
	for _, id := range ids {
		g.Go(func() error {
			state, audited, err := e.processItem(ctx, store, result.BatchID, id, m, actor)
			mu.Lock()
			defer mu.Unlock()
			if !audited {
				result.AuditFailures++
			}
			if err != nil {
				code := FailureCode(err)
				result.AddFailure(id, code, err.Error())
				middleware.RecordBulkItem(string(e.handler.Entity), code)
				return nil
			}
			result.AddSuccess(id, state)
			middleware.RecordBulkItem(string(e.handler.Entity), "success")
			return nil
		})
	}
	_ = g.Wait()

	failedIDs := make([]string, 0, len(result.Failed))
	for _, f := range result.Failed {
		failedIDs = append(failedIDs, f.ID)
	}
	summary := audit.Entry(actor, fmt.Sprintf("%s.bulk.%s", e.handler.Entity, m.Kind), e.handler.Entity, nil,
		models.Change{}, summarySeverity(result), map[string]any{
			"bulk":           true,
			"batchId":        result.BatchID,
			"totalProcessed": result.TotalProcessed,
			"successCount":   result.SuccessCount,
			"failureCount":   result.FailureCount,
			"failedIds":      failedIDs,
			"reason":         m.Reason,
			"auditFailures":  result.AuditFailures,
		}, e.now())
	if !e.appendAudit(ctx, summary) {
		result.AuditFailures++
	}

	e.logger.Info("Bulk operation finished",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.String("batch_id", result.BatchID),
		zap.String("entity", string(e.handler.Entity)),
		zap.String("operation", string(m.Kind)),
		zap.String("actor_id", actor),
		zap.Int("success", result.SuccessCount),
		zap.Int("failed", result.FailureCount),
		zap.Int("audit_failures", result.AuditFailures),
	)
	return result, nil
}

// processItem runs load, mutate, persist and side effects for one id and writes
// its audit entry, whatever the outcome. audited is false when that entry was
// not accepted.
func (e *Executor[T]) processItem(ctx context.Context, store gateway.Store, batchID, id string, m models.Mutation, actor string) (state any, audited bool, err error) {
	at := e.now()
	action := fmt.Sprintf("%s.%s", e.handler.Entity, m.Kind)
	resourceID := id

	var entity *T
	entity, err = e.handler.Load(ctx, store, id)
	if err == nil {
		var before map[string]any
		var severity models.Severity
		var beforeEntity T
		before, err = toMap(entity)
		if err == nil {
			beforeEntity = *entity
			severity, err = e.handler.Mutate(entity, m, actor, at)
		}
		if err == nil {
			err = e.handler.Persist(ctx, store, entity)
		}
		if err == nil {
			if e.handler.AfterPersist != nil {
				if hookErr := e.handler.AfterPersist(ctx, &beforeEntity, entity, at); hookErr != nil {
					e.logger.Error("Post-save side effect failed",
						zap.String("trace_id", middleware.GetTraceID(ctx)),
						zap.String("entity", string(e.handler.Entity)),
						zap.String("id", id),
						zap.Error(hookErr),
					)
				}
			}
			after, _ := toMap(entity)
			changes := diff(before, after)
			audited = e.appendAudit(ctx, audit.Entry(actor, action, e.handler.Entity, &resourceID, changes, severity,
				map[string]any{"batchId": batchID, "reason": m.Reason}, at))
			return entity, audited, nil
		}
	}

	audited = e.appendAudit(ctx, audit.Entry(actor, action+".failed", e.handler.Entity, &resourceID, models.Change{},
		models.SeverityLow, map[string]any{"batchId": batchID, "error": err.Error(), "code": FailureCode(err)}, at))
	return nil, audited, err
}

// appendAudit reports whether the entry was accepted.
func (e *Executor[T]) appendAudit(ctx context.Context, entry models.AuditLogEntry) bool {
	// Audit writes outlive a cancelled request; the entity change already happened.
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := e.sink.Append(actx, entry); err != nil {
		e.logger.Error("Audit append failed",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.String("action", entry.Action),
			zap.String("audit_id", entry.ID),
			zap.Error(err),
		)
		return false
	}
	return true
}

func (e *Executor[T]) validate(ids []string, m models.Mutation, actor string) error {
	if strings.TrimSpace(actor) == "" {
		return models.NewValidationError("actor", "is required")
	}
	if len(ids) == 0 {
		return models.NewValidationError("ids", "must not be empty")
	}
	if e.limits.MaxItems > 0 && len(ids) > e.limits.MaxItems {
		return models.NewValidationError("ids", "at most %d ids per batch, got %d", e.limits.MaxItems, len(ids))
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			return models.NewValidationError("ids", "must not contain blank ids")
		}
		if _, dup := seen[id]; dup {
			return models.NewValidationError("ids", "duplicate id %q", id)
		}
		seen[id] = struct{}{}
	}
	return e.handler.Validate(m)
}

// FailureCode classifies a per-item error.
func FailureCode(err error) string {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return models.FailureNotFound
	case models.IsInvariantViolation(err), models.IsValidation(err):
		return models.FailureInvariant
	case errors.Is(err, models.ErrSourceUnavailable), errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return models.FailureUnavailable
	}
	return models.FailureInternal
}

func summarySeverity(r *models.BulkOperationResult) models.Severity {
	if r.FailureCount > 0 && r.SuccessCount == 0 {
		return models.SeverityHigh
	}
	return models.SeverityMedium
}

func toMap(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot entity: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("failed to snapshot entity: %w", err)
	}
	return m, nil
}

// diff keeps only the top-level keys whose values changed. updatedAt is noise.
func diff(before, after map[string]any) models.Change {
	c := models.Change{Before: map[string]any{}, After: map[string]any{}}
	for k, av := range after {
		if k == "updatedAt" {
			continue
		}
		if bv, ok := before[k]; !ok || !reflect.DeepEqual(bv, av) {
			if ok {
				c.Before[k] = bv
			}
			c.After[k] = av
		}
	}
	for k, bv := range before {
		if _, ok := after[k]; !ok && k != "updatedAt" {
			c.Before[k] = bv
		}
	}
	return c
}
