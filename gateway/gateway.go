// Package gateway gives the core one read interface over orders, customers and
// products, whichever store currently holds them.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backoffice-svc/circuitbreaker"
	"backoffice-svc/middleware"
	"backoffice-svc/models"
	"backoffice-svc/window"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type Reader interface {
	QueryOrders(ctx context.Context, filter OrderFilter, w window.Window) ([]models.Order, error)
	QueryCustomers(ctx context.Context, filter CustomerFilter) ([]models.Customer, error)
	QueryProducts(ctx context.Context, filter ProductFilter) ([]models.Product, error)
}

// Store is the primary, writable source.
type Store interface {
	Reader
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	SaveOrder(ctx context.Context, o *models.Order) error
	GetProduct(ctx context.Context, sku string) (*models.Product, error)
	SaveProduct(ctx context.Context, p *models.Product) error
	GetCustomer(ctx context.Context, customerID string) (*models.Customer, error)
	SaveCustomer(ctx context.Context, c *models.Customer) error
	ApplyOrderCompletion(ctx context.Context, ev models.OrderCompletion) error
	ReverseOrderCompletion(ctx context.Context, ev models.OrderCompletion) error
	CustomerTotals(ctx context.Context, customerID string) (models.CustomerTotals, error)
}

// Origin tags where a read was served from.
type Origin string

const (
	OriginPrimary     Origin = "primary"
	OriginSecondary   Origin = "secondary"
	OriginUnavailable Origin = "unavailable"
)

// Result is a read outcome. Anything not served by the primary is degraded;
// OriginUnavailable carries the zero value.
type Result[T any] struct {
	Value  T
	Origin Origin
	Cause  error
}

func (r Result[T]) Degraded() bool {
	return r.Origin != OriginPrimary
}

type Config struct {
	PrimaryTimeout   time.Duration
	SecondaryTimeout time.Duration
}

type Gateway struct {
	primary   Store
	secondary Reader
	breaker   *circuitbreaker.CircuitBreaker
	cfg       Config
	logger    *zap.Logger
}

// New builds a gateway. primary and secondary may each be nil.
func New(primary Store, secondary Reader, breaker *circuitbreaker.CircuitBreaker, cfg Config, logger *zap.Logger) *Gateway {
	if breaker == nil {
		breaker = circuitbreaker.NewCircuitBreaker("primary", 5, 30*time.Second)
	}
	return &Gateway{
		primary:   primary,
		secondary: secondary,
		breaker:   breaker,
		cfg:       cfg,
		logger:    logger,
	}
}

func (g *Gateway) Breaker() *circuitbreaker.CircuitBreaker {
	return g.breaker
}

func (g *Gateway) HasSecondary() bool {
	return g.secondary != nil
}

// Read runs fn against the primary, then the secondary, and finally returns an
// unavailable result. Worst-case latency is PrimaryTimeout + SecondaryTimeout,
// further capped by ctx.
func Read[T any](ctx context.Context, g *Gateway, name string, fn func(ctx context.Context, r Reader) (T, error)) Result[T] {
	ctx, span := otel.Tracer("backoffice-service").Start(ctx, "gateway.Read")
	defer span.End()
	span.SetAttributes(attribute.String("read.name", name))

	var zero T
	var causes []error

	if err := ctx.Err(); err != nil {
		span.SetAttributes(attribute.String("read.origin", string(OriginUnavailable)))
		return Result[T]{Value: zero, Origin: OriginUnavailable, Cause: err}
	}

	if g.primary != nil {
		var v T
		err := g.breaker.Execute(ctx, func(ctx context.Context) error {
			var err error
			v, err = callWithTimeout(ctx, g.cfg.PrimaryTimeout, func(ctx context.Context) (T, error) {
				return fn(ctx, g.primary)
			})
			return err
		})
		if err == nil {
			span.SetAttributes(attribute.String("read.origin", string(OriginPrimary)))
			return Result[T]{Value: v, Origin: OriginPrimary}
		}
		middleware.RecordSourceFallback(fallbackReason(err))
		g.logger.Warn("Primary source read failed",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.String("read", name),
			zap.Bool("has_secondary", g.secondary != nil),
			zap.Error(err),
		)
		causes = append(causes, fmt.Errorf("primary: %w", err))
	} else {
		causes = append(causes, errors.New("primary: not configured"))
	}

	if g.secondary != nil && ctx.Err() == nil {
		v, err := callWithTimeout(ctx, g.cfg.SecondaryTimeout, func(ctx context.Context) (T, error) {
			return fn(ctx, g.secondary)
		})
		if err == nil {
			span.SetAttributes(attribute.String("read.origin", string(OriginSecondary)))
			return Result[T]{Value: v, Origin: OriginSecondary, Cause: errors.Join(causes...)}
		}
		g.logger.Error("Secondary source read failed",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.String("read", name),
			zap.Error(err),
		)
		causes = append(causes, fmt.Errorf("secondary: %w", err))
	}
	if err := ctx.Err(); err != nil {
		causes = append(causes, err)
	}

	span.SetAttributes(attribute.String("read.origin", string(OriginUnavailable)))
	return Result[T]{
		Value:  zero,
		Origin: OriginUnavailable,
		Cause:  errors.Join(append([]error{models.ErrSourceUnavailable}, causes...)...),
	}
}

// callWithTimeout bounds fn even if it ignores its context.
func callWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type outcome struct {
		v   T
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		v, err := fn(ctx)
		ch <- outcome{v: v, err: err}
	}()

	select {
	case out := <-ch:
		return out.v, out.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func fallbackReason(err error) string {
	switch {
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}
	return "error"
}
