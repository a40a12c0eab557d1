package gateway

import (
	"context"
	"errors"
	"fmt"

	"backoffice-svc/circuitbreaker"
	"backoffice-svc/models"
	"backoffice-svc/window"
)

// Writable reports whether write-path calls can currently reach the primary.
func (g *Gateway) Writable() error {
	if g.primary == nil {
		return fmt.Errorf("%w: no primary store configured", models.ErrSourceUnavailable)
	}
	if !g.breaker.Allow() {
		return fmt.Errorf("%w: %w", models.ErrSourceUnavailable, circuitbreaker.ErrCircuitOpen)
	}
	return nil
}

// Writer returns the primary store guarded by the breaker and the primary
// timeout. Writes never fall back to the read-only mirror.
func (g *Gateway) Writer() Store {
	return &guardedStore{g: g}
}

type guardedStore struct {
	g *Gateway
}

// run executes fn on the primary. Domain errors pass through without counting
// against the breaker; infrastructure errors are reported as unavailable.
func run[T any](ctx context.Context, g *Gateway, fn func(ctx context.Context, s Store) (T, error)) (T, error) {
	var zero T
	if g.primary == nil {
		return zero, fmt.Errorf("%w: no primary store configured", models.ErrSourceUnavailable)
	}
	var v T
	var domainErr error
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		out, err := callWithTimeout(ctx, g.cfg.PrimaryTimeout, func(ctx context.Context) (T, error) {
			return fn(ctx, g.primary)
		})
		if isDomainError(err) {
			domainErr = err
			return nil
		}
		v = out
		return err
	})
	if domainErr != nil {
		return zero, domainErr
	}
	if err != nil {
		if errors.Is(err, models.ErrSourceUnavailable) {
			return zero, err
		}
		return zero, fmt.Errorf("%w: %w", models.ErrSourceUnavailable, err)
	}
	return v, nil
}

func isDomainError(err error) bool {
	return err != nil && (errors.Is(err, models.ErrNotFound) ||
		models.IsInvariantViolation(err) ||
		models.IsValidation(err))
}

type none struct{}

func (s *guardedStore) QueryOrders(ctx context.Context, f OrderFilter, w window.Window) ([]models.Order, error) {
	return run(ctx, s.g, func(ctx context.Context, st Store) ([]models.Order, error) {
		return st.QueryOrders(ctx, f, w)
	})
}

func (s *guardedStore) QueryCustomers(ctx context.Context, f CustomerFilter) ([]models.Customer, error) {
	return run(ctx, s.g, func(ctx context.Context, st Store) ([]models.Customer, error) {
		return st.QueryCustomers(ctx, f)
	})
}

func (s *guardedStore) QueryProducts(ctx context.Context, f ProductFilter) ([]models.Product, error) {
	return run(ctx, s.g, func(ctx context.Context, st Store) ([]models.Product, error) {
		return st.QueryProducts(ctx, f)
	})
}

func (s *guardedStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	return run(ctx, s.g, func(ctx context.Context, st Store) (*models.Order, error) {
		return st.GetOrder(ctx, id)
	})
}

func (s *guardedStore) SaveOrder(ctx context.Context, o *models.Order) error {
	_, err := run(ctx, s.g, func(ctx context.Context, st Store) (none, error) {
		return none{}, st.SaveOrder(ctx, o)
	})
	return err
}

func (s *guardedStore) GetProduct(ctx context.Context, sku string) (*models.Product, error) {
	return run(ctx, s.g, func(ctx context.Context, st Store) (*models.Product, error) {
		return st.GetProduct(ctx, sku)
	})
}

func (s *guardedStore) SaveProduct(ctx context.Context, p *models.Product) error {
	_, err := run(ctx, s.g, func(ctx context.Context, st Store) (none, error) {
		return none{}, st.SaveProduct(ctx, p)
	})
	return err
}

func (s *guardedStore) GetCustomer(ctx context.Context, id string) (*models.Customer, error) {
	return run(ctx, s.g, func(ctx context.Context, st Store) (*models.Customer, error) {
		return st.GetCustomer(ctx, id)
	})
}

func (s *guardedStore) SaveCustomer(ctx context.Context, c *models.Customer) error {
	_, err := run(ctx, s.g, func(ctx context.Context, st Store) (none, error) {
		return none{}, st.SaveCustomer(ctx, c)
	})
	return err
}

func (s *guardedStore) ApplyOrderCompletion(ctx context.Context, ev models.OrderCompletion) error {
	_, err := run(ctx, s.g, func(ctx context.Context, st Store) (none, error) {
		return none{}, st.ApplyOrderCompletion(ctx, ev)
	})
	return err
}

func (s *guardedStore) ReverseOrderCompletion(ctx context.Context, ev models.OrderCompletion) error {
	_, err := run(ctx, s.g, func(ctx context.Context, st Store) (none, error) {
		return none{}, st.ReverseOrderCompletion(ctx, ev)
	})
	return err
}

func (s *guardedStore) CustomerTotals(ctx context.Context, id string) (models.CustomerTotals, error) {
	return run(ctx, s.g, func(ctx context.Context, st Store) (models.CustomerTotals, error) {
		return st.CustomerTotals(ctx, id)
	})
}
