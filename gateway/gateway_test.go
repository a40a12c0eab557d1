package gateway_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"backoffice-svc/circuitbreaker"
	"backoffice-svc/database"
	"backoffice-svc/gateway"
	"backoffice-svc/models"
	"backoffice-svc/window"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// flakyStore wraps a MemoryStore and can fail or hang its reads.
type flakyStore struct {
	*database.MemoryStore
	err  error
	hang bool
}

func (f *flakyStore) QueryOrders(ctx context.Context, filter gateway.OrderFilter, w window.Window) ([]models.Order, error) {
	if f.hang {
		time.Sleep(time.Second)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.MemoryStore.QueryOrders(ctx, filter, w)
}

func seeded(ids ...string) *database.MemoryStore {
	s := database.NewMemoryStore()
	orders := make([]models.Order, 0, len(ids))
	for _, id := range ids {
		orders = append(orders, models.Order{OrderID: id, CustomerID: "C1", OrderDate: time.Now()})
	}
	s.Seed(orders, nil, nil)
	return s
}

func queryAll(ctx context.Context, r gateway.Reader) ([]models.Order, error) {
	return r.QueryOrders(ctx, gateway.OrderFilter{}, window.Window{})
}

func newGateway(t *testing.T, primary gateway.Store, secondary gateway.Reader) *gateway.Gateway {
	cfg := gateway.Config{PrimaryTimeout: 50 * time.Millisecond, SecondaryTimeout: 50 * time.Millisecond}
	cb := circuitbreaker.NewCircuitBreaker("test", 3, time.Minute)
	return gateway.New(primary, secondary, cb, cfg, zaptest.NewLogger(t))
}

func TestRead_PrimaryServes(t *testing.T) {
	g := newGateway(t, &flakyStore{MemoryStore: seeded("P1")}, seeded("S1"))
	res := gateway.Read(context.Background(), g, "orders", queryAll)

	assert.Equal(t, gateway.OriginPrimary, res.Origin)
	assert.False(t, res.Degraded())
	require.Len(t, res.Value, 1)
	assert.Equal(t, "P1", res.Value[0].OrderID)
}

func TestRead_FallsBackToSecondary(t *testing.T) {
	g := newGateway(t, &flakyStore{MemoryStore: seeded("P1"), err: errors.New("connection refused")}, seeded("S1"))
	res := gateway.Read(context.Background(), g, "orders", queryAll)

	assert.Equal(t, gateway.OriginSecondary, res.Origin)
	assert.True(t, res.Degraded())
	require.Len(t, res.Value, 1)
	assert.Equal(t, "S1", res.Value[0].OrderID)
	assert.ErrorContains(t, res.Cause, "connection refused")
}

func TestRead_UnavailableWithoutSecondary(t *testing.T) {
	g := newGateway(t, &flakyStore{MemoryStore: seeded("P1"), err: errors.New("boom")}, nil)
	res := gateway.Read(context.Background(), g, "orders", queryAll)

	assert.Equal(t, gateway.OriginUnavailable, res.Origin)
	assert.Nil(t, res.Value)
	assert.True(t, errors.Is(res.Cause, models.ErrSourceUnavailable))
}

func TestRead_HangingPrimaryIsBounded(t *testing.T) {
	g := newGateway(t, &flakyStore{MemoryStore: seeded("P1"), hang: true}, seeded("S1"))

	start := time.Now()
	res := gateway.Read(context.Background(), g, "orders", queryAll)
	elapsed := time.Since(start)

	assert.Equal(t, gateway.OriginSecondary, res.Origin)
	assert.Less(t, elapsed, 500*time.Millisecond)
	assert.True(t, errors.Is(res.Cause, context.DeadlineExceeded))
}

func TestRead_ExpiredContext(t *testing.T) {
	g := newGateway(t, &flakyStore{MemoryStore: seeded("P1")}, seeded("S1"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := gateway.Read(ctx, g, "orders", queryAll)
	assert.Equal(t, gateway.OriginUnavailable, res.Origin)
	assert.True(t, errors.Is(res.Cause, context.Canceled))
}

func TestRead_OpenBreakerSkipsPrimary(t *testing.T) {
	primary := &flakyStore{MemoryStore: seeded("P1"), err: errors.New("down")}
	g := newGateway(t, primary, seeded("S1"))
	for i := 0; i < 3; i++ {
		gateway.Read(context.Background(), g, "orders", queryAll)
	}
	require.Equal(t, circuitbreaker.StateOpen, g.Breaker().GetState())

	primary.err = nil
	res := gateway.Read(context.Background(), g, "orders", queryAll)
	assert.Equal(t, gateway.OriginSecondary, res.Origin)
	assert.True(t, errors.Is(res.Cause, circuitbreaker.ErrCircuitOpen))
	assert.True(t, errors.Is(g.Writable(), models.ErrSourceUnavailable))
}

func TestRead_CallerDeadlineDoesNotTripBreaker(t *testing.T) {
	primary := &flakyStore{MemoryStore: seeded("P1"), hang: true}
	cfg := gateway.Config{PrimaryTimeout: 2 * time.Second, SecondaryTimeout: 50 * time.Millisecond}
	cb := circuitbreaker.NewCircuitBreaker("test", 3, time.Minute)
	g := gateway.New(primary, seeded("S1"), cb, cfg, zaptest.NewLogger(t))

	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		res := gateway.Read(ctx, g, "orders", queryAll)
		cancel()
		assert.Equal(t, gateway.OriginUnavailable, res.Origin)
		assert.True(t, errors.Is(res.Cause, context.DeadlineExceeded))
	}
	assert.Equal(t, circuitbreaker.StateClosed, g.Breaker().GetState())
	assert.NoError(t, g.Writable())
}

func TestRead_PrimaryTimeoutTripsBreaker(t *testing.T) {
	g := newGateway(t, &flakyStore{MemoryStore: seeded("P1"), hang: true}, seeded("S1"))
	for i := 0; i < 3; i++ {
		res := gateway.Read(context.Background(), g, "orders", queryAll)
		assert.Equal(t, gateway.OriginSecondary, res.Origin)
	}
	assert.Equal(t, circuitbreaker.StateOpen, g.Breaker().GetState())
}

func TestWriter_DomainErrorsDoNotTripBreaker(t *testing.T) {
	g := newGateway(t, &flakyStore{MemoryStore: seeded()}, nil)
	w := g.Writer()
	for i := 0; i < 5; i++ {
		_, err := w.GetOrder(context.Background(), "missing")
		require.True(t, errors.Is(err, models.ErrNotFound))
	}
	assert.Equal(t, circuitbreaker.StateClosed, g.Breaker().GetState())
	assert.NoError(t, g.Writable())
}

func TestWriter_NoPrimary(t *testing.T) {
	g := newGateway(t, nil, seeded("S1"))
	_, err := g.Writer().GetOrder(context.Background(), "S1")
	assert.True(t, errors.Is(err, models.ErrSourceUnavailable))
}
