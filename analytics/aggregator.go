package analytics

import (
	"context"
	"time"

	"backoffice-svc/cache"
	"backoffice-svc/gateway"
	"backoffice-svc/middleware"
	"backoffice-svc/models"
	"backoffice-svc/window"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Envelope wraps every metric payload. Degraded is set whenever the primary did
// not serve the data; Source unavailable means the payload is the empty result.
type Envelope[T any] struct {
	Data        T              `json:"data"`
	Source      gateway.Origin `json:"source"`
	Degraded    bool           `json:"degraded"`
	Cached      bool           `json:"cached"`
	GeneratedAt time.Time      `json:"generatedAt"`
}

type cachedPayload[T any] struct {
	Data        T         `json:"data"`
	GeneratedAt time.Time `json:"generatedAt"`
}

type Options struct {
	HighValueThreshold decimal.Decimal
	CallTimeout        time.Duration
	Totals             TotalsSource
}

type Aggregator struct {
	gw      *gateway.Gateway
	windows *window.Calculator
	cache   cache.MetricsCache
	opts    Options
	logger  *zap.Logger
}

func NewAggregator(gw *gateway.Gateway, windows *window.Calculator, mc cache.MetricsCache, opts Options, logger *zap.Logger) *Aggregator {
	if mc == nil {
		mc = cache.Noop{}
	}
	if opts.Totals == nil {
		opts.Totals = RecomputedTotals{}
	}
	return &Aggregator{gw: gw, windows: windows, cache: mc, opts: opts, logger: logger}
}

type ordersAndCustomers struct {
	Orders    []models.Order
	Customers []models.Customer
}

// GetKPIs only fails on a bad lookback; source trouble degrades the envelope.
func (a *Aggregator) GetKPIs(ctx context.Context, days int) (Envelope[KPIReport], error) {
	pair, err := a.windows.Lookback(days)
	if err != nil {
		return Envelope[KPIReport]{}, err
	}
	span := window.Window{Start: pair.Previous.Start, End: pair.Current.End}
	key := cache.Key("kpis", days, pair.Current.End.Format(time.DateOnly))

	return serve(ctx, a, "kpis", key,
		func(ctx context.Context, r gateway.Reader) (ordersAndCustomers, error) {
			orders, err := r.QueryOrders(ctx, gateway.OrderFilter{}, span)
			if err != nil {
				return ordersAndCustomers{}, err
			}
			customers, err := r.QueryCustomers(ctx, gateway.CustomerFilter{RegisteredIn: span})
			if err != nil {
				return ordersAndCustomers{}, err
			}
			return ordersAndCustomers{Orders: orders, Customers: customers}, nil
		},
		func(in ordersAndCustomers) (KPIReport, error) {
			return CompareKPIs(in.Orders, in.Customers, pair), nil
		})
}

func (a *Aggregator) GetSalesSeries(ctx context.Context, days int) (Envelope[[]SeriesPoint], error) {
	pair, err := a.windows.Lookback(days)
	if err != nil {
		return Envelope[[]SeriesPoint]{}, err
	}
	key := cache.Key("sales-series", days, pair.Current.End.Format(time.DateOnly))

	return serve(ctx, a, "sales_series", key, queryOrders(pair.Current),
		func(orders []models.Order) ([]SeriesPoint, error) {
			return SalesSeries(orders, pair.Current, a.windows.Location()), nil
		})
}

func (a *Aggregator) GetBreakdown(ctx context.Context, dim Dimension, level GeoLevel, days int) (Envelope[[]GroupRow], error) {
	pair, err := a.windows.Lookback(days)
	if err != nil {
		return Envelope[[]GroupRow]{}, err
	}
	key := cache.Key("breakdown", dim, level, days, pair.Current.End.Format(time.DateOnly))

	return serve(ctx, a, "breakdown_"+string(dim), key, queryOrders(pair.Current),
		func(orders []models.Order) ([]GroupRow, error) {
			return Breakdown(orders, pair.Current, dim, level), nil
		})
}

func (a *Aggregator) GetAnomalies(ctx context.Context, days int) (Envelope[AnomalyReport], error) {
	pair, err := a.windows.Lookback(days)
	if err != nil {
		return Envelope[AnomalyReport]{}, err
	}
	key := cache.Key("anomalies", days, pair.Current.End.Format(time.DateOnly))

	return serve(ctx, a, "anomalies", key, queryOrders(pair.Current),
		func(orders []models.Order) (AnomalyReport, error) {
			return Anomalies(orders, pair.Current, a.opts.HighValueThreshold), nil
		})
}

func (a *Aggregator) GetTopProducts(ctx context.Context, limit int) (Envelope[[]ProductRank], error) {
	if limit <= 0 || limit > 100 {
		return Envelope[[]ProductRank]{}, models.NewValidationError("limit", "must be between 1 and 100, got %d", limit)
	}
	now := a.windows.Now()
	key := cache.Key("top-products", limit)

	return serve(ctx, a, "top_products", key,
		func(ctx context.Context, r gateway.Reader) ([]models.Product, error) {
			return r.QueryProducts(ctx, gateway.ProductFilter{})
		},
		func(products []models.Product) ([]ProductRank, error) {
			return TopProducts(products, limit, now), nil
		})
}

type customerRecords struct {
	Customer *models.Customer
	Orders   []models.Order
}

// GetCustomerInsights returns ErrNotFound when a reachable source has no such
// customer.
func (a *Aggregator) GetCustomerInsights(ctx context.Context, customerID string) (Envelope[CustomerInsights], error) {
	if customerID == "" {
		return Envelope[CustomerInsights]{}, models.NewValidationError("customerId", "is required")
	}
	now := a.windows.Now()
	key := cache.Key("insights", customerID, a.opts.Totals.Mode(), now.Format(time.DateOnly))

	return serve(ctx, a, "customer_insights", key,
		func(ctx context.Context, r gateway.Reader) (customerRecords, error) {
			customers, err := r.QueryCustomers(ctx, gateway.CustomerFilter{CustomerIDs: []string{customerID}})
			if err != nil {
				return customerRecords{}, err
			}
			if len(customers) == 0 {
				return customerRecords{}, nil
			}
			orders, err := r.QueryOrders(ctx, gateway.OrderFilter{CustomerID: customerID}, window.Window{})
			if err != nil {
				return customerRecords{}, err
			}
			return customerRecords{Customer: &customers[0], Orders: orders}, nil
		},
		func(in customerRecords) (CustomerInsights, error) {
			if in.Customer == nil {
				empty := CustomerInsights{
					CustomerID:         customerID,
					Segment:            models.SegmentNew,
					RiskLevel:          models.RiskLow,
					ChurnRisk:          models.RiskLow,
					DaysSinceLastOrder: NeverOrdered,
					TotalSpent:         decimal.Zero,
					Recommendations:    []string{},
				}
				return empty, models.ErrNotFound
			}
			totals := a.opts.Totals.Totals(in.Customer, in.Orders)
			return Insights(in.Customer, in.Orders, totals, now), nil
		})
}

func queryOrders(w window.Window) func(ctx context.Context, r gateway.Reader) ([]models.Order, error) {
	return func(ctx context.Context, r gateway.Reader) ([]models.Order, error) {
		return r.QueryOrders(ctx, gateway.OrderFilter{}, w)
	}
}

// serve answers from the cache, else reads through the gateway under the call
// timeout and computes. An unavailable read is computed from empty input so the
// caller still gets a well-formed zero payload. compute may return ErrNotFound,
// which is surfaced only when a source actually answered.
func serve[In, Out any](
	ctx context.Context,
	a *Aggregator,
	metric, key string,
	read func(ctx context.Context, r gateway.Reader) (In, error),
	compute func(In) (Out, error),
) (Envelope[Out], error) {
	ctx, span := otel.Tracer("backoffice-service").Start(ctx, "analytics."+metric)
	defer span.End()

	if a.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.CallTimeout)
		defer cancel()
	}

	var hit cachedPayload[Out]
	ok, err := a.cache.Get(ctx, key, &hit)
	if err != nil {
		a.logger.Warn("Metrics cache read failed", zap.String("key", key), zap.Error(err))
	}
	if ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		middleware.RecordMetricRead(metric, "cache")
		return Envelope[Out]{Data: hit.Data, Source: gateway.OriginPrimary, Cached: true, GeneratedAt: hit.GeneratedAt}, nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	res := gateway.Read(ctx, a.gw, metric, read)
	out, err := compute(res.Value)
	if err != nil && res.Origin != gateway.OriginUnavailable {
		return Envelope[Out]{}, err
	}

	env := Envelope[Out]{
		Data:        out,
		Source:      res.Origin,
		Degraded:    res.Degraded(),
		GeneratedAt: a.windows.Now().UTC(),
	}
	middleware.RecordMetricRead(metric, string(res.Origin))
	span.SetAttributes(attribute.String("metric.source", string(res.Origin)))

	if res.Degraded() {
		a.logger.Warn("Serving degraded metric",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.String("metric", metric),
			zap.String("source", string(res.Origin)),
			zap.Error(res.Cause),
		)
		return env, nil
	}

	if err := a.cache.Set(ctx, key, cachedPayload[Out]{Data: out, GeneratedAt: env.GeneratedAt}); err != nil {
		a.logger.Warn("Metrics cache write failed", zap.String("key", key), zap.Error(err))
	}
	return env, nil
}
