package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"backoffice-svc/analytics"
	"backoffice-svc/audit"
	"backoffice-svc/bulk"
	"backoffice-svc/cache"
	"backoffice-svc/circuitbreaker"
	"backoffice-svc/database"
	"backoffice-svc/gateway"
	"backoffice-svc/middleware"
	"backoffice-svc/models"
	"backoffice-svc/window"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var fixedNow = time.Date(2026, 5, 10, 15, 0, 0, 0, time.UTC)

type apiFixture struct {
	router *gin.Engine
	store  *database.MemoryStore
	sink   *audit.MemorySink
	token  string
}

func setupAPITest(t *testing.T) *apiFixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	store := database.NewMemoryStore()
	store.Seed(
		[]models.Order{
			{
				OrderID: "A", CustomerID: "C1", Status: models.OrderStatusPending,
				PaymentStatus: models.PaymentStatusPaid, PaymentMethod: models.PaymentMethodCard,
				Subtotal: decimal.NewFromInt(200), FinalAmount: decimal.NewFromInt(200),
				OrderDate: fixedNow.Add(-48 * time.Hour),
				Items:     []models.LineItem{{SKU: "SKU-1", Quantity: 1, UnitPrice: decimal.NewFromInt(200), Category: "audio"}},
			},
			{
				OrderID: "C", CustomerID: "C1", Status: models.OrderStatusShipped,
				PaymentStatus: models.PaymentStatusPending, PaymentMethod: models.PaymentMethodCOD,
				Subtotal: decimal.NewFromInt(50), FinalAmount: decimal.NewFromInt(50),
				OrderDate: fixedNow.Add(-24 * time.Hour),
				Items:     []models.LineItem{{SKU: "SKU-1", Quantity: 1, UnitPrice: decimal.NewFromInt(50), Category: "audio"}},
			},
		},
		[]models.Customer{{CustomerID: "C1", Name: "Ravi", Status: models.CustomerStatusActive, RegistrationDate: fixedNow.AddDate(0, -6, 0)}},
		[]models.Product{{SKU: "SKU-1", Name: "Headphones", Status: models.ProductStatusActive}},
	)

	cb := circuitbreaker.NewCircuitBreaker("primary", 5, time.Minute)
	gw := gateway.New(store, nil, cb, gateway.Config{PrimaryTimeout: time.Second, SecondaryTimeout: time.Second}, logger)
	windows := window.NewCalculator(time.UTC, 365).WithClock(func() time.Time { return fixedNow })
	mc := cache.NewMemoryMetricsCache(time.Minute)
	agg := analytics.NewAggregator(gw, windows, mc, analytics.Options{
		HighValueThreshold: decimal.NewFromInt(100000),
		CallTimeout:        5 * time.Second,
	}, logger)
	sink := audit.NewMemorySink()
	svc := bulk.NewService(gw, sink, bulk.NewDirectCompletions(gw.Writer()), mc, bulk.Limits{MaxItems: 50, Workers: 2}, logger)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	Register(router, Routes{
		Analytics: NewAnalyticsHandler(agg, 30, logger),
		Bulk:      NewBulkHandler(svc, logger),
		Auth:      NewAuthHandler(database.NewMemoryAdmins(), testSecret, time.Hour, logger),
		Breaker:   cb,
		JWTSecret: testSecret,
	})

	token, err := middleware.IssueToken(testSecret, "admin-1", "admin", time.Hour)
	require.NoError(t, err)
	return &apiFixture{router: router, store: store, sink: sink, token: token}
}

func (f *apiFixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.token)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestAPI_RequiresToken(t *testing.T) {
	f := setupAPITest(t)
	req := httptest.NewRequest("GET", "/api/v1/analytics/kpis", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAPI_KPIsEnvelope(t *testing.T) {
	f := setupAPITest(t)
	w := f.do("GET", "/api/v1/analytics/kpis?days=7&timeout=2s", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var env struct {
		Data     analytics.KPIReport `json:"data"`
		Source   string              `json:"source"`
		Degraded bool                `json:"degraded"`
		Cached   bool                `json:"cached"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, "primary", env.Source)
	assert.False(t, env.Degraded)
	assert.False(t, env.Cached)
	assert.Equal(t, 2, env.Data.Orders)
	assert.True(t, env.Data.Revenue.Equal(decimal.NewFromInt(200)))
	assert.Equal(t, 100, env.Data.Growth.Orders)

	w = f.do("GET", "/api/v1/analytics/kpis?days=7", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.True(t, env.Cached)
}

func TestAPI_AnalyticsValidation(t *testing.T) {
	f := setupAPITest(t)
	for _, path := range []string{
		"/api/v1/analytics/kpis?days=0",
		"/api/v1/analytics/kpis?days=abc",
		"/api/v1/analytics/kpis?timeout=soon",
		"/api/v1/analytics/sales-series?days=400",
		"/api/v1/analytics/breakdown/weather",
		"/api/v1/analytics/breakdown/geography?level=galaxy",
		"/api/v1/analytics/top-products?limit=0",
		"/api/v1/analytics/anomalies?timeout=-1s",
		"/api/v1/analytics/top-products?timeout=soon",
		"/api/v1/customers/C1/insights?timeout=0s",
	} {
		w := f.do("GET", path, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}
}

func TestAPI_BreakdownAndSeries(t *testing.T) {
	f := setupAPITest(t)

	w := f.do("GET", "/api/v1/analytics/breakdown/paymentMethod?days=30", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rows struct {
		Data []analytics.GroupRow `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
	require.Len(t, rows.Data, 2)
	assert.Equal(t, "card", rows.Data[0].Key)

	w = f.do("GET", "/api/v1/analytics/sales-series?days=7", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var series struct {
		Data []analytics.SeriesPoint `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &series))
	assert.Len(t, series.Data, 7)
}

func TestAPI_CustomerInsights(t *testing.T) {
	f := setupAPITest(t)

	w := f.do("GET", "/api/v1/customers/C1/insights?timeout=2s", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do("GET", "/api/v1/customers/C404/insights", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPI_BulkPartialFailure(t *testing.T) {
	f := setupAPITest(t)
	w := f.do("POST", "/api/v1/bulk/orders", BulkRequest{
		IDs:      []string{"A", "B", "C"},
		Mutation: models.Mutation{Kind: models.MutationFlagAdd, Flag: &models.FlagInput{Type: "manual_review"}},
	})
	require.Equal(t, http.StatusMultiStatus, w.Code, w.Body.String())

	var result models.BulkOperationResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 3, result.TotalProcessed)
	assert.Equal(t, 1, result.FailureCount)
	assert.Equal(t, "B", result.Failed[0].ID)

	entries := f.sink.Entries()
	assert.Len(t, entries, 4)
	for _, e := range entries {
		assert.Equal(t, "admin-1", e.ActorID)
	}
}

func TestAPI_BulkValidation(t *testing.T) {
	f := setupAPITest(t)

	w := f.do("POST", "/api/v1/bulk/orders", BulkRequest{Mutation: models.Mutation{Kind: models.MutationSoftDelete}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do("POST", "/api/v1/bulk/invoices", BulkRequest{IDs: []string{"A"}, Mutation: models.Mutation{Kind: models.MutationSoftDelete}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, f.sink.Entries())
}

func TestAPI_CancelAndRefund(t *testing.T) {
	f := setupAPITest(t)

	w := f.do("POST", "/api/v1/orders/C/cancel", CancelRequest{Reason: "late"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())

	w = f.do("POST", "/api/v1/orders/A/refund", RefundRequest{Reason: "duplicate charge"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	a, err := f.store.GetOrder(t.Context(), "A")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusRefunded, a.PaymentStatus)
	assert.True(t, a.RefundInfo.Amount.Equal(decimal.NewFromInt(200)))
	assert.Equal(t, "admin-1", a.RefundInfo.RefundedBy)

	w = f.do("POST", "/api/v1/orders/missing/cancel", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}
