package database

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"backoffice-svc/gateway"
	"backoffice-svc/models"
	"backoffice-svc/window"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func setupPostgresTest(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	logger := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
	return NewPostgresStore(db, logger), mock
}

var orderRowColumns = []string{"order_id", "customer_id", "items", "subtotal", "tax_amount", "shipping_charges",
	"discount", "final_amount", "payment_method", "payment_status", "status", "order_date", "shipping_address",
	"flags", "refund_info", "deleted_at", "updated_at"}

func TestPostgresStore_QueryOrders_BuildsFilter(t *testing.T) {
	store, mock := setupPostgresTest(t)
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	w := window.Window{Start: start, End: start.AddDate(0, 0, 7)}

	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE deleted_at IS NULL AND customer_id = $1 AND status = ANY($2) AND order_date >= $3 AND order_date < $4 ORDER BY order_date, order_id")).
		WithArgs("C1", pq.Array([]string{"completed"}), w.Start, w.End).
		WillReturnRows(sqlmock.NewRows(orderRowColumns).AddRow(
			"O1", "C1", []byte(`[{"sku":"S1","quantity":2,"unitPrice":"50"}]`), "100", "18", "0", "0", "118",
			"upi", "paid", "completed", start.Add(time.Hour), []byte(`{"city":"Pune","state":"MH"}`),
			[]byte(`[]`), nil, nil, start,
		))

	orders, err := store.QueryOrders(context.Background(),
		gateway.OrderFilter{CustomerID: "C1", Statuses: []models.OrderStatus{models.OrderStatusCompleted}}, w)
	if err != nil {
		t.Fatalf("QueryOrders failed: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("Expected 1 order, got %d", len(orders))
	}
	o := orders[0]
	if !o.FinalAmount.Equal(decimal.NewFromInt(118)) {
		t.Errorf("Expected final amount 118, got %s", o.FinalAmount)
	}
	if len(o.Items) != 1 || o.Items[0].Quantity != 2 {
		t.Errorf("Expected decoded line item, got %+v", o.Items)
	}
	if o.ShippingAddress.City != "Pune" {
		t.Errorf("Expected city Pune, got %q", o.ShippingAddress.City)
	}
	if o.RefundInfo != nil || o.DeletedAt != nil {
		t.Errorf("Expected nil refund info and deleted_at")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestPostgresStore_GetOrder_NotFound(t *testing.T) {
	store, mock := setupPostgresTest(t)
	mock.ExpectQuery("FROM orders WHERE order_id = \\$1").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(orderRowColumns))

	_, err := store.GetOrder(context.Background(), "missing")
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestPostgresStore_GetOrder_InconsistentTotals(t *testing.T) {
	store, mock := setupPostgresTest(t)
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("FROM orders WHERE order_id = \\$1").
		WithArgs("O9").
		WillReturnRows(sqlmock.NewRows(orderRowColumns).AddRow(
			"O9", "C1", []byte(`[{"sku":"S1","quantity":1,"unitPrice":"100"}]`), "100", "0", "0", "0", "999999",
			"card", "paid", "completed", at, []byte(`{}`), []byte(`[]`), nil, nil, at,
		))

	_, err := store.GetOrder(context.Background(), "O9")
	if !models.IsInvariantViolation(err) {
		t.Errorf("Expected invariant violation, got %v", err)
	}
}

func TestPostgresStore_QueryOrders_SkipsInconsistentRows(t *testing.T) {
	store, mock := setupPostgresTest(t)
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	items := []byte(`[{"sku":"S1","quantity":1,"unitPrice":"100"}]`)
	mock.ExpectQuery("FROM orders WHERE deleted_at IS NULL").
		WillReturnRows(sqlmock.NewRows(orderRowColumns).
			AddRow("O1", "C1", items, "100", "0", "0", "0", "100", "card", "paid", "completed", at, []byte(`{}`), []byte(`[]`), nil, nil, at).
			AddRow("O2", "C1", items, "100", "0", "0", "0", "999999", "card", "paid", "completed", at, []byte(`{}`), []byte(`[]`), nil, nil, at))

	orders, err := store.QueryOrders(context.Background(), gateway.OrderFilter{}, window.Window{})
	if err != nil {
		t.Fatalf("QueryOrders failed: %v", err)
	}
	if len(orders) != 1 || orders[0].OrderID != "O1" {
		t.Errorf("Expected only O1, got %+v", orders)
	}
}

func TestPostgresStore_SaveProduct_LeavesCountersAlone(t *testing.T) {
	store, mock := setupPostgresTest(t)
	p := &models.Product{SKU: "S1", Name: "Mug", Status: models.ProductStatusActive}
	p.Analytics.Purchases = 99

	mock.ExpectQuery("INSERT INTO products").
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))

	if err := store.SaveProduct(context.Background(), p); err != nil {
		t.Fatalf("SaveProduct failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestPostgresStore_ApplyOrderCompletion(t *testing.T) {
	store, mock := setupPostgresTest(t)
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	ev := models.OrderCompletion{
		OrderID:     "O1",
		CustomerID:  "C1",
		Amount:      decimal.NewFromInt(118),
		CompletedAt: at,
		Items:       []models.CompletionItem{{SKU: "S1", Quantity: 2, Revenue: decimal.NewFromInt(100)}},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO order_completions").WithArgs("O1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE customers SET total_orders = total_orders \\+ 1").
		WithArgs("C1", ev.Amount, at).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE products SET purchases = purchases \\+ \\$2").
		WithArgs("S1", 2, ev.Items[0].Revenue, at).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := store.ApplyOrderCompletion(context.Background(), ev); err != nil {
		t.Fatalf("ApplyOrderCompletion failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestPostgresStore_ApplyOrderCompletion_Redelivered(t *testing.T) {
	store, mock := setupPostgresTest(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO order_completions").WithArgs("O1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.ApplyOrderCompletion(context.Background(), models.OrderCompletion{OrderID: "O1", CustomerID: "C1"})
	if err != nil {
		t.Fatalf("ApplyOrderCompletion failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestPostgresStore_ReverseOrderCompletion(t *testing.T) {
	store, mock := setupPostgresTest(t)
	ev := models.OrderCompletion{
		OrderID:    "O1",
		CustomerID: "C1",
		Amount:     decimal.NewFromInt(118),
		Items:      []models.CompletionItem{{SKU: "S1", Quantity: 2, Revenue: decimal.NewFromInt(100)}},
	}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE order_completions SET reversed_at").WithArgs("O1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE customers SET total_orders = GREATEST\\(total_orders - 1, 0\\)").
		WithArgs("C1", ev.Amount).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE products SET purchases = GREATEST\\(purchases - \\$2, 0\\)").
		WithArgs("S1", 2, ev.Items[0].Revenue).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := store.ReverseOrderCompletion(context.Background(), ev); err != nil {
		t.Fatalf("ReverseOrderCompletion failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestPostgresStore_ReverseOrderCompletion_NothingApplied(t *testing.T) {
	store, mock := setupPostgresTest(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE order_completions SET reversed_at").WithArgs("O1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	if err := store.ReverseOrderCompletion(context.Background(), models.OrderCompletion{OrderID: "O1", CustomerID: "C1"}); err != nil {
		t.Fatalf("ReverseOrderCompletion failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestPostgresStore_CustomerTotals(t *testing.T) {
	store, mock := setupPostgresTest(t)
	last := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT total_orders, total_spent, last_order_date FROM customers").
		WithArgs("C1").
		WillReturnRows(sqlmock.NewRows([]string{"total_orders", "total_spent", "last_order_date"}).
			AddRow(4, "1200.50", last))

	totals, err := store.CustomerTotals(context.Background(), "C1")
	if err != nil {
		t.Fatalf("CustomerTotals failed: %v", err)
	}
	if totals.TotalOrders != 4 || totals.TotalSpent.String() != "1200.5" {
		t.Errorf("Unexpected totals %+v", totals)
	}
	if totals.LastOrderDate == nil || !totals.LastOrderDate.Equal(last) {
		t.Errorf("Expected last order date %v, got %v", last, totals.LastOrderDate)
	}
}

func TestPostgresAdmins_FindAdmin(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT id, email, password_hash, role, created_at FROM admin_users").
		WithArgs("ops@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "role", "created_at"}).
			AddRow(7, "ops@example.com", "hash", "admin", time.Now()))

	adm, err := NewPostgresAdmins(db).FindAdmin(context.Background(), "Ops@Example.com")
	if err != nil {
		t.Fatalf("FindAdmin failed: %v", err)
	}
	if adm.ID != "admin-7" || adm.Role != "admin" {
		t.Errorf("Unexpected admin %+v", adm)
	}
}
