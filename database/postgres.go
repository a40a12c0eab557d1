package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"backoffice-svc/gateway"
	"backoffice-svc/models"
	"backoffice-svc/window"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

const (
	orderColumns = "order_id, customer_id, items, subtotal, tax_amount, shipping_charges, discount, final_amount, " +
		"payment_method, payment_status, status, order_date, shipping_address, flags, refund_info, deleted_at, updated_at"
	customerColumns = "customer_id, name, email, phone, registration_date, total_orders, total_spent, last_order_date, " +
		"status, segmentation, engagement_score, churn_risk, flags, deleted_at, updated_at"
	productColumns = "sku, name, category, subcategory, base_price, sale_price, tax_rate, stock, reserved, " +
		"low_stock_threshold, views, purchases, revenue, last_purchased_at, flags, status, deleted_at, updated_at"
)

// PostgresStore is the primary transactional store.
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ gateway.Store = (*PostgresStore)(nil)

func NewPostgresStore(db *sql.DB, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

type rowScanner interface {
	Scan(dest ...any) error
}

// where accumulates positional predicates.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, arg any) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, strings.ReplaceAll(clause, "?", "$"+strconv.Itoa(len(w.args))))
}

func (w *where) raw(clause string) {
	w.clauses = append(w.clauses, clause)
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func (s *PostgresStore) QueryOrders(ctx context.Context, f gateway.OrderFilter, win window.Window) ([]models.Order, error) {
	var w where
	if !f.IncludeDeleted {
		w.raw("deleted_at IS NULL")
	}
	if f.CustomerID != "" {
		w.add("customer_id = ?", f.CustomerID)
	}
	if len(f.OrderIDs) > 0 {
		w.add("order_id = ANY(?)", pq.Array(f.OrderIDs))
	}
	if len(f.Statuses) > 0 {
		w.add("status = ANY(?)", pq.Array(toStrings(f.Statuses)))
	}
	if !win.IsZero() {
		w.add("order_date >= ?", win.Start)
		w.add("order_date < ?", win.End)
	}

	query := "SELECT " + orderColumns + " FROM orders" + w.String() + " ORDER BY order_date, order_id"
	rows, err := s.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	out := make([]models.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if models.IsInvariantViolation(err) || models.IsValidation(err) {
			s.logger.Warn("Skipping inconsistent order row", zap.String("order_id", o.OrderID), zap.Error(err))
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate orders: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) QueryCustomers(ctx context.Context, f gateway.CustomerFilter) ([]models.Customer, error) {
	var w where
	if !f.IncludeDeleted {
		w.raw("deleted_at IS NULL")
	}
	if len(f.CustomerIDs) > 0 {
		w.add("customer_id = ANY(?)", pq.Array(f.CustomerIDs))
	}
	if len(f.Statuses) > 0 {
		w.add("status = ANY(?)", pq.Array(toStrings(f.Statuses)))
	}
	if !f.RegisteredIn.IsZero() {
		w.add("registration_date >= ?", f.RegisteredIn.Start)
		w.add("registration_date < ?", f.RegisteredIn.End)
	}

	query := "SELECT " + customerColumns + " FROM customers" + w.String() + " ORDER BY customer_id"
	rows, err := s.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query customers: %w", err)
	}
	defer rows.Close()

	out := make([]models.Customer, 0)
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate customers: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) QueryProducts(ctx context.Context, f gateway.ProductFilter) ([]models.Product, error) {
	var w where
	if !f.IncludeDeleted {
		w.raw("deleted_at IS NULL")
	}
	if len(f.SKUs) > 0 {
		w.add("sku = ANY(?)", pq.Array(f.SKUs))
	}
	if f.Category != "" {
		w.add("category = ?", f.Category)
	}
	if len(f.Statuses) > 0 {
		w.add("status = ANY(?)", pq.Array(toStrings(f.Statuses)))
	}

	query := "SELECT " + productColumns + " FROM products" + w.String() + " ORDER BY sku"
	rows, err := s.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	out := make([]models.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate products: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE order_id = $1 AND deleted_at IS NULL", id)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("order %s: %w", id, models.ErrNotFound)
		}
		return nil, err
	}
	return &o, nil
}

func (s *PostgresStore) SaveOrder(ctx context.Context, o *models.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal items: %w", err)
	}
	addr, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("failed to marshal shipping address: %w", err)
	}
	flags, err := marshalFlags(o.Flags)
	if err != nil {
		return err
	}
	var refund []byte
	if o.RefundInfo != nil {
		if refund, err = json.Marshal(o.RefundInfo); err != nil {
			return fmt.Errorf("failed to marshal refund info: %w", err)
		}
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, CURRENT_TIMESTAMP)
		ON CONFLICT (order_id) DO UPDATE SET
			customer_id = EXCLUDED.customer_id, items = EXCLUDED.items, subtotal = EXCLUDED.subtotal,
			tax_amount = EXCLUDED.tax_amount, shipping_charges = EXCLUDED.shipping_charges,
			discount = EXCLUDED.discount, final_amount = EXCLUDED.final_amount,
			payment_method = EXCLUDED.payment_method, payment_status = EXCLUDED.payment_status,
			status = EXCLUDED.status, order_date = EXCLUDED.order_date,
			shipping_address = EXCLUDED.shipping_address, flags = EXCLUDED.flags,
			refund_info = EXCLUDED.refund_info, deleted_at = EXCLUDED.deleted_at,
			updated_at = CURRENT_TIMESTAMP
		RETURNING updated_at`,
		o.OrderID, o.CustomerID, items, o.Subtotal, o.TaxAmount, o.ShippingCharges, o.Discount, o.FinalAmount,
		o.PaymentMethod, o.PaymentStatus, o.Status, o.OrderDate, addr, flags, refund, o.DeletedAt,
	).Scan(&o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save order %s: %w", o.OrderID, err)
	}
	return nil
}

func (s *PostgresStore) GetProduct(ctx context.Context, sku string) (*models.Product, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+productColumns+" FROM products WHERE sku = $1 AND deleted_at IS NULL", sku)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("product %s: %w", sku, models.ErrNotFound)
		}
		return nil, err
	}
	return &p, nil
}

// SaveProduct upserts catalogue fields. Purchase counters are left to
// ApplyOrderCompletion.
func (s *PostgresStore) SaveProduct(ctx context.Context, p *models.Product) error {
	flags, err := marshalFlags(p.Flags)
	if err != nil {
		return err
	}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO products (sku, name, category, subcategory, base_price, sale_price, tax_rate, stock, reserved,
			low_stock_threshold, views, flags, status, deleted_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, CURRENT_TIMESTAMP)
		ON CONFLICT (sku) DO UPDATE SET
			name = EXCLUDED.name, category = EXCLUDED.category, subcategory = EXCLUDED.subcategory,
			base_price = EXCLUDED.base_price, sale_price = EXCLUDED.sale_price, tax_rate = EXCLUDED.tax_rate,
			stock = EXCLUDED.stock, reserved = EXCLUDED.reserved, low_stock_threshold = EXCLUDED.low_stock_threshold,
			views = EXCLUDED.views, flags = EXCLUDED.flags, status = EXCLUDED.status,
			deleted_at = EXCLUDED.deleted_at, updated_at = CURRENT_TIMESTAMP
		RETURNING updated_at`,
		p.SKU, p.Name, p.Category, p.Subcategory, p.Pricing.BasePrice, p.Pricing.SalePrice, p.Pricing.TaxRate,
		p.Inventory.Stock, p.Inventory.Reserved, p.Inventory.LowStockThreshold, p.Analytics.Views,
		flags, p.Status, p.DeletedAt,
	).Scan(&p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save product %s: %w", p.SKU, err)
	}
	return nil
}

func (s *PostgresStore) GetCustomer(ctx context.Context, id string) (*models.Customer, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+customerColumns+" FROM customers WHERE customer_id = $1 AND deleted_at IS NULL", id)
	c, err := scanCustomer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("customer %s: %w", id, models.ErrNotFound)
		}
		return nil, err
	}
	return &c, nil
}

// SaveCustomer upserts profile and derived fields. Order totals are left to
// ApplyOrderCompletion.
func (s *PostgresStore) SaveCustomer(ctx context.Context, c *models.Customer) error {
	flags, err := marshalFlags(c.Flags)
	if err != nil {
		return err
	}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO customers (customer_id, name, email, phone, registration_date, status, segmentation,
			engagement_score, churn_risk, flags, deleted_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, CURRENT_TIMESTAMP)
		ON CONFLICT (customer_id) DO UPDATE SET
			name = EXCLUDED.name, email = EXCLUDED.email, phone = EXCLUDED.phone,
			registration_date = EXCLUDED.registration_date, status = EXCLUDED.status,
			segmentation = EXCLUDED.segmentation, engagement_score = EXCLUDED.engagement_score,
			churn_risk = EXCLUDED.churn_risk, flags = EXCLUDED.flags, deleted_at = EXCLUDED.deleted_at,
			updated_at = CURRENT_TIMESTAMP
		RETURNING updated_at`,
		c.CustomerID, c.Name, c.Email, c.Phone, c.RegistrationDate, c.Status, c.Segmentation,
		c.EngagementScore, c.ChurnRisk, flags, c.DeletedAt,
	).Scan(&c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save customer %s: %w", c.CustomerID, err)
	}
	return nil
}

// ApplyOrderCompletion increments customer totals and product counters in one
// transaction. The order_completions marker makes redelivered events no-ops.
func (s *PostgresStore) ApplyOrderCompletion(ctx context.Context, ev models.OrderCompletion) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO order_completions (order_id) VALUES ($1) ON CONFLICT (order_id) DO NOTHING", ev.OrderID)
	if err != nil {
		return fmt.Errorf("failed to mark order completion: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		s.logger.Info("Order completion already applied", zap.String("order_id", ev.OrderID))
		return nil
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE customers SET total_orders = total_orders + 1, total_spent = total_spent + $2,
			last_order_date = GREATEST(COALESCE(last_order_date, $3), $3), updated_at = CURRENT_TIMESTAMP
		WHERE customer_id = $1`,
		ev.CustomerID, ev.Amount, ev.CompletedAt,
	); err != nil {
		return fmt.Errorf("failed to increment customer totals: %w", err)
	}

	for _, item := range ev.Items {
		if _, err := tx.ExecContext(ctx, `
			UPDATE products SET purchases = purchases + $2, revenue = revenue + $3,
				last_purchased_at = GREATEST(COALESCE(last_purchased_at, $4), $4), updated_at = CURRENT_TIMESTAMP
			WHERE sku = $1`,
			item.SKU, item.Quantity, item.Revenue, ev.CompletedAt,
		); err != nil {
			return fmt.Errorf("failed to increment product %s counters: %w", item.SKU, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit order completion: %w", err)
	}
	return nil
}

// ReverseOrderCompletion decrements what ApplyOrderCompletion added. Only a
// marker that exists and is not yet reversed lets the decrement through.
func (s *PostgresStore) ReverseOrderCompletion(ctx context.Context, ev models.OrderCompletion) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"UPDATE order_completions SET reversed_at = CURRENT_TIMESTAMP WHERE order_id = $1 AND reversed_at IS NULL", ev.OrderID)
	if err != nil {
		return fmt.Errorf("failed to mark order reversal: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		s.logger.Info("No applied completion to reverse", zap.String("order_id", ev.OrderID))
		return nil
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE customers SET total_orders = GREATEST(total_orders - 1, 0), total_spent = total_spent - $2,
			updated_at = CURRENT_TIMESTAMP
		WHERE customer_id = $1`,
		ev.CustomerID, ev.Amount,
	); err != nil {
		return fmt.Errorf("failed to decrement customer totals: %w", err)
	}

	for _, item := range ev.Items {
		if _, err := tx.ExecContext(ctx, `
			UPDATE products SET purchases = GREATEST(purchases - $2, 0), revenue = revenue - $3,
				updated_at = CURRENT_TIMESTAMP
			WHERE sku = $1`,
			item.SKU, item.Quantity, item.Revenue,
		); err != nil {
			return fmt.Errorf("failed to decrement product %s counters: %w", item.SKU, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit order reversal: %w", err)
	}
	return nil
}

func (s *PostgresStore) CustomerTotals(ctx context.Context, id string) (models.CustomerTotals, error) {
	var t models.CustomerTotals
	var last sql.NullTime
	err := s.db.QueryRowContext(ctx,
		"SELECT total_orders, total_spent, last_order_date FROM customers WHERE customer_id = $1", id,
	).Scan(&t.TotalOrders, &t.TotalSpent, &last)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return t, fmt.Errorf("customer %s: %w", id, models.ErrNotFound)
		}
		return t, fmt.Errorf("failed to read customer totals: %w", err)
	}
	t.LastOrderDate = timePtr(last)
	return t, nil
}

func scanOrder(rs rowScanner) (models.Order, error) {
	var o models.Order
	var items, addr, flags, refund []byte
	var deleted sql.NullTime
	err := rs.Scan(&o.OrderID, &o.CustomerID, &items, &o.Subtotal, &o.TaxAmount, &o.ShippingCharges,
		&o.Discount, &o.FinalAmount, &o.PaymentMethod, &o.PaymentStatus, &o.Status, &o.OrderDate,
		&addr, &flags, &refund, &deleted, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return o, err
		}
		return o, fmt.Errorf("failed to scan order: %w", err)
	}
	if err := unmarshalJSON(items, &o.Items); err != nil {
		return o, fmt.Errorf("order %s items: %w", o.OrderID, err)
	}
	if err := unmarshalJSON(addr, &o.ShippingAddress); err != nil {
		return o, fmt.Errorf("order %s address: %w", o.OrderID, err)
	}
	if err := unmarshalJSON(flags, &o.Flags); err != nil {
		return o, fmt.Errorf("order %s flags: %w", o.OrderID, err)
	}
	if len(refund) > 0 {
		o.RefundInfo = &models.RefundInfo{}
		if err := json.Unmarshal(refund, o.RefundInfo); err != nil {
			return o, fmt.Errorf("order %s refund: %w", o.OrderID, err)
		}
	}
	o.DeletedAt = timePtr(deleted)
	return o, o.Validate()
}

func scanCustomer(rs rowScanner) (models.Customer, error) {
	var c models.Customer
	var flags []byte
	var last, deleted sql.NullTime
	err := rs.Scan(&c.CustomerID, &c.Name, &c.Email, &c.Phone, &c.RegistrationDate, &c.TotalOrders,
		&c.TotalSpent, &last, &c.Status, &c.Segmentation, &c.EngagementScore, &c.ChurnRisk, &flags,
		&deleted, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c, err
		}
		return c, fmt.Errorf("failed to scan customer: %w", err)
	}
	if err := unmarshalJSON(flags, &c.Flags); err != nil {
		return c, fmt.Errorf("customer %s flags: %w", c.CustomerID, err)
	}
	c.LastOrderDate = timePtr(last)
	c.DeletedAt = timePtr(deleted)
	return c, nil
}

func scanProduct(rs rowScanner) (models.Product, error) {
	var p models.Product
	var flags []byte
	var last, deleted sql.NullTime
	err := rs.Scan(&p.SKU, &p.Name, &p.Category, &p.Subcategory, &p.Pricing.BasePrice, &p.Pricing.SalePrice,
		&p.Pricing.TaxRate, &p.Inventory.Stock, &p.Inventory.Reserved, &p.Inventory.LowStockThreshold,
		&p.Analytics.Views, &p.Analytics.Purchases, &p.Analytics.Revenue, &last, &flags, &p.Status,
		&deleted, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, err
		}
		return p, fmt.Errorf("failed to scan product: %w", err)
	}
	if err := unmarshalJSON(flags, &p.Flags); err != nil {
		return p, fmt.Errorf("product %s flags: %w", p.SKU, err)
	}
	p.Analytics.LastPurchasedAt = timePtr(last)
	p.DeletedAt = timePtr(deleted)
	return p, nil
}

func marshalFlags(flags []models.Flag) ([]byte, error) {
	if flags == nil {
		flags = []models.Flag{}
	}
	b, err := json.Marshal(flags)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal flags: %w", err)
	}
	return b, nil
}

func unmarshalJSON(b []byte, v any) error {
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, v)
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func toStrings[S ~string](in []S) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}
