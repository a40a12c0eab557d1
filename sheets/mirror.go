package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"backoffice-svc/gateway"
	"backoffice-svc/models"
	"backoffice-svc/window"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

const (
	OrdersTab    = "Orders"
	CustomersTab = "Customers"
	ProductsTab  = "Products"
)

// Mirror reads the spreadsheet copy of the store. It is a read-only secondary:
// the first row of each tab holds column names, the rest hold records.
type Mirror struct {
	values        *sheetsapi.SpreadsheetsValuesService
	spreadsheetID string
	logger        *zap.Logger
}

var _ gateway.Reader = (*Mirror)(nil)

func NewMirror(ctx context.Context, spreadsheetID string, logger *zap.Logger, opts ...option.ClientOption) (*Mirror, error) {
	svc, err := sheetsapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return &Mirror{
		values:        svc.Spreadsheets.Values,
		spreadsheetID: spreadsheetID,
		logger:        logger,
	}, nil
}

func (m *Mirror) QueryOrders(ctx context.Context, f gateway.OrderFilter, w window.Window) ([]models.Order, error) {
	rows, err := m.load(ctx, OrdersTab)
	if err != nil {
		return nil, err
	}
	out := make([]models.Order, 0, len(rows))
	for _, r := range rows {
		o, err := parseOrder(r)
		if err != nil {
			m.logger.Warn("Skipping malformed sheet row", zap.String("tab", OrdersTab), zap.Error(err))
			continue
		}
		if f.Match(&o, w) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *Mirror) QueryCustomers(ctx context.Context, f gateway.CustomerFilter) ([]models.Customer, error) {
	rows, err := m.load(ctx, CustomersTab)
	if err != nil {
		return nil, err
	}
	out := make([]models.Customer, 0, len(rows))
	for _, r := range rows {
		c, err := parseCustomer(r)
		if err != nil {
			m.logger.Warn("Skipping malformed sheet row", zap.String("tab", CustomersTab), zap.Error(err))
			continue
		}
		if f.Match(&c) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *Mirror) QueryProducts(ctx context.Context, f gateway.ProductFilter) ([]models.Product, error) {
	rows, err := m.load(ctx, ProductsTab)
	if err != nil {
		return nil, err
	}
	out := make([]models.Product, 0, len(rows))
	for _, r := range rows {
		p, err := parseProduct(r)
		if err != nil {
			m.logger.Warn("Skipping malformed sheet row", zap.String("tab", ProductsTab), zap.Error(err))
			continue
		}
		if f.Match(&p) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *Mirror) load(ctx context.Context, tab string) ([]row, error) {
	resp, err := m.values.Get(m.spreadsheetID, tab).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", tab, err)
	}
	if len(resp.Values) == 0 {
		return nil, nil
	}
	header := make(map[string]int, len(resp.Values[0]))
	for i, h := range resp.Values[0] {
		header[strings.ToLower(strings.TrimSpace(fmt.Sprint(h)))] = i
	}
	rows := make([]row, 0, len(resp.Values)-1)
	for _, cells := range resp.Values[1:] {
		rows = append(rows, row{header: header, cells: cells})
	}
	return rows, nil
}

type row struct {
	header map[string]int
	cells  []any
}

func (r row) str(col string) string {
	i, ok := r.header[col]
	if !ok || i >= len(r.cells) || r.cells[i] == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(r.cells[i]))
}

func (r row) asDecimal(col string) (decimal.Decimal, error) {
	s := r.str(col)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("column %s: %w", col, err)
	}
	return d, nil
}

func (r row) asInt(col string) (int, error) {
	s := r.str(col)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("column %s: %w", col, err)
	}
	return n, nil
}

func (r row) asTime(col string) (time.Time, error) {
	s := r.str(col)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("column %s: %w", col, err)
	}
	return t, nil
}

func (r row) timePtr(col string) (*time.Time, error) {
	t, err := r.asTime(col)
	if err != nil || t.IsZero() {
		return nil, err
	}
	return &t, nil
}

// collector keeps the first parse error so field reads stay linear.
type collector struct{ err error }

func (c *collector) dec(d decimal.Decimal, err error) decimal.Decimal {
	if err != nil && c.err == nil {
		c.err = err
	}
	return d
}

func (c *collector) num(n int, err error) int {
	if err != nil && c.err == nil {
		c.err = err
	}
	return n
}

func (c *collector) at(t time.Time, err error) time.Time {
	if err != nil && c.err == nil {
		c.err = err
	}
	return t
}

func (c *collector) atPtr(t *time.Time, err error) *time.Time {
	if err != nil && c.err == nil {
		c.err = err
	}
	return t
}

func parseOrder(r row) (models.Order, error) {
	var c collector
	o := models.Order{
		OrderID:         r.str("order_id"),
		CustomerID:      r.str("customer_id"),
		Subtotal:        c.dec(r.asDecimal("subtotal")),
		TaxAmount:       c.dec(r.asDecimal("tax_amount")),
		ShippingCharges: c.dec(r.asDecimal("shipping_charges")),
		Discount:        c.dec(r.asDecimal("discount")),
		FinalAmount:     c.dec(r.asDecimal("final_amount")),
		PaymentMethod:   models.PaymentMethod(r.str("payment_method")),
		PaymentStatus:   models.PaymentStatus(r.str("payment_status")),
		Status:          models.OrderStatus(r.str("status")),
		OrderDate:       c.at(r.asTime("order_date")),
		ShippingAddress: models.Address{
			City:    r.str("city"),
			State:   r.str("state"),
			Pincode: r.str("pincode"),
			Country: r.str("country"),
		},
		DeletedAt: c.atPtr(r.timePtr("deleted_at")),
	}
	if items := r.str("items"); items != "" {
		if err := json.Unmarshal([]byte(items), &o.Items); err != nil && c.err == nil {
			c.err = fmt.Errorf("column items: %w", err)
		}
	}
	if c.err == nil && o.OrderID == "" {
		c.err = fmt.Errorf("missing order_id")
	}
	if c.err == nil {
		c.err = o.Validate()
	}
	return o, c.err
}

func parseCustomer(r row) (models.Customer, error) {
	var c collector
	cu := models.Customer{
		CustomerID:       r.str("customer_id"),
		Name:             r.str("name"),
		Email:            r.str("email"),
		Phone:            r.str("phone"),
		RegistrationDate: c.at(r.asTime("registration_date")),
		TotalOrders:      c.num(r.asInt("total_orders")),
		TotalSpent:       c.dec(r.asDecimal("total_spent")),
		LastOrderDate:    c.atPtr(r.timePtr("last_order_date")),
		Status:           models.CustomerStatus(r.str("status")),
		Segmentation:     models.Segment(r.str("segmentation")),
		DeletedAt:        c.atPtr(r.timePtr("deleted_at")),
	}
	if c.err == nil && cu.CustomerID == "" {
		c.err = fmt.Errorf("missing customer_id")
	}
	return cu, c.err
}

func parseProduct(r row) (models.Product, error) {
	var c collector
	p := models.Product{
		SKU:         r.str("sku"),
		Name:        r.str("name"),
		Category:    r.str("category"),
		Subcategory: r.str("subcategory"),
		Pricing: models.Pricing{
			BasePrice: c.dec(r.asDecimal("base_price")),
			SalePrice: c.dec(r.asDecimal("sale_price")),
		},
		Inventory: models.Inventory{
			Stock:             c.num(r.asInt("stock")),
			Reserved:          c.num(r.asInt("reserved")),
			LowStockThreshold: c.num(r.asInt("low_stock_threshold")),
		},
		Analytics: models.ProductAnalytics{
			Views:           int64(c.num(r.asInt("views"))),
			Purchases:       int64(c.num(r.asInt("purchases"))),
			Revenue:         c.dec(r.asDecimal("revenue")),
			LastPurchasedAt: c.atPtr(r.timePtr("last_purchased_at")),
		},
		Status:    models.ProductStatus(r.str("status")),
		DeletedAt: c.atPtr(r.timePtr("deleted_at")),
	}
	if c.err == nil && p.SKU == "" {
		c.err = fmt.Errorf("missing sku")
	}
	return p, c.err
}
