package database

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"backoffice-svc/gateway"
	"backoffice-svc/models"
	"backoffice-svc/window"
)

// MemoryStore keeps records in process. It backs STORE_MODE=memory and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	orders    map[string]models.Order
	customers map[string]models.Customer
	products  map[string]models.Product
	completed map[string]struct{}
	reversed  map[string]struct{}
}

var _ gateway.Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:    make(map[string]models.Order),
		customers: make(map[string]models.Customer),
		products:  make(map[string]models.Product),
		completed: make(map[string]struct{}),
		reversed:  make(map[string]struct{}),
	}
}

// Seed loads records, replacing existing ones with the same identity.
func (s *MemoryStore) Seed(orders []models.Order, customers []models.Customer, products []models.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range orders {
		s.orders[o.OrderID] = cloneOrder(o)
	}
	for _, c := range customers {
		s.customers[c.CustomerID] = cloneCustomer(c)
	}
	for _, p := range products {
		s.products[p.SKU] = cloneProduct(p)
	}
}

func (s *MemoryStore) QueryOrders(ctx context.Context, f gateway.OrderFilter, w window.Window) ([]models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Order, 0)
	for _, o := range s.orders {
		if f.Match(&o, w) {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OrderDate.Equal(out[j].OrderDate) {
			return out[i].OrderID < out[j].OrderID
		}
		return out[i].OrderDate.Before(out[j].OrderDate)
	})
	return out, nil
}

func (s *MemoryStore) QueryCustomers(ctx context.Context, f gateway.CustomerFilter) ([]models.Customer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Customer, 0)
	for _, c := range s.customers {
		if f.Match(&c) {
			out = append(out, cloneCustomer(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CustomerID < out[j].CustomerID })
	return out, nil
}

func (s *MemoryStore) QueryProducts(ctx context.Context, f gateway.ProductFilter) ([]models.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Product, 0)
	for _, p := range s.products {
		if f.Match(&p) {
			out = append(out, cloneProduct(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out, nil
}

func (s *MemoryStore) GetOrder(_ context.Context, id string) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok || o.IsDeleted() {
		return nil, fmt.Errorf("order %s: %w", id, models.ErrNotFound)
	}
	cp := cloneOrder(o)
	return &cp, nil
}

func (s *MemoryStore) SaveOrder(_ context.Context, o *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o.UpdatedAt = time.Now().UTC()
	s.orders[o.OrderID] = cloneOrder(*o)
	return nil
}

func (s *MemoryStore) GetProduct(_ context.Context, sku string) (*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[sku]
	if !ok || p.IsDeleted() {
		return nil, fmt.Errorf("product %s: %w", sku, models.ErrNotFound)
	}
	cp := cloneProduct(p)
	return &cp, nil
}

// SaveProduct keeps the stored purchase counters; only completions move them.
func (s *MemoryStore) SaveProduct(_ context.Context, p *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.products[p.SKU]; ok {
		p.Analytics.Purchases = cur.Analytics.Purchases
		p.Analytics.Revenue = cur.Analytics.Revenue
		p.Analytics.LastPurchasedAt = cur.Analytics.LastPurchasedAt
	}
	p.UpdatedAt = time.Now().UTC()
	s.products[p.SKU] = cloneProduct(*p)
	return nil
}

func (s *MemoryStore) GetCustomer(_ context.Context, id string) (*models.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.customers[id]
	if !ok || c.IsDeleted() {
		return nil, fmt.Errorf("customer %s: %w", id, models.ErrNotFound)
	}
	cp := cloneCustomer(c)
	return &cp, nil
}

// SaveCustomer keeps the stored order totals; only completions move them.
func (s *MemoryStore) SaveCustomer(_ context.Context, c *models.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.customers[c.CustomerID]; ok {
		c.TotalOrders = cur.TotalOrders
		c.TotalSpent = cur.TotalSpent
		c.LastOrderDate = cur.LastOrderDate
	}
	c.UpdatedAt = time.Now().UTC()
	s.customers[c.CustomerID] = cloneCustomer(*c)
	return nil
}

// ApplyOrderCompletion increments the counters under the write lock, so
// concurrent completions for the same customer or product never lose updates.
// A completion already applied for the order is ignored.
func (s *MemoryStore) ApplyOrderCompletion(_ context.Context, ev models.OrderCompletion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, done := s.completed[ev.OrderID]; done {
		return nil
	}
	s.completed[ev.OrderID] = struct{}{}

	if c, ok := s.customers[ev.CustomerID]; ok {
		c.TotalOrders++
		c.TotalSpent = c.TotalSpent.Add(ev.Amount)
		if c.LastOrderDate == nil || ev.CompletedAt.After(*c.LastOrderDate) {
			at := ev.CompletedAt
			c.LastOrderDate = &at
		}
		s.customers[ev.CustomerID] = c
	}
	for _, item := range ev.Items {
		p, ok := s.products[item.SKU]
		if !ok {
			continue
		}
		p.Analytics.Purchases += int64(item.Quantity)
		p.Analytics.Revenue = p.Analytics.Revenue.Add(item.Revenue)
		at := ev.CompletedAt
		p.Analytics.LastPurchasedAt = &at
		s.products[item.SKU] = p
	}
	return nil
}

// ReverseOrderCompletion takes a previously applied completion back out of the
// counters. It is a no-op unless the completion was applied and not yet
// reversed. lastOrderDate is left as is.
func (s *MemoryStore) ReverseOrderCompletion(_ context.Context, ev models.OrderCompletion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, done := s.completed[ev.OrderID]; !done {
		return nil
	}
	if _, undone := s.reversed[ev.OrderID]; undone {
		return nil
	}
	s.reversed[ev.OrderID] = struct{}{}

	if c, ok := s.customers[ev.CustomerID]; ok {
		c.TotalOrders = max(c.TotalOrders-1, 0)
		c.TotalSpent = c.TotalSpent.Sub(ev.Amount)
		s.customers[ev.CustomerID] = c
	}
	for _, item := range ev.Items {
		p, ok := s.products[item.SKU]
		if !ok {
			continue
		}
		p.Analytics.Purchases = max(p.Analytics.Purchases-int64(item.Quantity), 0)
		p.Analytics.Revenue = p.Analytics.Revenue.Sub(item.Revenue)
		s.products[item.SKU] = p
	}
	return nil
}

func (s *MemoryStore) CustomerTotals(_ context.Context, id string) (models.CustomerTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.customers[id]
	if !ok {
		return models.CustomerTotals{}, fmt.Errorf("customer %s: %w", id, models.ErrNotFound)
	}
	return models.CustomerTotals{
		TotalOrders:   c.TotalOrders,
		TotalSpent:    c.TotalSpent,
		LastOrderDate: c.LastOrderDate,
	}, nil
}

func cloneOrder(o models.Order) models.Order {
	o.Items = slices.Clone(o.Items)
	o.Flags = slices.Clone(o.Flags)
	if o.RefundInfo != nil {
		ri := *o.RefundInfo
		o.RefundInfo = &ri
	}
	return o
}

func cloneCustomer(c models.Customer) models.Customer {
	c.Flags = slices.Clone(c.Flags)
	return c
}

func cloneProduct(p models.Product) models.Product {
	p.Flags = slices.Clone(p.Flags)
	return p
}
