package gateway

import (
	"slices"

	"backoffice-svc/models"
	"backoffice-svc/window"
)

type OrderFilter struct {
	CustomerID     string
	OrderIDs       []string
	Statuses       []models.OrderStatus
	IncludeDeleted bool
}

// Match applies the filter and window in memory; stores that cannot push the
// filter down use it after loading.
func (f OrderFilter) Match(o *models.Order, w window.Window) bool {
	if !f.IncludeDeleted && o.IsDeleted() {
		return false
	}
	if f.CustomerID != "" && o.CustomerID != f.CustomerID {
		return false
	}
	if len(f.OrderIDs) > 0 && !slices.Contains(f.OrderIDs, o.OrderID) {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, o.Status) {
		return false
	}
	return w.Contains(o.OrderDate)
}

type CustomerFilter struct {
	CustomerIDs    []string
	RegisteredIn   window.Window
	Statuses       []models.CustomerStatus
	IncludeDeleted bool
}

func (f CustomerFilter) Match(c *models.Customer) bool {
	if !f.IncludeDeleted && c.IsDeleted() {
		return false
	}
	if len(f.CustomerIDs) > 0 && !slices.Contains(f.CustomerIDs, c.CustomerID) {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, c.Status) {
		return false
	}
	return f.RegisteredIn.Contains(c.RegistrationDate)
}

type ProductFilter struct {
	SKUs           []string
	Category       string
	Statuses       []models.ProductStatus
	IncludeDeleted bool
}

func (f ProductFilter) Match(p *models.Product) bool {
	if !f.IncludeDeleted && p.IsDeleted() {
		return false
	}
	if len(f.SKUs) > 0 && !slices.Contains(f.SKUs, p.SKU) {
		return false
	}
	if f.Category != "" && p.Category != f.Category {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, p.Status) {
		return false
	}
	return true
}
