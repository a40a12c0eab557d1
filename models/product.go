package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ProductStatus string

const (
	ProductStatusActive          ProductStatus = "active"
	ProductStatusInactive        ProductStatus = "inactive"
	ProductStatusDiscontinued    ProductStatus = "discontinued"
	ProductStatusOutOfStock      ProductStatus = "out_of_stock"
	ProductStatusPendingApproval ProductStatus = "pending_approval"
)

func (s ProductStatus) Valid() bool {
	switch s {
	case ProductStatusActive, ProductStatusInactive, ProductStatusDiscontinued,
		ProductStatusOutOfStock, ProductStatusPendingApproval:
		return true
	}
	return false
}

type Pricing struct {
	BasePrice decimal.Decimal `json:"basePrice"`
	SalePrice decimal.Decimal `json:"salePrice"`
	TaxRate   decimal.Decimal `json:"taxRate"`
}

type Inventory struct {
	Stock             int `json:"stock"`
	Reserved          int `json:"reserved"`
	LowStockThreshold int `json:"lowStockThreshold"`
}

func (i Inventory) Available() int {
	return i.Stock - i.Reserved
}

func (i Inventory) LowStock() bool {
	return i.Available() <= i.LowStockThreshold
}

type ProductAnalytics struct {
	Views           int64           `json:"views"`
	Purchases       int64           `json:"purchases"`
	Revenue         decimal.Decimal `json:"revenue"`
	LastPurchasedAt *time.Time      `json:"lastPurchasedAt,omitempty"`
	ConversionRate  float64         `json:"conversionRate"`
	PopularityScore float64         `json:"popularityScore"`
}

type Product struct {
	SKU         string           `json:"sku"`
	Name        string           `json:"name"`
	Category    string           `json:"category"`
	Subcategory string           `json:"subcategory"`
	Pricing     Pricing          `json:"pricing"`
	Inventory   Inventory        `json:"inventory"`
	Analytics   ProductAnalytics `json:"analytics"`
	Flags       []Flag           `json:"flags,omitempty"`
	Status      ProductStatus    `json:"status"`
	DeletedAt   *time.Time       `json:"deletedAt,omitempty"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

func (p *Product) IsDeleted() bool {
	return p.DeletedAt != nil
}

// TransitionTo changes the product status. Discontinued products stay discontinued.
func (p *Product) TransitionTo(next ProductStatus) error {
	if !next.Valid() {
		return NewInvariantViolation("product_status", "unknown status %q", next)
	}
	if p.Status == next {
		return NewInvariantViolation("product_status", "product %s is already %s", p.SKU, next)
	}
	if p.Status == ProductStatusDiscontinued {
		return NewInvariantViolation("product_status", "product %s is discontinued", p.SKU)
	}
	p.Status = next
	return nil
}
