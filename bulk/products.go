package bulk

import (
	"context"
	"time"

	"backoffice-svc/gateway"
	"backoffice-svc/models"
)

var productFields = fieldSet{
	"name":              isString,
	"category":          isString,
	"subcategory":       isString,
	"basePrice":         isDecimal,
	"salePrice":         isDecimal,
	"taxRate":           isDecimal,
	"stock":             isInt,
	"reserved":          isInt,
	"lowStockThreshold": isInt,
}

func ProductHandler() Handler[models.Product] {
	return Handler[models.Product]{
		Entity: models.EntityProduct,
		Load: func(ctx context.Context, s gateway.Store, sku string) (*models.Product, error) {
			return s.GetProduct(ctx, sku)
		},
		Validate: func(m models.Mutation) error {
			return validateCommon(models.EntityProduct, m, func(s string) bool {
				return models.ProductStatus(s).Valid()
			}, productFields)
		},
		Mutate: mutateProduct,
		Persist: func(ctx context.Context, s gateway.Store, p *models.Product) error {
			return s.SaveProduct(ctx, p)
		},
	}
}

func mutateProduct(p *models.Product, m models.Mutation, actor string, at time.Time) (models.Severity, error) {
	severity := models.SeverityMedium
	switch m.Kind {
	case models.MutationStatusChange:
		next := models.ProductStatus(m.Status)
		if err := p.TransitionTo(next); err != nil {
			return "", err
		}
		if next == models.ProductStatusDiscontinued {
			p.Flags = append(p.Flags, models.NewFlag("discontinued", models.SeverityHigh,
				flagReason(m.Reason, "product discontinued by admin"), actor, at))
			severity = models.SeverityHigh
		}
	case models.MutationFieldUpdate:
		if err := updateProductFields(p, m.Fields); err != nil {
			return "", err
		}
		severity = models.SeverityLow
	case models.MutationFlagAdd:
		p.Flags = append(p.Flags, newFlag(m.Flag, actor, at))
	case models.MutationSoftDelete:
		p.DeletedAt = &at
		severity = models.SeverityHigh
	}
	p.UpdatedAt = at
	return severity, nil
}

func updateProductFields(p *models.Product, fields map[string]any) error {
	for name, v := range fields {
		switch name {
		case "name":
			p.Name, _ = fieldString(name, v)
		case "category":
			p.Category, _ = fieldString(name, v)
		case "subcategory":
			p.Subcategory, _ = fieldString(name, v)
		case "basePrice":
			p.Pricing.BasePrice, _ = fieldDecimal(name, v)
		case "salePrice":
			p.Pricing.SalePrice, _ = fieldDecimal(name, v)
		case "taxRate":
			p.Pricing.TaxRate, _ = fieldDecimal(name, v)
		case "stock":
			p.Inventory.Stock, _ = fieldInt(name, v)
		case "reserved":
			p.Inventory.Reserved, _ = fieldInt(name, v)
		case "lowStockThreshold":
			p.Inventory.LowStockThreshold, _ = fieldInt(name, v)
		}
	}
	switch {
	case p.Pricing.BasePrice.IsNegative() || p.Pricing.SalePrice.IsNegative() || p.Pricing.TaxRate.IsNegative():
		return models.NewInvariantViolation("product_pricing", "prices and tax rate must not be negative")
	case p.Pricing.SalePrice.GreaterThan(p.Pricing.BasePrice) && p.Pricing.BasePrice.IsPositive():
		return models.NewInvariantViolation("product_pricing",
			"sale price %s exceeds base price %s", p.Pricing.SalePrice.StringFixed(2), p.Pricing.BasePrice.StringFixed(2))
	case p.Inventory.Stock < 0 || p.Inventory.Reserved < 0 || p.Inventory.LowStockThreshold < 0:
		return models.NewInvariantViolation("product_inventory", "inventory counts must not be negative")
	case p.Inventory.Reserved > p.Inventory.Stock:
		return models.NewInvariantViolation("product_inventory",
			"reserved %d exceeds stock %d", p.Inventory.Reserved, p.Inventory.Stock)
	}
	return nil
}
