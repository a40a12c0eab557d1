package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderCompletion is the side effect of an order reaching completed. Stores
// apply it as increments, never as a read-modify-write of a stale snapshot.
// The same payload reverses the counters when a completed order is later
// refunded or removed.
type OrderCompletion struct {
	OrderID     string           `json:"order_id"`
	CustomerID  string           `json:"customer_id"`
	Amount      decimal.Decimal  `json:"amount"`
	CompletedAt time.Time        `json:"completed_at"`
	Items       []CompletionItem `json:"items"`
}

type CompletionItem struct {
	SKU      string          `json:"sku"`
	Quantity int             `json:"quantity"`
	Revenue  decimal.Decimal `json:"revenue"`
}

func CompletionFromOrder(o *Order, at time.Time) OrderCompletion {
	items := make([]CompletionItem, 0, len(o.Items))
	for _, li := range o.Items {
		items = append(items, CompletionItem{SKU: li.SKU, Quantity: li.Quantity, Revenue: li.Total()})
	}
	return OrderCompletion{
		OrderID:     o.OrderID,
		CustomerID:  o.CustomerID,
		Amount:      o.FinalAmount,
		CompletedAt: at,
		Items:       items,
	}
}

// CustomerTotals are the order count and spend of one customer's non-cancelled orders.
type CustomerTotals struct {
	TotalOrders   int             `json:"totalOrders"`
	TotalSpent    decimal.Decimal `json:"totalSpent"`
	LastOrderDate *time.Time      `json:"lastOrderDate,omitempty"`
}
