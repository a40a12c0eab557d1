package analytics

import (
	"fmt"
	"time"

	"backoffice-svc/models"

	"github.com/shopspring/decimal"
)

const (
	TotalsRecompute    = "recompute"
	TotalsDenormalized = "denormalized"
)

// TotalsSource yields a customer's order count and spend.
type TotalsSource interface {
	Totals(c *models.Customer, orders []models.Order) models.CustomerTotals
	Mode() string
}

func NewTotalsSource(mode string) (TotalsSource, error) {
	switch mode {
	case "", TotalsRecompute:
		return RecomputedTotals{}, nil
	case TotalsDenormalized:
		return DenormalizedTotals{}, nil
	}
	return nil, models.NewValidationError("totalsMode", "unknown totals mode %q", mode)
}

// RecomputedTotals derives the totals from the customer's non-cancelled orders
// and ignores the stored counters.
type RecomputedTotals struct{}

func (RecomputedTotals) Mode() string { return TotalsRecompute }

func (RecomputedTotals) Totals(c *models.Customer, orders []models.Order) models.CustomerTotals {
	return RecomputeTotals(c.CustomerID, orders)
}

// DenormalizedTotals trusts the counters maintained by order completions.
type DenormalizedTotals struct{}

func (DenormalizedTotals) Mode() string { return TotalsDenormalized }

func (DenormalizedTotals) Totals(c *models.Customer, _ []models.Order) models.CustomerTotals {
	return models.CustomerTotals{
		TotalOrders:   c.TotalOrders,
		TotalSpent:    c.TotalSpent,
		LastOrderDate: c.LastOrderDate,
	}
}

func RecomputeTotals(customerID string, orders []models.Order) models.CustomerTotals {
	t := models.CustomerTotals{TotalSpent: decimal.Zero}
	var last time.Time
	for i := range orders {
		o := &orders[i]
		if o.CustomerID != customerID || o.IsDeleted() || o.Status == models.OrderStatusCancelled {
			continue
		}
		t.TotalOrders++
		t.TotalSpent = t.TotalSpent.Add(o.FinalAmount)
		if o.OrderDate.After(last) {
			last = o.OrderDate
		}
	}
	if t.TotalOrders > 0 {
		t.LastOrderDate = &last
	}
	return t
}

// Drift describes a customer whose stored counters disagree with its orders.
type Drift struct {
	CustomerID string                `json:"customerId"`
	Stored     models.CustomerTotals `json:"stored"`
	Actual     models.CustomerTotals `json:"actual"`
}

func (d Drift) String() string {
	return fmt.Sprintf("%s: stored %d/%s, actual %d/%s", d.CustomerID,
		d.Stored.TotalOrders, d.Stored.TotalSpent.StringFixed(2),
		d.Actual.TotalOrders, d.Actual.TotalSpent.StringFixed(2))
}

// CheckDrift compares stored counters with recomputed ones.
func CheckDrift(customerID string, stored models.CustomerTotals, orders []models.Order) (Drift, bool) {
	actual := RecomputeTotals(customerID, orders)
	if stored.TotalOrders == actual.TotalOrders && stored.TotalSpent.Equal(actual.TotalSpent) {
		return Drift{}, false
	}
	return Drift{CustomerID: customerID, Stored: stored, Actual: actual}, true
}
