package analytics

import (
	"backoffice-svc/models"
	"backoffice-svc/window"

	"github.com/shopspring/decimal"
)

type KPISnapshot struct {
	Revenue       decimal.Decimal `json:"revenue"`
	Orders        int             `json:"orders"`
	NewCustomers  int             `json:"newCustomers"`
	AvgOrderValue decimal.Decimal `json:"avgOrderValue"`
}

type GrowthRates struct {
	Revenue       int `json:"revenue"`
	Orders        int `json:"orders"`
	NewCustomers  int `json:"newCustomers"`
	AvgOrderValue int `json:"avgOrderValue"`
}

type KPIReport struct {
	KPISnapshot
	Growth   GrowthRates `json:"growth"`
	Previous KPISnapshot `json:"previous"`
	Window   window.Pair `json:"window"`
}

// ComputeKPIs totals one window. Orders outside w, deleted orders and customers
// registered outside w are ignored.
func ComputeKPIs(orders []models.Order, customers []models.Customer, w window.Window) KPISnapshot {
	var s KPISnapshot
	for i := range orders {
		o := &orders[i]
		if o.IsDeleted() || !w.Contains(o.OrderDate) {
			continue
		}
		s.Orders++
		if o.IsRevenue() {
			s.Revenue = s.Revenue.Add(o.FinalAmount)
		}
	}
	for i := range customers {
		c := &customers[i]
		if !c.IsDeleted() && w.Contains(c.RegistrationDate) {
			s.NewCustomers++
		}
	}
	if s.Orders > 0 {
		s.AvgOrderValue = s.Revenue.Div(decimal.NewFromInt(int64(s.Orders))).Round(2)
	}
	return s
}

// CompareKPIs computes both windows of p and the growth between them.
func CompareKPIs(orders []models.Order, customers []models.Customer, p window.Pair) KPIReport {
	cur := ComputeKPIs(orders, customers, p.Current)
	prev := ComputeKPIs(orders, customers, p.Previous)
	return KPIReport{
		KPISnapshot: cur,
		Previous:    prev,
		Window:      p,
		Growth: GrowthRates{
			Revenue:       growthDecimal(prev.Revenue, cur.Revenue),
			Orders:        Growth(float64(prev.Orders), float64(cur.Orders)),
			NewCustomers:  Growth(float64(prev.NewCustomers), float64(cur.NewCustomers)),
			AvgOrderValue: growthDecimal(prev.AvgOrderValue, cur.AvgOrderValue),
		},
	}
}
