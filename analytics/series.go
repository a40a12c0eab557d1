package analytics

import (
	"time"

	"backoffice-svc/models"
	"backoffice-svc/window"

	"github.com/shopspring/decimal"
)

type SeriesPoint struct {
	Date       string          `json:"date"`
	OrderCount int             `json:"orderCount"`
	Revenue    decimal.Decimal `json:"revenue"`
}

// SalesSeries returns one point per calendar day of w, zero-filled, oldest
// first. Order dates are bucketed in loc.
func SalesSeries(orders []models.Order, w window.Window, loc *time.Location) []SeriesPoint {
	days := w.Days()
	points := make([]SeriesPoint, len(days))
	index := make(map[string]int, len(days))
	for i, d := range days {
		key := d.In(loc).Format(time.DateOnly)
		points[i] = SeriesPoint{Date: key, Revenue: decimal.Zero}
		index[key] = i
	}
	for i := range orders {
		o := &orders[i]
		if o.IsDeleted() || !w.Contains(o.OrderDate) {
			continue
		}
		j, ok := index[o.OrderDate.In(loc).Format(time.DateOnly)]
		if !ok {
			continue
		}
		points[j].OrderCount++
		if o.IsRevenue() {
			points[j].Revenue = points[j].Revenue.Add(o.FinalAmount)
		}
	}
	return points
}
