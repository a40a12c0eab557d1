package analytics

import (
	"sort"

	"backoffice-svc/models"
	"backoffice-svc/window"

	"github.com/shopspring/decimal"
)

type AnomalyReport struct {
	FlaggedCount  int      `json:"flaggedCount"`
	HighValue     int      `json:"highValue"`
	PaymentFailed int      `json:"paymentFailed"`
	Cancelled     int      `json:"cancelled"`
	FlaggedOrders []string `json:"flaggedOrders"`
}

// Anomalies counts suspicious orders in w. It only reports; nothing is blocked.
func Anomalies(orders []models.Order, w window.Window, highValue decimal.Decimal) AnomalyReport {
	r := AnomalyReport{FlaggedOrders: []string{}}
	for i := range orders {
		o := &orders[i]
		if o.IsDeleted() || !w.Contains(o.OrderDate) || !o.IsSuspicious(highValue) {
			continue
		}
		r.FlaggedCount++
		r.FlaggedOrders = append(r.FlaggedOrders, o.OrderID)
		if o.FinalAmount.GreaterThan(highValue) {
			r.HighValue++
		}
		if o.PaymentStatus == models.PaymentStatusFailed {
			r.PaymentFailed++
		}
		if o.Status == models.OrderStatusCancelled {
			r.Cancelled++
		}
	}
	sort.Strings(r.FlaggedOrders)
	return r
}
