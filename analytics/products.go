package analytics

import (
	"math"
	"sort"
	"time"

	"backoffice-svc/models"

	"github.com/shopspring/decimal"
)

const popularityRecencyDays = 90

type ProductRank struct {
	SKU             string          `json:"sku"`
	Name            string          `json:"name"`
	Category        string          `json:"category"`
	Views           int64           `json:"views"`
	Purchases       int64           `json:"purchases"`
	Revenue         decimal.Decimal `json:"revenue"`
	ConversionRate  float64         `json:"conversionRate"`
	PopularityScore float64         `json:"popularityScore"`
	LowStock        bool            `json:"lowStock"`
}

// ConversionRate is purchases/views to four decimals, 0 without views.
func ConversionRate(views, purchases int64) float64 {
	if views <= 0 {
		return 0
	}
	return math.Round(float64(purchases)/float64(views)*10000) / 10000
}

// PopularityScore is 0-100: 50 for revenue and 30 for views, each relative to
// the best product in the set, plus 20 for recency decaying over 90 days.
func PopularityScore(a models.ProductAnalytics, maxRevenue decimal.Decimal, maxViews int64, now time.Time) float64 {
	score := 0.0
	if maxRevenue.IsPositive() {
		score += 50 * a.Revenue.Div(maxRevenue).InexactFloat64()
	}
	if maxViews > 0 {
		score += 30 * float64(a.Views) / float64(maxViews)
	}
	if a.LastPurchasedAt != nil {
		days := now.Sub(*a.LastPurchasedAt).Hours() / 24
		score += 20 * math.Max(0, 1-math.Max(0, days)/popularityRecencyDays)
	}
	return math.Round(score*100) / 100
}

// TopProducts ranks products by popularity, ties by SKU. limit <= 0 returns all.
func TopProducts(products []models.Product, limit int, now time.Time) []ProductRank {
	maxRevenue := decimal.Zero
	var maxViews int64
	for i := range products {
		a := products[i].Analytics
		if a.Revenue.GreaterThan(maxRevenue) {
			maxRevenue = a.Revenue
		}
		if a.Views > maxViews {
			maxViews = a.Views
		}
	}

	out := make([]ProductRank, 0, len(products))
	for i := range products {
		p := &products[i]
		if p.IsDeleted() {
			continue
		}
		out = append(out, ProductRank{
			SKU:             p.SKU,
			Name:            p.Name,
			Category:        p.Category,
			Views:           p.Analytics.Views,
			Purchases:       p.Analytics.Purchases,
			Revenue:         p.Analytics.Revenue,
			ConversionRate:  ConversionRate(p.Analytics.Views, p.Analytics.Purchases),
			PopularityScore: PopularityScore(p.Analytics, maxRevenue, maxViews, now),
			LowStock:        p.Inventory.LowStock(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PopularityScore != out[j].PopularityScore {
			return out[i].PopularityScore > out[j].PopularityScore
		}
		return out[i].SKU < out[j].SKU
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
