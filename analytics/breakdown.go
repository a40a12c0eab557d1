package analytics

import (
	"sort"
	"strings"

	"backoffice-svc/models"
	"backoffice-svc/window"

	"github.com/shopspring/decimal"
)

type Dimension string

const (
	DimensionCategory      Dimension = "category"
	DimensionPaymentMethod Dimension = "paymentMethod"
	DimensionGeography     Dimension = "geography"
)

type GeoLevel string

const (
	GeoState   GeoLevel = "state"
	GeoCity    GeoLevel = "city"
	GeoPincode GeoLevel = "pincode"
)

const unknownKey = "unknown"

type GroupRow struct {
	Key     string          `json:"key"`
	Count   int             `json:"count"`
	Revenue decimal.Decimal `json:"revenue"`
}

func ParseDimension(s string) (Dimension, error) {
	switch strings.ToLower(s) {
	case "category":
		return DimensionCategory, nil
	case "paymentmethod", "payment_method", "payment":
		return DimensionPaymentMethod, nil
	case "geography", "geo":
		return DimensionGeography, nil
	}
	return "", models.NewValidationError("dimension", "unknown breakdown dimension %q", s)
}

func ParseGeoLevel(s string) (GeoLevel, error) {
	switch GeoLevel(strings.ToLower(s)) {
	case "", GeoState:
		return GeoState, nil
	case GeoCity:
		return GeoCity, nil
	case GeoPincode:
		return GeoPincode, nil
	}
	return "", models.NewValidationError("level", "unknown geography level %q", s)
}

// Breakdown groups the orders of w by dim. Count covers every order; revenue
// only revenue-eligible ones. For categories an order counts once per category
// and contributes its line totals. Rows are sorted by revenue descending, then
// key ascending.
func Breakdown(orders []models.Order, w window.Window, dim Dimension, level GeoLevel) []GroupRow {
	groups := make(map[string]*GroupRow)
	row := func(key string) *GroupRow {
		if key == "" {
			key = unknownKey
		}
		r, ok := groups[key]
		if !ok {
			r = &GroupRow{Key: key, Revenue: decimal.Zero}
			groups[key] = r
		}
		return r
	}

	for i := range orders {
		o := &orders[i]
		if o.IsDeleted() || !w.Contains(o.OrderDate) {
			continue
		}
		switch dim {
		case DimensionCategory:
			seen := make(map[string]bool, len(o.Items))
			for _, li := range o.Items {
				r := row(li.Category)
				if !seen[r.Key] {
					seen[r.Key] = true
					r.Count++
				}
				if o.IsRevenue() {
					r.Revenue = r.Revenue.Add(li.Total())
				}
			}
		case DimensionPaymentMethod:
			r := row(string(o.PaymentMethod))
			r.Count++
			if o.IsRevenue() {
				r.Revenue = r.Revenue.Add(o.FinalAmount)
			}
		case DimensionGeography:
			r := row(geoKey(o.ShippingAddress, level))
			r.Count++
			if o.IsRevenue() {
				r.Revenue = r.Revenue.Add(o.FinalAmount)
			}
		}
	}

	out := make([]GroupRow, 0, len(groups))
	for _, r := range groups {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Revenue.Cmp(out[j].Revenue); c != 0 {
			return c > 0
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func geoKey(a models.Address, level GeoLevel) string {
	switch level {
	case GeoCity:
		return strings.TrimSpace(a.City)
	case GeoPincode:
		return strings.TrimSpace(a.Pincode)
	}
	return strings.TrimSpace(a.State)
}
