// Package analytics derives dashboard metrics from raw orders, customers and
// products. The compute functions are pure; Aggregator feeds them through the
// record gateway.
package analytics

import (
	"math"

	"github.com/shopspring/decimal"
)

// Growth is the period-over-period change in percent, rounded to the nearest
// integer. A zero previous period yields 100 when current is positive and 0
// otherwise.
func Growth(previous, current float64) int {
	if previous == 0 {
		if current > 0 {
			return 100
		}
		return 0
	}
	return int(math.Round((current - previous) / previous * 100))
}

func growthDecimal(previous, current decimal.Decimal) int {
	return Growth(previous.InexactFloat64(), current.InexactFloat64())
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(whole)*100*100) / 100
}
