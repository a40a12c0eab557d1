package analytics

import (
	"math"
	"time"

	"backoffice-svc/models"
	"backoffice-svc/window"

	"github.com/shopspring/decimal"
)

var (
	vipMinSpent   = decimal.NewFromInt(50000)
	loyalMinSpent = decimal.NewFromInt(20000)
)

const (
	vipMinOrders       = 10
	loyalMinOrders     = 5
	returningMinOrders = 2

	riskHighAbove   = 30.0
	riskMediumAbove = 15.0

	// NeverOrdered is the daysSinceLastOrder of a customer without orders.
	NeverOrdered = -1
)

// Segment classifies by order count and spend. The first matching rule wins:
// vip, loyal, returning, new.
func Segment(totalOrders int, totalSpent decimal.Decimal) models.Segment {
	switch {
	case totalOrders >= vipMinOrders && totalSpent.GreaterThanOrEqual(vipMinSpent):
		return models.SegmentVIP
	case totalOrders >= loyalMinOrders && totalSpent.GreaterThanOrEqual(loyalMinSpent):
		return models.SegmentLoyal
	case totalOrders >= returningMinOrders:
		return models.SegmentReturning
	}
	return models.SegmentNew
}

// RiskScore is the share of the customer's orders that were cancelled or whose
// payment failed, in percent with two decimals. An order matching both counts
// once. No orders scores 0.
func RiskScore(orders []models.Order) float64 {
	total, risky := 0, 0
	for i := range orders {
		o := &orders[i]
		if o.IsDeleted() {
			continue
		}
		total++
		if o.Status == models.OrderStatusCancelled || o.PaymentStatus == models.PaymentStatusFailed {
			risky++
		}
	}
	return percent(risky, total)
}

func RiskLevelFor(score float64) models.RiskLevel {
	switch {
	case score > riskHighAbove:
		return models.RiskHigh
	case score > riskMediumAbove:
		return models.RiskMedium
	}
	return models.RiskLow
}

const (
	RecOnboarding    = "onboarding_nudge"
	RecSecondOrder   = "repeat_purchase_incentive"
	RecLoyaltyReward = "loyalty_reward"
	RecVIPRetention  = "vip_retention_perk"
	RecManualReview  = "manual_review"
	RecWinBack       = "win_back_campaign"
	RecTargetedOffer = "targeted_offer"
)

// Recommendations is evaluated in a fixed order: segment, risk, recency.
func Recommendations(segment models.Segment, risk models.RiskLevel, daysSinceLastOrder int) []string {
	recs := make([]string, 0, 3)
	switch segment {
	case models.SegmentNew:
		recs = append(recs, RecOnboarding)
	case models.SegmentReturning:
		recs = append(recs, RecSecondOrder)
	case models.SegmentLoyal:
		recs = append(recs, RecLoyaltyReward)
	case models.SegmentVIP:
		recs = append(recs, RecVIPRetention)
	}
	if risk == models.RiskHigh {
		recs = append(recs, RecManualReview)
	}
	switch {
	case daysSinceLastOrder > 90:
		recs = append(recs, RecWinBack)
	case daysSinceLastOrder > 30:
		recs = append(recs, RecTargetedOffer)
	}
	return recs
}

// DaysSinceLastOrder returns NeverOrdered when last is nil.
func DaysSinceLastOrder(last *time.Time, now time.Time) int {
	if last == nil {
		return NeverOrdered
	}
	return window.DaysBetween(*last, now)
}

// EngagementScore is 0-100: 40 for recency decaying linearly over 180 days,
// 30 for frequency (10 orders saturate) and 30 for spend (50,000 saturates).
func EngagementScore(t models.CustomerTotals, now time.Time) int {
	recency := 0.0
	if days := DaysSinceLastOrder(t.LastOrderDate, now); days >= 0 {
		recency = 40 * math.Max(0, 1-float64(days)/180)
	}
	frequency := 30 * math.Min(1, float64(t.TotalOrders)/10)
	monetary := 30 * math.Min(1, t.TotalSpent.InexactFloat64()/50000)
	if monetary < 0 {
		monetary = 0
	}
	return int(math.Round(recency + frequency + monetary))
}

// ChurnRisk grades recency. Customers who never ordered are high risk once their
// account is older than 90 days.
func ChurnRisk(t models.CustomerTotals, registered, now time.Time) models.RiskLevel {
	days := DaysSinceLastOrder(t.LastOrderDate, now)
	if days == NeverOrdered {
		if window.DaysBetween(registered, now) > 90 {
			return models.RiskHigh
		}
		return models.RiskLow
	}
	switch {
	case days <= 30:
		return models.RiskLow
	case days <= 90:
		return models.RiskMedium
	}
	return models.RiskHigh
}

// StoredSegment is the segmentation persisted on the customer record: at_risk
// for lapsing customers who have ordered before, otherwise Segment.
func StoredSegment(t models.CustomerTotals, churn models.RiskLevel) models.Segment {
	if churn == models.RiskHigh && t.TotalOrders > 0 {
		return models.SegmentAtRisk
	}
	return Segment(t.TotalOrders, t.TotalSpent)
}

type CustomerInsights struct {
	CustomerID         string           `json:"customerId"`
	Segment            models.Segment   `json:"segment"`
	RiskScore          float64          `json:"riskScore"`
	RiskLevel          models.RiskLevel `json:"riskLevel"`
	DaysSinceLastOrder int              `json:"daysSinceLastOrder"`
	TotalOrders        int              `json:"totalOrders"`
	TotalSpent         decimal.Decimal  `json:"totalSpent"`
	EngagementScore    int              `json:"engagementScore"`
	ChurnRisk          models.RiskLevel `json:"churnRisk"`
	Recommendations    []string         `json:"recommendations"`
}

// Insights combines segment, risk and recommendations for one customer. orders
// must be that customer's own orders.
func Insights(c *models.Customer, orders []models.Order, totals models.CustomerTotals, now time.Time) CustomerInsights {
	segment := Segment(totals.TotalOrders, totals.TotalSpent)
	score := RiskScore(orders)
	level := RiskLevelFor(score)
	days := DaysSinceLastOrder(totals.LastOrderDate, now)
	return CustomerInsights{
		CustomerID:         c.CustomerID,
		Segment:            segment,
		RiskScore:          score,
		RiskLevel:          level,
		DaysSinceLastOrder: days,
		TotalOrders:        totals.TotalOrders,
		TotalSpent:         totals.TotalSpent,
		EngagementScore:    EngagementScore(totals, now),
		ChurnRisk:          ChurnRisk(totals, c.RegistrationDate, now),
		Recommendations:    Recommendations(segment, level, days),
	}
}
