package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

type PaymentMethod string

const (
	PaymentMethodCOD        PaymentMethod = "cod"
	PaymentMethodOnline     PaymentMethod = "online"
	PaymentMethodUPI        PaymentMethod = "upi"
	PaymentMethodCard       PaymentMethod = "card"
	PaymentMethodNetBanking PaymentMethod = "net_banking"
)

// orderTransitions lists the forward moves allowed from each status.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered, OrderStatusCompleted},
	OrderStatusDelivered:  {OrderStatusCompleted},
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// Cancellable reports whether a cancel request is accepted in this status.
func (s OrderStatus) Cancellable() bool {
	return s == OrderStatusPending || s == OrderStatusProcessing
}

type LineItem struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	SKU       string          `json:"sku" validate:"required"`
	Quantity  int             `json:"quantity" validate:"min=1"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Category  string          `json:"category"`
}

func (li LineItem) Total() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

type Address struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Pincode string `json:"pincode"`
	Country string `json:"country"`
}

type RefundInfo struct {
	Amount     decimal.Decimal `json:"amount"`
	Reason     string          `json:"reason"`
	RefundedBy string          `json:"refundedBy"`
	RefundedAt time.Time       `json:"refundedAt"`
}

type Order struct {
	OrderID         string          `json:"orderId" validate:"required"`
	CustomerID      string          `json:"customerId" validate:"required"`
	Items           []LineItem      `json:"items" validate:"required,min=1,dive"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	TaxAmount       decimal.Decimal `json:"taxAmount"`
	ShippingCharges decimal.Decimal `json:"shippingCharges"`
	Discount        decimal.Decimal `json:"discount"`
	FinalAmount     decimal.Decimal `json:"finalAmount"`
	PaymentMethod   PaymentMethod   `json:"paymentMethod" validate:"oneof=cod online upi card net_banking"`
	PaymentStatus   PaymentStatus   `json:"paymentStatus" validate:"oneof=pending paid failed refunded"`
	Status          OrderStatus     `json:"status" validate:"oneof=pending processing shipped delivered completed cancelled"`
	OrderDate       time.Time       `json:"orderDate" validate:"required"`
	ShippingAddress Address         `json:"shippingAddress"`
	Flags           []Flag          `json:"flags,omitempty" validate:"dive"`
	RefundInfo      *RefundInfo     `json:"refundInfo,omitempty"`
	DeletedAt       *time.Time      `json:"deletedAt,omitempty"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// ComputeFinalAmount returns subtotal + tax + shipping - discount.
func (o *Order) ComputeFinalAmount() decimal.Decimal {
	return o.Subtotal.Add(o.TaxAmount).Add(o.ShippingCharges).Sub(o.Discount)
}

var totalsTolerance = decimal.New(1, -2)

// CheckTotals verifies the final amount within a one-cent rounding tolerance.
func (o *Order) CheckTotals() error {
	want := o.ComputeFinalAmount()
	if o.FinalAmount.Sub(want).Abs().GreaterThan(totalsTolerance) {
		return NewInvariantViolation("final_amount",
			"order %s final amount %s does not equal subtotal+tax+shipping-discount %s",
			o.OrderID, o.FinalAmount.StringFixed(2), want.StringFixed(2))
	}
	return nil
}

// IsRevenue reports whether the order counts towards realized revenue.
func (o *Order) IsRevenue() bool {
	return o.PaymentStatus == PaymentStatusPaid ||
		o.Status == OrderStatusCompleted ||
		o.Status == OrderStatusDelivered
}

func (o *Order) IsDeleted() bool {
	return o.DeletedAt != nil
}

func (o *Order) OpenFlags() int {
	return openFlagCount(o.Flags)
}

// TransitionTo moves the order along the status state machine.
func (o *Order) TransitionTo(next OrderStatus) error {
	if !next.Valid() {
		return NewInvariantViolation("order_status", "unknown status %q", next)
	}
	if next == OrderStatusCancelled && !o.Status.Cancellable() {
		return NewInvariantViolation("order_cancel",
			"order %s cannot be cancelled in status %s", o.OrderID, o.Status)
	}
	for _, allowed := range orderTransitions[o.Status] {
		if allowed == next {
			o.Status = next
			return nil
		}
	}
	return NewInvariantViolation("order_status",
		"order %s cannot move from %s to %s", o.OrderID, o.Status, next)
}

// Refund marks the order refunded and cancelled together. Nothing changes when
// the refund is rejected.
func (o *Order) Refund(amount decimal.Decimal, reason, actor string, at time.Time) error {
	if o.PaymentStatus != PaymentStatusPaid {
		return NewInvariantViolation("order_refund",
			"order %s payment status is %s, refunds require paid", o.OrderID, o.PaymentStatus)
	}
	if !amount.IsPositive() {
		return NewInvariantViolation("order_refund", "refund amount must be positive")
	}
	if amount.GreaterThan(o.FinalAmount) {
		return NewInvariantViolation("order_refund",
			"refund amount %s exceeds order total %s", amount.StringFixed(2), o.FinalAmount.StringFixed(2))
	}
	o.RefundInfo = &RefundInfo{
		Amount:     amount,
		Reason:     reason,
		RefundedBy: actor,
		RefundedAt: at,
	}
	o.PaymentStatus = PaymentStatusRefunded
	o.Status = OrderStatusCancelled
	return nil
}

// IsSuspicious applies the dashboard anomaly heuristic.
func (o *Order) IsSuspicious(highValue decimal.Decimal) bool {
	return o.FinalAmount.GreaterThan(highValue) ||
		o.PaymentStatus == PaymentStatusFailed ||
		o.Status == OrderStatusCancelled
}
