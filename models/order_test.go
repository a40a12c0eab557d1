package models

import (
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleOrder() *Order {
	o := &Order{
		OrderID:    "ORD-1001",
		CustomerID: "CUS-1",
		Items: []LineItem{
			{ProductID: "p1", Name: "Kettle", SKU: "KET-01", Quantity: 2, UnitPrice: decimal.RequireFromString("499.50"), Category: "kitchen"},
		},
		Subtotal:        decimal.RequireFromString("999.00"),
		TaxAmount:       decimal.RequireFromString("179.82"),
		ShippingCharges: decimal.RequireFromString("40"),
		Discount:        decimal.RequireFromString("100"),
		PaymentMethod:   PaymentMethodUPI,
		PaymentStatus:   PaymentStatusPaid,
		Status:          OrderStatusProcessing,
		OrderDate:       time.Date(2026, 10, 1, 10, 0, 0, 0, time.UTC),
	}
	o.FinalAmount = o.ComputeFinalAmount()
	return o
}

func TestOrder_FinalAmountInvariant(t *testing.T) {
	o := sampleOrder()
	assert.Equal(t, "1118.82", o.FinalAmount.StringFixed(2))
	require.NoError(t, o.CheckTotals())
	require.NoError(t, o.Validate())

	o.FinalAmount = o.FinalAmount.Add(decimal.RequireFromString("0.005"))
	assert.NoError(t, o.CheckTotals(), "half a cent is within rounding tolerance")

	o.FinalAmount = o.FinalAmount.Add(decimal.NewFromInt(1))
	err := o.CheckTotals()
	require.Error(t, err)
	assert.True(t, IsInvariantViolation(err))
}

func TestOrder_FinalAmountInvariantRandom(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		o := &Order{
			Subtotal:        decimal.New(r.Int63n(1_000_000), -2),
			TaxAmount:       decimal.New(r.Int63n(100_000), -2),
			ShippingCharges: decimal.New(r.Int63n(10_000), -2),
			Discount:        decimal.New(r.Int63n(50_000), -2),
		}
		o.FinalAmount = o.ComputeFinalAmount()
		want := o.Subtotal.Add(o.TaxAmount).Add(o.ShippingCharges).Sub(o.Discount)
		require.True(t, o.FinalAmount.Equal(want))
		require.NoError(t, o.CheckTotals())
	}
}

func TestOrder_ValidateRejectsBadLineItems(t *testing.T) {
	o := sampleOrder()
	o.Items[0].Quantity = 0
	err := o.Validate()
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	o = sampleOrder()
	o.PaymentMethod = "cheque"
	assert.True(t, IsValidation(o.Validate()))
}

func TestOrder_TransitionTo(t *testing.T) {
	cases := []struct {
		from, to OrderStatus
		ok       bool
	}{
		{OrderStatusPending, OrderStatusProcessing, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusProcessing, OrderStatusShipped, true},
		{OrderStatusProcessing, OrderStatusCancelled, true},
		{OrderStatusShipped, OrderStatusDelivered, true},
		{OrderStatusShipped, OrderStatusCompleted, true},
		{OrderStatusDelivered, OrderStatusCompleted, true},
		{OrderStatusShipped, OrderStatusCancelled, false},
		{OrderStatusDelivered, OrderStatusCancelled, false},
		{OrderStatusCompleted, OrderStatusCancelled, false},
		{OrderStatusCancelled, OrderStatusCancelled, false},
		{OrderStatusPending, OrderStatusShipped, false},
		{OrderStatusCompleted, OrderStatusPending, false},
		{OrderStatusPending, "lost", false},
	}
	for _, tc := range cases {
		o := sampleOrder()
		o.Status = tc.from
		err := o.TransitionTo(tc.to)
		if tc.ok {
			assert.NoError(t, err, "%s -> %s", tc.from, tc.to)
			assert.Equal(t, tc.to, o.Status)
		} else {
			assert.True(t, IsInvariantViolation(err), "%s -> %s", tc.from, tc.to)
			assert.Equal(t, tc.from, o.Status, "status must not change on rejection")
		}
	}
}

func TestOrder_RefundPairsPaymentAndStatus(t *testing.T) {
	statuses := []OrderStatus{OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCompleted, OrderStatusCancelled}
	payments := []PaymentStatus{PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusRefunded}
	r := rand.New(rand.NewSource(42))
	at := time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 1000; i++ {
		o := sampleOrder()
		o.Status = statuses[r.Intn(len(statuses))]
		o.PaymentStatus = payments[r.Intn(len(payments))]
		amount := decimal.New(r.Int63n(150_000)+1, -2)
		beforeStatus, beforePayment := o.Status, o.PaymentStatus

		err := o.Refund(amount, "damaged", "admin-1", at)
		if err == nil {
			require.Equal(t, PaymentStatusRefunded, o.PaymentStatus)
			require.Equal(t, OrderStatusCancelled, o.Status)
			require.NotNil(t, o.RefundInfo)
			require.True(t, o.RefundInfo.Amount.Equal(amount))
			continue
		}
		require.True(t, IsInvariantViolation(err))
		require.Equal(t, beforeStatus, o.Status)
		require.Equal(t, beforePayment, o.PaymentStatus)
		require.Nil(t, o.RefundInfo)
	}
}

func TestOrder_RefundRejections(t *testing.T) {
	o := sampleOrder()
	err := o.Refund(o.FinalAmount.Add(decimal.NewFromInt(1)), "too much", "admin", time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds order total")

	o.PaymentStatus = PaymentStatusPending
	err = o.Refund(decimal.NewFromInt(10), "unpaid", "admin", time.Now())
	assert.True(t, IsInvariantViolation(err))
}

func TestOrder_IsSuspicious(t *testing.T) {
	threshold := decimal.NewFromInt(100000)
	o := sampleOrder()
	assert.False(t, o.IsSuspicious(threshold))

	o.FinalAmount = decimal.NewFromInt(150000)
	assert.True(t, o.IsSuspicious(threshold))

	o = sampleOrder()
	o.PaymentStatus = PaymentStatusFailed
	assert.True(t, o.IsSuspicious(threshold))

	o = sampleOrder()
	o.Status = OrderStatusCancelled
	assert.True(t, o.IsSuspicious(threshold))
}

func TestParseEntityType(t *testing.T) {
	for in, want := range map[string]EntityType{
		"orders": EntityOrder, "Product": EntityProduct, "users": EntityCustomer, "customer": EntityCustomer,
	} {
		got, err := ParseEntityType(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseEntityType("invoices")
	assert.True(t, IsValidation(err))
}
