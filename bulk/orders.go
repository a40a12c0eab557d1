package bulk

import (
	"context"
	"time"

	"backoffice-svc/gateway"
	"backoffice-svc/models"
)

// CompletionSink receives the counter side effects of an order reaching
// completed and of a completed order being refunded or removed.
// kafka.CompletionPublisher and DirectCompletions implement it.
type CompletionSink interface {
	OrderCompleted(ctx context.Context, ev models.OrderCompletion) error
	OrderReversed(ctx context.Context, ev models.OrderCompletion) error
}

// DirectCompletions applies completions to the store in the request path.
type DirectCompletions struct {
	store gateway.Store
}

func NewDirectCompletions(store gateway.Store) *DirectCompletions {
	return &DirectCompletions{store: store}
}

func (d *DirectCompletions) OrderCompleted(ctx context.Context, ev models.OrderCompletion) error {
	return d.store.ApplyOrderCompletion(ctx, ev)
}

func (d *DirectCompletions) OrderReversed(ctx context.Context, ev models.OrderCompletion) error {
	return d.store.ReverseOrderCompletion(ctx, ev)
}

var orderFields = fieldSet{
	"street":        isString,
	"city":          isString,
	"state":         isString,
	"pincode":       isString,
	"country":       isString,
	"paymentStatus": oneOf(func(s models.PaymentStatus) bool {
		return s == models.PaymentStatusPending || s == models.PaymentStatusPaid || s == models.PaymentStatusFailed
	}),
	"discount": isDecimal,
}

// OrderHandler wires orders into the executor. A nil sink skips completion counters.
func OrderHandler(completions CompletionSink) Handler[models.Order] {
	return Handler[models.Order]{
		Entity: models.EntityOrder,
		Load: func(ctx context.Context, s gateway.Store, id string) (*models.Order, error) {
			o, err := s.GetOrder(ctx, id)
			if err != nil {
				return nil, err
			}
			if err := o.Validate(); err != nil {
				return nil, err
			}
			return o, nil
		},
		Validate: validateOrderMutation,
		Mutate:   mutateOrder,
		Persist: func(ctx context.Context, s gateway.Store, o *models.Order) error {
			return s.SaveOrder(ctx, o)
		},
		AfterPersist: func(ctx context.Context, before, after *models.Order, at time.Time) error {
			if completions == nil {
				return nil
			}
			wasCounted := before.Status == models.OrderStatusCompleted && !before.IsDeleted()
			isCounted := after.Status == models.OrderStatusCompleted && !after.IsDeleted()
			switch {
			case !wasCounted && isCounted:
				return completions.OrderCompleted(ctx, models.CompletionFromOrder(after, at))
			case wasCounted && !isCounted:
				return completions.OrderReversed(ctx, models.CompletionFromOrder(before, at))
			}
			return nil
		},
	}
}

func validateOrderMutation(m models.Mutation) error {
	if m.Kind == models.MutationRefund {
		if m.Amount != nil && !m.Amount.IsPositive() {
			return models.NewValidationError("amount", "must be positive")
		}
		return nil
	}
	return validateCommon(models.EntityOrder, m, func(s string) bool {
		return models.OrderStatus(s).Valid()
	}, orderFields)
}

func mutateOrder(o *models.Order, m models.Mutation, actor string, at time.Time) (models.Severity, error) {
	severity := models.SeverityMedium
	switch m.Kind {
	case models.MutationStatusChange:
		next := models.OrderStatus(m.Status)
		if err := o.TransitionTo(next); err != nil {
			return "", err
		}
		if next == models.OrderStatusCancelled {
			o.Flags = append(o.Flags, models.NewFlag("cancelled", models.SeverityMedium,
				flagReason(m.Reason, "order cancelled by admin"), actor, at))
			severity = models.SeverityHigh
		}
	case models.MutationRefund:
		amount := o.FinalAmount
		if m.Amount != nil {
			amount = *m.Amount
		}
		if err := o.Refund(amount, flagReason(m.Reason, "refund issued by admin"), actor, at); err != nil {
			return "", err
		}
		severity = models.SeverityHigh
	case models.MutationFieldUpdate:
		if err := updateOrderFields(o, m.Fields); err != nil {
			return "", err
		}
		severity = models.SeverityLow
	case models.MutationFlagAdd:
		o.Flags = append(o.Flags, newFlag(m.Flag, actor, at))
	case models.MutationSoftDelete:
		o.DeletedAt = &at
		severity = models.SeverityHigh
	}
	o.UpdatedAt = at
	return severity, nil
}

func updateOrderFields(o *models.Order, fields map[string]any) error {
	for name, v := range fields {
		switch name {
		case "street":
			o.ShippingAddress.Street, _ = fieldString(name, v)
		case "city":
			o.ShippingAddress.City, _ = fieldString(name, v)
		case "state":
			o.ShippingAddress.State, _ = fieldString(name, v)
		case "pincode":
			o.ShippingAddress.Pincode, _ = fieldString(name, v)
		case "country":
			o.ShippingAddress.Country, _ = fieldString(name, v)
		case "paymentStatus":
			s, _ := fieldString(name, v)
			if o.PaymentStatus == models.PaymentStatusRefunded {
				return models.NewInvariantViolation("order_payment", "order %s is already refunded", o.OrderID)
			}
			o.PaymentStatus = models.PaymentStatus(s)
		case "discount":
			d, _ := fieldDecimal(name, v)
			if d.IsNegative() {
				return models.NewInvariantViolation("order_discount", "discount must not be negative")
			}
			o.Discount = d
			o.FinalAmount = o.ComputeFinalAmount()
			if o.FinalAmount.IsNegative() {
				return models.NewInvariantViolation("order_discount",
					"discount %s exceeds order total", d.StringFixed(2))
			}
		}
	}
	return o.CheckTotals()
}
