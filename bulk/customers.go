package bulk

import (
	"context"
	"time"

	"backoffice-svc/gateway"
	"backoffice-svc/models"
)

// The derived fields are written by the segment backfill.
var customerFields = fieldSet{
	"name":            isString,
	"email":           isString,
	"phone":           isString,
	"segmentation":    oneOf(models.Segment.Valid),
	"engagementScore": intRange(0, 100),
	"churnRisk":       oneOf(models.RiskLevel.Valid),
}

func CustomerHandler() Handler[models.Customer] {
	return Handler[models.Customer]{
		Entity: models.EntityCustomer,
		Load: func(ctx context.Context, s gateway.Store, id string) (*models.Customer, error) {
			return s.GetCustomer(ctx, id)
		},
		Validate: func(m models.Mutation) error {
			return validateCommon(models.EntityCustomer, m, func(s string) bool {
				return models.CustomerStatus(s).Valid()
			}, customerFields)
		},
		Mutate: mutateCustomer,
		Persist: func(ctx context.Context, s gateway.Store, c *models.Customer) error {
			return s.SaveCustomer(ctx, c)
		},
	}
}

func mutateCustomer(c *models.Customer, m models.Mutation, actor string, at time.Time) (models.Severity, error) {
	severity := models.SeverityMedium
	switch m.Kind {
	case models.MutationStatusChange:
		next := models.CustomerStatus(m.Status)
		if err := c.TransitionTo(next); err != nil {
			return "", err
		}
		if next == models.CustomerStatusBanned {
			c.Flags = append(c.Flags, models.NewFlag("banned", models.SeverityHigh,
				flagReason(m.Reason, "account banned by admin"), actor, at))
			severity = models.SeverityHigh
		}
	case models.MutationFieldUpdate:
		if err := updateCustomerFields(c, m.Fields); err != nil {
			return "", err
		}
		severity = models.SeverityLow
	case models.MutationFlagAdd:
		c.Flags = append(c.Flags, newFlag(m.Flag, actor, at))
	case models.MutationSoftDelete:
		c.DeletedAt = &at
		severity = models.SeverityHigh
	}
	c.UpdatedAt = at
	return severity, nil
}

func updateCustomerFields(c *models.Customer, fields map[string]any) error {
	for name, v := range fields {
		switch name {
		case "name":
			c.Name, _ = fieldString(name, v)
		case "email":
			email, _ := fieldString(name, v)
			if err := models.ValidateEmail(email); err != nil {
				return models.NewInvariantViolation("customer_email", "%q is not a valid address", email)
			}
			c.Email = email
		case "phone":
			c.Phone, _ = fieldString(name, v)
		case "segmentation":
			s, _ := fieldString(name, v)
			c.Segmentation = models.Segment(s)
		case "engagementScore":
			c.EngagementScore, _ = fieldInt(name, v)
		case "churnRisk":
			s, _ := fieldString(name, v)
			c.ChurnRisk = models.RiskLevel(s)
		}
	}
	return nil
}
