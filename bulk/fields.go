package bulk

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"backoffice-svc/models"

	"github.com/shopspring/decimal"
)

// Field values arrive either JSON-decoded from a request or as Go values from
// the backfill tool, so the converters accept both spellings.

func fieldString(name string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", models.NewValidationError("fields."+name, "must be a string")
	}
	return strings.TrimSpace(s), nil
}

func fieldDecimal(name string, v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case decimal.Decimal:
		return x, nil
	case float64:
		return decimal.NewFromFloat(x), nil
	case int:
		return decimal.NewFromInt(int64(x)), nil
	case int64:
		return decimal.NewFromInt(x), nil
	case json.Number:
		d, err := decimal.NewFromString(x.String())
		if err != nil {
			return decimal.Zero, models.NewValidationError("fields."+name, "must be a number")
		}
		return d, nil
	case string:
		d, err := decimal.NewFromString(x)
		if err != nil {
			return decimal.Zero, models.NewValidationError("fields."+name, "must be a number")
		}
		return d, nil
	}
	return decimal.Zero, models.NewValidationError("fields."+name, "must be a number")
}

func fieldInt(name string, v any) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case float64:
		if x != math.Trunc(x) {
			return 0, models.NewValidationError("fields."+name, "must be a whole number")
		}
		return int(x), nil
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			return 0, models.NewValidationError("fields."+name, "must be a whole number")
		}
		return int(n), nil
	}
	return 0, models.NewValidationError("fields."+name, "must be a whole number")
}

// fieldSet maps each updatable field to a pre-flight type check.
type fieldSet map[string]func(name string, v any) error

func (fs fieldSet) validate(entity models.EntityType, fields map[string]any) error {
	if len(fields) == 0 {
		return models.NewValidationError("fields", "at least one field is required")
	}
	for name, v := range fields {
		check, ok := fs[name]
		if !ok {
			return models.NewValidationError("fields."+name, "is not updatable on %s", entity)
		}
		if err := check(name, v); err != nil {
			return err
		}
	}
	return nil
}

func isString(name string, v any) error {
	_, err := fieldString(name, v)
	return err
}

func isDecimal(name string, v any) error {
	_, err := fieldDecimal(name, v)
	return err
}

func isInt(name string, v any) error {
	_, err := fieldInt(name, v)
	return err
}

func oneOf[S ~string](valid func(S) bool) func(string, any) error {
	return func(name string, v any) error {
		s, err := fieldString(name, v)
		if err != nil {
			return err
		}
		if !valid(S(s)) {
			return models.NewValidationError("fields."+name, "unknown value %q", s)
		}
		return nil
	}
}

func intRange(lo, hi int) func(string, any) error {
	return func(name string, v any) error {
		n, err := fieldInt(name, v)
		if err != nil {
			return err
		}
		if n < lo || n > hi {
			return models.NewValidationError("fields."+name, "must be between %d and %d", lo, hi)
		}
		return nil
	}
}

// validateCommon covers the checks every entity shares.
func validateCommon(entity models.EntityType, m models.Mutation, statusValid func(string) bool, fields fieldSet) error {
	switch m.Kind {
	case models.MutationStatusChange:
		if m.Status == "" {
			return models.NewValidationError("status", "is required for %s", m.Kind)
		}
		if !statusValid(m.Status) {
			return models.NewValidationError("status", "unknown %s status %q", entity, m.Status)
		}
	case models.MutationFieldUpdate:
		return fields.validate(entity, m.Fields)
	case models.MutationFlagAdd:
		if m.Flag == nil || strings.TrimSpace(m.Flag.Type) == "" {
			return models.NewValidationError("flag.type", "is required")
		}
		if m.Flag.Severity != "" && !m.Flag.Severity.Valid() {
			return models.NewValidationError("flag.severity", "unknown severity %q", m.Flag.Severity)
		}
	case models.MutationSoftDelete:
	case models.MutationRefund:
		return models.NewValidationError("type", "refund is only supported for orders")
	default:
		return models.NewValidationError("type", "unknown mutation %q", m.Kind)
	}
	return nil
}

// flagReason falls back to a generic reason when the caller gave none.
func flagReason(reason, fallback string) string {
	if r := strings.TrimSpace(reason); r != "" {
		return r
	}
	return fallback
}

func newFlag(in *models.FlagInput, actor string, at time.Time) models.Flag {
	return models.NewFlag(strings.TrimSpace(in.Type), in.Severity, flagReason(in.Reason, "flagged by admin"), actor, at)
}
