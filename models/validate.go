package models

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and the final amount invariant.
func (o *Order) Validate() error {
	if err := validate.Struct(o); err != nil {
		return toValidationError(err)
	}
	return o.CheckTotals()
}

func toValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return NewValidationError("", "%v", err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Namespace()+" "+fe.Tag())
	}
	return &ValidationError{Field: verrs[0].Namespace(), Reason: strings.Join(fields, "; ")}
}

// ValidateEmail checks a single address the same way struct tags do.
func ValidateEmail(email string) error {
	if err := validate.Var(email, "required,email"); err != nil {
		return NewValidationError("email", "%q is not a valid address", email)
	}
	return nil
}
