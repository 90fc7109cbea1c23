// Package validation turns go-playground struct validation into the
// vault's domain validation errors.
package validation

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	domainerrors "github.com/pixvaultapp/pixvault-server/internal/errors"
)

// Validator checks struct tags and reports failures as a single
// errors.Validation carrying a field-to-message map.
type Validator struct {
	v *validator.Validate
}

// New builds a validator that names fields by their json tag, matching
// how the offending value was spelled in configuration.
func New() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		tag, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if tag == "" || tag == "-" {
			return fld.Name
		}
		return tag
	})
	return &Validator{v: v}
}

// Validate reports every failing field at once rather than stopping at
// the first, so one edit round-trip fixes the whole config.
func (v *Validator) Validate(s any) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}

	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	details := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = message(fe)
	}
	return domainerrors.ValidationWithDetails("validation failed", details)
}

// message renders the tag a field failed into something an operator
// can act on.
func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_if":
		return "is required for the selected backend"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "url":
		return "must be a valid URL"
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "lt":
		return "must be less than " + fe.Param()
	default:
		return "is invalid"
	}
}
