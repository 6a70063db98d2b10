package organization

import (
	"errors"
	"strings"

	domain "github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/organization"
)

// ValidationErrors collects every field problem of a command so callers can
// report them together. It matches domain.ErrValidation.
type ValidationErrors []domain.FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, len(v))
	for i, fe := range v {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return domain.ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (v ValidationErrors) Is(target error) bool {
	return target == domain.ErrValidation
}

func (v *ValidationErrors) add(field, message string) {
	*v = append(*v, domain.FieldError{Field: field, Message: message})
}

// required records field when value is blank.
func (v *ValidationErrors) required(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.add(field, "must not be empty")
	}
}

// check records a validator result. Non-field errors are kept under the
// empty field name.
func (v *ValidationErrors) check(err error) {
	if err == nil {
		return
	}
	var fe *domain.FieldError
	if errors.As(err, &fe) {
		*v = append(*v, *fe)
		return
	}
	v.add("", err.Error())
}

// err returns nil when nothing was recorded.
func (v ValidationErrors) err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}
