package takeoff

import "errors"

// ValidationError is a user-facing rejection raised before any store write.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// IsValidation reports whether err is, or wraps, a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

var (
	errNoTemplate = &ValidationError{Message: "Select a template for at least one fixture before adding materials."}
	errNoTarget   = &ValidationError{Message: "Choose a purchase order to add materials to."}
)
