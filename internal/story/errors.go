package story

import (
	"errors"

	"github.com/bobarin/storytime/internal/services"
)

var (
	ErrEmptyName     = errors.New("child name is empty")
	ErrInvalidName   = errors.New("child name contains no letters")
	ErrNoTheme       = errors.New("no theme selected")
	ErrQuotaExceeded = errors.New("daily story quota exceeded")
)

const unavailableMessage = "Service temporarily unavailable. Please try again later."

// QuotaError reports a blocked request with the message shown to the user.
type QuotaError struct {
	Message string
}

func (e *QuotaError) Error() string {
	return e.Message
}

func (e *QuotaError) Unwrap() error {
	return ErrQuotaExceeded
}

// IsUserError reports whether err was caused by the request rather than by
// the service.
func IsUserError(err error) bool {
	return errors.Is(err, ErrEmptyName) ||
		errors.Is(err, ErrInvalidName) ||
		errors.Is(err, ErrNoTheme)
}

// UserMessage converts an error from Generate into text safe to show a parent.
func UserMessage(err error) string {
	var quotaErr *QuotaError

	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEmptyName):
		return "Please enter your child's name."
	case errors.Is(err, ErrInvalidName):
		return "Please enter a valid name (letters only)."
	case errors.Is(err, ErrNoTheme):
		return "Please select a theme or enter a custom theme."
	case errors.As(err, &quotaErr):
		return quotaErr.Message
	case errors.Is(err, services.ErrMissingAPIKey):
		return unavailableMessage
	default:
		return "Oops! " + err.Error()
	}
}
