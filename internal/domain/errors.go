package domain

import "errors"

var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")

	ErrNeedsReauth    = errors.New("re-authorization required")
	ErrStateMismatch  = errors.New("oauth state mismatch")
	ErrExchangeFailed = errors.New("authorization code exchange failed")

	ErrProviderUnavailable = errors.New("calendar provider unavailable")

	ErrCredentialCorrupt = errors.New("stored credential is corrupt")
)

// ValidationError represents a field-level validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// IsAuthError reports whether err should send the caller back through the
// authorization flow.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrNeedsReauth) ||
		errors.Is(err, ErrStateMismatch) ||
		errors.Is(err, ErrExchangeFailed)
}
