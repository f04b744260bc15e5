package shared

import "errors"

var (
	// ErrNotFound indicates the resource does not exist for the requesting owner.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates caller-fixable bad input.
	ErrValidation = errors.New("validation failed")
	// ErrBusy indicates lock contention; the caller may retry with backoff.
	ErrBusy = errors.New("ledger busy")
)

// UserSafeMessage maps internal errors to messages safe to show to clients.
// Storage errors stay opaque; validation messages pass through verbatim.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return err.Error()
	case errors.Is(err, ErrNotFound):
		return "The requested record was not found"
	case errors.Is(err, ErrBusy):
		return "The ledger is busy, please retry"
	case errors.Is(err, ErrIdempotencyConflict):
		return "This request was already processed"
	default:
		return "An unexpected error occurred"
	}
}
