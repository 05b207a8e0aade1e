package activity

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a subject has no retrievable account snapshot.
var ErrNotFound = errors.New("subject not found")

// ProviderError reports an upstream failure: transport errors, timeouts,
// rate limiting, or unexpected responses.
type ProviderError struct {
	Op          string
	StatusCode  int
	RateLimited bool
	Err         error
}

func (e *ProviderError) Error() string {
	switch {
	case e.RateLimited:
		return fmt.Sprintf("%s: rate limited by provider", e.Op)
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s: provider returned %d: %v", e.Op, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: provider returned %d", e.Op, e.StatusCode)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsProviderError reports whether err is, or wraps, a *ProviderError.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}
