package resolver

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrUnsupportedDomain = errors.New("unsupported domain")
	ErrPlayerNotFound    = errors.New("player markup not found")
	ErrIncompleteParams  = errors.New("incomplete player parameters")
	ErrNoSource          = errors.New("no usable source in API reply")
)

// NetworkError wraps a transport-level failure (timeout, reset, non-2xx).
// Callers decide whether to retry; the resolver never retries internally.
type NetworkError struct {
	Op  string
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsNetwork reports whether err is a transport-level failure.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}
