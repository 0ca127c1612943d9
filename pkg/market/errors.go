package market

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates the upstream has no data for the requested code.
// It is an expected outcome for unlisted instruments, not a transport fault.
var ErrNotFound = errors.New("market: not found")

// ProviderError wraps a transient upstream failure (network, timeout,
// malformed payload). Callers recover it at per-code granularity.
type ProviderError struct {
	Provider string
	Op       string
	Code     string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("market provider %s: %s %s: %v", e.Provider, e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("market provider %s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err resolves to ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
