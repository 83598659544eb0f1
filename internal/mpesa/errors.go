package mpesa

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfigInvalid is returned when the credentials an operation needs are missing.
	ErrConfigInvalid = errors.New("mpesa config is not valid")

	// ErrAuth is returned when no access token could be obtained.
	ErrAuth = errors.New("mpesa authentication failed")

	// ErrTransport is returned when no parseable response was received.
	ErrTransport = errors.New("mpesa transport error")
)

// ProviderError is an explicit rejection returned by M-Pesa, either as an
// errorMessage body or as a non-zero ResponseCode.
type ProviderError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 3)
	parts = append(parts, "error from mpesa")
	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("code=%s", e.Code))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}

	return strings.Join(parts, ": ")
}

// IsProviderError reports whether err carries a ProviderError.
func IsProviderError(err error) bool {
	var providerErr *ProviderError
	return errors.As(err, &providerErr)
}
