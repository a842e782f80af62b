package vnish

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotVNishFirmware indicates the host is not running VNish firmware.
	ErrNotVNishFirmware = errors.New("host is not running VNish firmware")

	// ErrAuthenticationFailed indicates the unlock password was rejected.
	ErrAuthenticationFailed = errors.New("authentication failed")
)

// APIError represents an error returned by the VNish API.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("vnish API error (HTTP %d) at %s: %s", e.StatusCode, e.Endpoint, e.Message)
	}
	return fmt.Sprintf("vnish API error (HTTP %d) at %s", e.StatusCode, e.Endpoint)
}

// IsUnauthorized returns true if the error indicates authentication is needed.
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// IsAuthError returns true if err is an authentication failure.
func IsAuthError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsUnauthorized()
	}
	return errors.Is(err, ErrAuthenticationFailed)
}
