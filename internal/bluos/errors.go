package bluos

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
)

// ErrorType represents the category of error that occurred
type ErrorType int

const (
	// ErrTypeNetwork indicates a network-level error
	ErrTypeNetwork ErrorType = iota
	// ErrTypeHTTP indicates a non-200 response from the player
	ErrTypeHTTP
	// ErrTypeParse indicates a body that is not a well-formed document
	ErrTypeParse
	// ErrTypeValidation indicates a document that does not match the expected schema
	ErrTypeValidation
	// ErrTypeTimeout indicates a request timeout
	ErrTypeTimeout
	// ErrTypeConnectionRefused indicates the player refused the connection
	ErrTypeConnectionRefused
	// ErrTypeDNS indicates a DNS resolution failure
	ErrTypeDNS
)

// NetworkErrorSubtype provides more specific network error classification
type NetworkErrorSubtype int

const (
	NetworkErrorGeneral NetworkErrorSubtype = iota
	NetworkErrorTimeout
	NetworkErrorConnectionRefused
	NetworkErrorDNS
	NetworkErrorHostUnreachable
	NetworkErrorNetworkUnreachable
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeNetwork:
		return "Network Error"
	case ErrTypeHTTP:
		return "HTTP Error"
	case ErrTypeParse:
		return "Parse Error"
	case ErrTypeValidation:
		return "Validation Error"
	case ErrTypeTimeout:
		return "Timeout"
	case ErrTypeConnectionRefused:
		return "Connection Refused"
	case ErrTypeDNS:
		return "DNS Error"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// DeviceError represents an error that occurred while talking to a player
type DeviceError struct {
	Type           ErrorType           // Category of error
	Message        string              // Human-readable error message
	StatusCode     int                 // HTTP status code (if applicable)
	Err            error               // Underlying error (if any)
	NetworkSubtype NetworkErrorSubtype // More specific network error type
	Endpoint       string              // Player endpoint (for context)
	Retryable      bool                // Whether the error is retryable
}

// Error implements the error interface
func (e *DeviceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *DeviceError) Unwrap() error {
	return e.Err
}

// ClassifyNetworkError analyzes a transport error and returns a DeviceError
// with the most specific type it can determine.
func ClassifyNetworkError(err error, endpoint string) *DeviceError {
	if err == nil {
		return nil
	}

	devErr := &DeviceError{
		Type:           ErrTypeNetwork,
		Message:        "Network error occurred",
		Err:            err,
		NetworkSubtype: NetworkErrorGeneral,
		Endpoint:       endpoint,
		Retryable:      true,
	}

	if os.IsTimeout(err) {
		devErr.Type = ErrTypeTimeout
		devErr.Message = "Request timed out"
		devErr.NetworkSubtype = NetworkErrorTimeout
		return devErr
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		devErr.Type = ErrTypeDNS
		devErr.Message = fmt.Sprintf("DNS resolution failed for %s", dnsErr.Name)
		devErr.NetworkSubtype = NetworkErrorDNS
		devErr.Retryable = false
		return devErr
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch {
		case errors.Is(opErr.Err, syscall.ECONNREFUSED):
			devErr.Type = ErrTypeConnectionRefused
			devErr.Message = "Player refused connection"
			devErr.NetworkSubtype = NetworkErrorConnectionRefused
			return devErr
		case errors.Is(opErr.Err, syscall.EHOSTUNREACH):
			devErr.Message = "Host unreachable"
			devErr.NetworkSubtype = NetworkErrorHostUnreachable
			return devErr
		case errors.Is(opErr.Err, syscall.ENETUNREACH):
			devErr.Message = "Network unreachable"
			devErr.NetworkSubtype = NetworkErrorNetworkUnreachable
			return devErr
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != err {
		return ClassifyNetworkError(urlErr.Err, endpoint)
	}

	return devErr
}

// NewNetworkError creates a network-level error with automatic classification
func NewNetworkError(message string, endpoint string, err error) *DeviceError {
	classified := ClassifyNetworkError(err, endpoint)
	if classified == nil {
		return &DeviceError{Type: ErrTypeNetwork, Message: message, Endpoint: endpoint, Retryable: true}
	}
	classified.Message = message
	return classified
}

// NewHTTPError creates an HTTP-level error
func NewHTTPError(statusCode int, message string) *DeviceError {
	return &DeviceError{
		Type:       ErrTypeHTTP,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  statusCode >= http.StatusInternalServerError,
	}
}

// NewParseError creates a parsing error
func NewParseError(message string, err error) *DeviceError {
	return &DeviceError{
		Type:    ErrTypeParse,
		Message: message,
		Err:     err,
	}
}

// NewValidationError creates a validation error
func NewValidationError(message string) *DeviceError {
	return &DeviceError{
		Type:    ErrTypeValidation,
		Message: message,
	}
}

func asDeviceError(err error) (*DeviceError, bool) {
	var devErr *DeviceError
	ok := errors.As(err, &devErr)
	return devErr, ok
}

// IsNetworkError checks if an error is a network error (including timeout, connection refused, DNS)
func IsNetworkError(err error) bool {
	devErr, ok := asDeviceError(err)
	if !ok {
		return false
	}
	switch devErr.Type {
	case ErrTypeNetwork, ErrTypeTimeout, ErrTypeConnectionRefused, ErrTypeDNS:
		return true
	}
	return false
}

// IsUnreachable reports a timeout or a missing route to the player, the
// failures that suggest it has moved to a new address.
func IsUnreachable(err error) bool {
	devErr, ok := asDeviceError(err)
	if !ok {
		return false
	}
	return devErr.Type == ErrTypeTimeout ||
		devErr.NetworkSubtype == NetworkErrorHostUnreachable ||
		devErr.NetworkSubtype == NetworkErrorNetworkUnreachable
}

// IsHTTPError checks if an error is an HTTP error
func IsHTTPError(err error) bool {
	devErr, ok := asDeviceError(err)
	return ok && devErr.Type == ErrTypeHTTP
}

// IsParseError checks if an error is a parse error
func IsParseError(err error) bool {
	devErr, ok := asDeviceError(err)
	return ok && devErr.Type == ErrTypeParse
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	devErr, ok := asDeviceError(err)
	return ok && devErr.Type == ErrTypeValidation
}

// IsRetryable checks if an error should be retried by a one-shot caller.
// The status loop retries everything regardless.
func IsRetryable(err error) bool {
	devErr, ok := asDeviceError(err)
	return ok && devErr.Retryable
}

// GetTroubleshootingHint returns user-friendly troubleshooting advice for an error
func GetTroubleshootingHint(err error) string {
	devErr, ok := asDeviceError(err)
	if !ok {
		return "An unexpected error occurred. Please try again."
	}

	switch devErr.Type {
	case ErrTypeTimeout:
		return strings.Join([]string{
			"The player did not respond in time.",
			"Troubleshooting:",
			"  • Check that the player is powered on and not in standby",
			"  • Verify this computer is on the same network as the player",
		}, "\n")

	case ErrTypeConnectionRefused:
		return strings.Join([]string{
			"The player refused the connection.",
			"Troubleshooting:",
			"  • BluOS players listen on port 11000; check the --device address",
			"  • The player may be restarting after a firmware update",
		}, "\n")

	case ErrTypeDNS:
		return strings.Join([]string{
			"Could not resolve the player hostname.",
			"Troubleshooting:",
			"  • Use the IP address instead of hostname",
			"  • Run 'bluos scan' to list players and their addresses",
		}, "\n")

	case ErrTypeNetwork:
		hint := []string{"Network communication failed."}

		switch devErr.NetworkSubtype {
		case NetworkErrorHostUnreachable:
			hint = append(hint, "The player is not reachable on the network.",
				"Troubleshooting:",
				"  • Verify the player address is correct",
				"  • The player may have a new DHCP lease; run discovery again")

		case NetworkErrorNetworkUnreachable:
			hint = append(hint, "This computer cannot reach the player's network.",
				"Troubleshooting:",
				"  • Check your network adapter and VPN settings")

		default:
			hint = append(hint, "Troubleshooting:",
				"  • Check your network connection",
				"  • Verify the player is powered on")
		}

		return strings.Join(hint, "\n")

	case ErrTypeHTTP:
		if devErr.StatusCode >= 500 {
			return fmt.Sprintf("The player returned an error (HTTP %d). Try again shortly or restart the player.", devErr.StatusCode)
		}
		return fmt.Sprintf("The player returned HTTP error %d. Check the request parameters.", devErr.StatusCode)

	case ErrTypeParse, ErrTypeValidation:
		return strings.Join([]string{
			"The player's response did not have the expected shape.",
			"This may indicate an unsupported firmware version.",
			"Run with --log-level debug to see the raw response.",
		}, "\n")

	default:
		return "An error occurred. Please check the error message for details."
	}
}

// GetShortErrorMessage returns a concise, user-friendly error message
func GetShortErrorMessage(err error) string {
	devErr, ok := asDeviceError(err)
	if !ok {
		return err.Error()
	}

	switch devErr.Type {
	case ErrTypeTimeout:
		return "Player not responding (timeout)"
	case ErrTypeConnectionRefused:
		return "Player refused connection"
	case ErrTypeDNS:
		return "Cannot resolve player hostname"
	case ErrTypeNetwork:
		switch devErr.NetworkSubtype {
		case NetworkErrorHostUnreachable:
			return "Player unreachable - check network connection"
		case NetworkErrorNetworkUnreachable:
			return "Network unreachable"
		default:
			return "Network error - check connection"
		}
	case ErrTypeHTTP:
		return fmt.Sprintf("Player error (HTTP %d)", devErr.StatusCode)
	case ErrTypeParse:
		return "Failed to parse player response"
	default:
		return devErr.Message
	}
}
