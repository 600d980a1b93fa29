// Package errdefs defines the typed errors shared by providers, the fallback
// engine and the orchestrator.
package errdefs

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrUnavailable is returned when a provider reports it is not configured.
var ErrUnavailable = errors.New("provider not available")

// ConfigurationError means a required credential or setting is absent.
// The provider is skipped, it never fails the process.
type ConfigurationError struct {
	Provider string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	if e.Provider == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Reason)
}

// RequestError is a failed backend call: non-2xx status, malformed response
// or a failing subprocess.
type RequestError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s request failed: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s request failed: %v", e.Provider, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// TimeoutError is a per-attempt deadline that was exceeded.
type TimeoutError struct {
	Provider string
	After    time.Duration
	Err      error
}

func (e *TimeoutError) Error() string {
	if e.After > 0 {
		return fmt.Sprintf("%s timed out after %s", e.Provider, e.After)
	}
	return fmt.Sprintf("%s timed out", e.Provider)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// BudgetExceededError signals that the daily cost limit has been reached.
type BudgetExceededError struct {
	Spent float64
	Limit float64
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("daily budget exceeded: spent $%.4f of $%.4f", e.Spent, e.Limit)
}

// NewConfigurationError is a shorthand for a ConfigurationError.
func NewConfigurationError(provider, format string, args ...any) error {
	return &ConfigurationError{Provider: provider, Reason: fmt.Sprintf(format, args...)}
}

// NewRequestError wraps err as a RequestError.
func NewRequestError(provider string, statusCode int, err error) error {
	return &RequestError{Provider: provider, StatusCode: statusCode, Err: err}
}

// FromTransport classifies an error returned by an HTTP client, an SDK or a
// subprocess. Deadline errors become TimeoutError, everything else becomes a
// RequestError. Errors that are already typed pass through unchanged.
func FromTransport(provider string, err error) error {
	if err == nil {
		return nil
	}

	var (
		cfgErr     *ConfigurationError
		reqErr     *RequestError
		timeoutErr *TimeoutError
	)
	if errors.As(err, &cfgErr) || errors.As(err, &reqErr) || errors.As(err, &timeoutErr) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Provider: provider, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{Provider: provider, Err: err}
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.DeadlineExceeded:
			return &TimeoutError{Provider: provider, Err: err}
		case codes.Unauthenticated, codes.PermissionDenied:
			return &ConfigurationError{Provider: provider, Reason: st.Message()}
		}
	}
	return &RequestError{Provider: provider, Err: err}
}

// IsConfiguration reports whether err is a ConfigurationError.
func IsConfiguration(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// IsTimeout reports whether err is a TimeoutError.
func IsTimeout(err error) bool {
	var target *TimeoutError
	return errors.As(err, &target)
}

// IsBudgetExceeded reports whether err is a BudgetExceededError.
func IsBudgetExceeded(err error) bool {
	var target *BudgetExceededError
	return errors.As(err, &target)
}
