package executor

import (
	"errors"
	"fmt"
	"time"
)

// ClientError represents the error types surfaced by the executor
type ClientError interface {
	error
	Type() ErrorType
}

// ErrorType defines the category of executor error
type ErrorType string

const (
	NetworkError    ErrorType = "network"
	TimeoutError    ErrorType = "timeout"
	ValidationError ErrorType = "validation"
	ExhaustedError  ErrorType = "exhausted"
	CanceledError   ErrorType = "canceled"
)

// networkError is a transport failure: no response was obtained for an attempt
type networkError struct {
	message string
	wrapped error
}

func (e *networkError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("network error: %s: %v", e.message, e.wrapped)
	}
	return fmt.Sprintf("network error: %s", e.message)
}

func (e *networkError) Type() ErrorType { return NetworkError }

func (e *networkError) Unwrap() error { return e.wrapped }

// timeoutError is a per-attempt timeout; treated like a network failure
type timeoutError struct {
	message string
	timeout time.Duration
	wrapped error
}

func (e *timeoutError) Error() string {
	return fmt.Sprintf("timeout error: %s (timeout: %v)", e.message, e.timeout)
}

func (e *timeoutError) Type() ErrorType { return TimeoutError }

func (e *timeoutError) Unwrap() error { return e.wrapped }

// validationError rejects a descriptor or policy before any I/O
type validationError struct {
	message string
	field   string
}

func (e *validationError) Error() string {
	if e.field != "" {
		return fmt.Sprintf("validation error: %s (field: %s)", e.message, e.field)
	}
	return fmt.Sprintf("validation error: %s", e.message)
}

func (e *validationError) Type() ErrorType { return ValidationError }

// exhaustedError reports that every attempt was consumed and the last one produced no response
type exhaustedError struct {
	attempts int
	last     error
}

func (e *exhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.attempts, e.last)
}

func (e *exhaustedError) Type() ErrorType { return ExhaustedError }

func (e *exhaustedError) Unwrap() error { return e.last }

// Attempts returns the number of attempts made
func (e *exhaustedError) Attempts() int { return e.attempts }

// canceledError reports that the caller's context ended the loop early
type canceledError struct {
	attempts int
	wrapped  error
}

func (e *canceledError) Error() string {
	return fmt.Sprintf("execution canceled after %d attempts: %v", e.attempts, e.wrapped)
}

func (e *canceledError) Type() ErrorType { return CanceledError }

func (e *canceledError) Unwrap() error { return e.wrapped }

// Attempts returns the number of attempts made before cancellation
func (e *canceledError) Attempts() int { return e.attempts }

// NewNetworkError creates a new network error
func NewNetworkError(message string, wrapped error) ClientError {
	return &networkError{message: message, wrapped: wrapped}
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(message string, timeout time.Duration, wrapped error) ClientError {
	return &timeoutError{message: message, timeout: timeout, wrapped: wrapped}
}

// NewValidationError creates a new validation error
func NewValidationError(message, field string) ClientError {
	return &validationError{message: message, field: field}
}

// NewExhaustedError creates the error returned when the final attempt had no response
func NewExhaustedError(attempts int, last error) ClientError {
	return &exhaustedError{attempts: attempts, last: last}
}

// NewCanceledError creates the error returned when ctx ends the loop
func NewCanceledError(attempts int, wrapped error) ClientError {
	return &canceledError{attempts: attempts, wrapped: wrapped}
}

// IsErrorType reports whether err (or anything it wraps) is a ClientError of errorType
func IsErrorType(err error, errorType ErrorType) bool {
	for err != nil {
		var clientErr ClientError
		if !errors.As(err, &clientErr) {
			return false
		}
		if clientErr.Type() == errorType {
			return true
		}
		err = errors.Unwrap(clientErr)
	}
	return false
}

// AttemptsFromError extracts the attempt count from exhausted or canceled errors
func AttemptsFromError(err error) (int, bool) {
	var counted interface{ Attempts() int }
	if errors.As(err, &counted) {
		return counted.Attempts(), true
	}
	return 0, false
}

// IsSuccessStatus checks if a status code represents success (2xx)
func IsSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

// IsRetryableStatus reports whether a response status keeps the loop going
func IsRetryableStatus(statusCode int) bool {
	return statusCode >= 408
}
