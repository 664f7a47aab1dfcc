package http

import (
	"errors"
	"fmt"
	"time"

	"github.com/field-workshops/labkit/logger"
)

// ClientError represents different types of REST client errors
type ClientError interface {
	error
	Type() ErrorType
}

// ErrorType defines the category of client error
type ErrorType string

const (
	NetworkError     ErrorType = "network"
	TimeoutError     ErrorType = "timeout"
	RejectionError   ErrorType = "rejection"
	ValidationError  ErrorType = "validation"
	InterceptorError ErrorType = "interceptor"
	ExhaustedError   ErrorType = "exhausted"
)

// networkError represents network-related errors
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

// timeoutError represents timeout-related errors
type timeoutError struct {
	message string
	timeout time.Duration
}

func (e *timeoutError) Error() string {
	return fmt.Sprintf("timeout error: %s (timeout: %v)", e.message, e.timeout)
}

func (e *timeoutError) Type() ErrorType { return TimeoutError }

// rejectionError is returned when a response arrived but the success predicate rejected it.
type rejectionError struct {
	reason     string
	statusCode int
	body       []byte
}

func (e *rejectionError) Error() string {
	return fmt.Sprintf("rejected: %s (status: %d)", e.reason, e.statusCode)
}

func (e *rejectionError) Type() ErrorType { return RejectionError }

func (e *rejectionError) StatusCode() int { return e.statusCode }

func (e *rejectionError) Body() []byte { return e.body }

// validationError represents request validation errors
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

// interceptorError represents interceptor-related errors
type interceptorError struct {
	message string
	wrapped error
}

func (e *interceptorError) Error() string {
	return fmt.Sprintf("interceptor error: %s: %v", e.message, e.wrapped)
}

func (e *interceptorError) Type() ErrorType { return InterceptorError }

func (e *interceptorError) Unwrap() error { return e.wrapped }

// AttemptsExhaustedError is returned when every attempt of a policy produced a
// retryable outcome. Response holds the last response received, if any.
type AttemptsExhaustedError struct {
	Attempts int
	Last     error
	Response *Response
}

func (e *AttemptsExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempt(s): %v", e.Attempts, e.Last)
}

func (e *AttemptsExhaustedError) Type() ErrorType { return ExhaustedError }

func (e *AttemptsExhaustedError) Unwrap() error { return e.Last }

// NewNetworkError creates a new network error
func NewNetworkError(message string, wrapped error) ClientError {
	return &networkError{message: message, wrapped: wrapped}
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(message string, timeout time.Duration) ClientError {
	return &timeoutError{message: message, timeout: timeout}
}

// NewRejectionError creates an error for a response the success predicate refused
func NewRejectionError(reason string, statusCode int, body []byte) ClientError {
	return &rejectionError{reason: reason, statusCode: statusCode, body: body}
}

// NewValidationError creates a new validation error
func NewValidationError(message, field string) ClientError {
	return &validationError{message: message, field: field}
}

// NewInterceptorError creates a new interceptor error
func NewInterceptorError(message string, wrapped error) ClientError {
	return &interceptorError{message: message, wrapped: wrapped}
}

// IsErrorType checks if an error is of a specific type
func IsErrorType(err error, errorType ErrorType) bool {
	if err == nil {
		return false
	}
	var clientErr ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type() == errorType
	}
	return false
}

// IsRetryable reports whether err belongs to a category a policy may retry
func IsRetryable(err error) bool {
	return IsErrorType(err, NetworkError) || IsErrorType(err, TimeoutError) || IsErrorType(err, RejectionError)
}

// IsRejectedWithStatus reports whether err wraps a rejection carrying statusCode
func IsRejectedWithStatus(err error, statusCode int) bool {
	var rej *rejectionError
	if errors.As(err, &rej) {
		return rej.StatusCode() == statusCode
	}
	return false
}

// IsSuccessStatus checks if a status code represents success (2xx)
func IsSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

// Soften implements the teardown continuation flag. With cleanup set, a
// failure is logged and swallowed so the caller proceeds with the next
// cleanup step; otherwise err is returned unchanged.
func Soften(log logger.Logger, cleanup bool, operation string, err error) error {
	if err == nil || !cleanup {
		return err
	}
	log.Warn().
		Err(err).
		Str("operation", operation).
		Msg("Cleanup step failed, attempting to continue the cleanup process")
	return nil
}
