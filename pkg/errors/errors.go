package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	// ErrorTypeTransport is a connection-level failure. Never retried.
	ErrorTypeTransport ErrorType = "transport"
	// ErrorTypeHTTP is a non-retryable status or an exhausted retry budget.
	ErrorTypeHTTP ErrorType = "http"
	// ErrorTypeMalformed is a response body that is not the expected JSON object.
	ErrorTypeMalformed ErrorType = "malformed"
	// ErrorTypeConfiguration is a missing or invalid setting detected before any I/O.
	ErrorTypeConfiguration ErrorType = "configuration"

	// Retryable classifications; these stay inside the executor.
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeServerError ErrorType = "server_error"
)

// Error represents an API error with type information
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Body    string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewTransportError wraps a connection-level failure.
func NewTransportError(msg string, err error) *Error {
	return &Error{Type: ErrorTypeTransport, Message: msg, Err: err}
}

// NewHTTPError builds a fatal HTTP error carrying status code and body.
func NewHTTPError(code int, body, msg string) *Error {
	return &Error{Type: ErrorTypeHTTP, Code: code, Body: body, Message: msg}
}

// NewMalformedError reports an undecodable or unexpected response body.
func NewMalformedError(msg string, err error) *Error {
	return &Error{Type: ErrorTypeMalformed, Message: msg, Err: err}
}

// NewConfigurationError reports a configuration problem.
func NewConfigurationError(msg string) *Error {
	return &Error{Type: ErrorTypeConfiguration, Message: msg}
}

// TypeOf returns the ErrorType of err, or "" when err is not an *Error.
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ""
}

func IsTransport(err error) bool     { return TypeOf(err) == ErrorTypeTransport }
func IsHTTP(err error) bool          { return TypeOf(err) == ErrorTypeHTTP }
func IsMalformed(err error) bool     { return TypeOf(err) == ErrorTypeMalformed }
func IsConfiguration(err error) bool { return TypeOf(err) == ErrorTypeConfiguration }

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeRateLimit, ErrorTypeServerError:
		return true
	default:
		return false
	}
}

// ClassifyStatus maps a non-200 status code to an error type.
func ClassifyStatus(statusCode int) ErrorType {
	switch {
	case statusCode == 429:
		return ErrorTypeRateLimit
	case statusCode >= 500:
		return ErrorTypeServerError
	default:
		return ErrorTypeHTTP
	}
}
