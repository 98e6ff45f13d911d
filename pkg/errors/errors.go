package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType classifies failures talking to the watchlist API
type ErrorType string

const (
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeStatus      ErrorType = "status"
	ErrorTypeParsing     ErrorType = "parsing"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Error represents an API error with type information
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s error", e.Type)
	if e.Code != 0 {
		msg = fmt.Sprintf("%s (code %d)", msg, e.Code)
	}
	msg += ": " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a typed error, optionally wrapping a cause
func New(t ErrorType, message string, cause error) *Error {
	return &Error{Type: t, Message: message, Err: cause}
}

// FromStatus maps a non-200 HTTP status code to a typed error
func FromStatus(code int, message string) *Error {
	t := ErrorTypeStatus
	switch {
	case code == 429:
		t = ErrorTypeRateLimit
	case code == 401 || code == 403:
		t = ErrorTypeAuth
	case code >= 500:
		t = ErrorTypeServerError
	}
	return &Error{Type: t, Message: message, Code: code}
}

// TypeOf returns the ErrorType carried by err, or ErrorTypeUnknown
func TypeOf(err error) ErrorType {
	var apiErr *Error
	if stderrors.As(err, &apiErr) {
		return apiErr.Type
	}
	return ErrorTypeUnknown
}

// IsType reports whether err carries the given type anywhere in its chain
func IsType(err error, t ErrorType) bool {
	return err != nil && TypeOf(err) == t
}

// IsRetryable reports whether an error type is worth another attempt.
// Only transport failures are retried; a status response ends pagination.
func IsRetryable(errorType ErrorType) bool {
	return errorType == ErrorTypeNetwork
}
