package service

import (
	"fmt"
	"net/http"
)

// ErrorCode is a stable machine-readable classification. User-facing
// messages are looked up by code, never derived from internal error text.
type ErrorCode string

const (
	CodeConfiguration   ErrorCode = "configuration"
	CodeValidation      ErrorCode = "validation"
	CodeAuthorization   ErrorCode = "authorization"
	CodeRateLimit       ErrorCode = "rate_limit"
	CodePayloadTooLarge ErrorCode = "payload_too_large"
	CodeUpstreamTimeout ErrorCode = "upstream_timeout"
	CodeUpstream        ErrorCode = "upstream"
	CodeNotFound        ErrorCode = "not_found"
)

var statusByCode = map[ErrorCode]int{
	CodeConfiguration:   http.StatusInternalServerError,
	CodeValidation:      http.StatusBadRequest,
	CodeAuthorization:   http.StatusUnauthorized,
	CodeRateLimit:       http.StatusTooManyRequests,
	CodePayloadTooLarge: http.StatusRequestEntityTooLarge,
	CodeUpstreamTimeout: http.StatusRequestTimeout,
	CodeUpstream:        http.StatusBadGateway,
	CodeNotFound:        http.StatusNotFound,
}

var messageByCode = map[ErrorCode]string{
	CodeConfiguration:   "service is not configured for this operation",
	CodeValidation:      "invalid request",
	CodeAuthorization:   "unauthorized",
	CodeRateLimit:       "too many requests",
	CodePayloadTooLarge: "media exceeds the allowed size",
	CodeUpstreamTimeout: "timed out fetching media",
	CodeUpstream:        "upstream storage request failed",
	CodeNotFound:        "not found",
}

// Error is the typed failure returned by every service operation.
// Message is safe to show to callers; Err holds internal detail for logs.
type Error struct {
	Code    ErrorCode
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	s := string(e.Code)
	if e.Field != "" {
		s += " " + e.Field
	}
	if e.Message != "" {
		s += ": " + e.Message
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus returns the response status declared for the error's code.
func (e *Error) HTTPStatus() int {
	if status, ok := statusByCode[e.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// PublicMessage returns the caller-facing message: the explicit message
// when one was set, otherwise the canned message for the code.
func (e *Error) PublicMessage() string {
	if e.Message != "" {
		return e.Message
	}
	if msg, ok := messageByCode[e.Code]; ok {
		return msg
	}
	return "internal server error"
}

func newValidationError(field, message string) *Error {
	return &Error{Code: CodeValidation, Field: field, Message: message}
}

func newValidationErrorf(field, format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Field: field, Message: fmt.Sprintf(format, args...)}
}

func newConfigurationError(message string, err error) *Error {
	return &Error{Code: CodeConfiguration, Message: message, Err: err}
}

func newPayloadTooLargeError(message string) *Error {
	return &Error{Code: CodePayloadTooLarge, Message: message}
}

func newUpstreamError(message string, err error) *Error {
	return &Error{Code: CodeUpstream, Message: message, Err: err}
}
