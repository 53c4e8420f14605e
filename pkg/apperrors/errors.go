package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies an error category on both sides of the wire.
type Code string

const (
	CodeValidation    Code = "VALIDATION_FAILED"
	CodeConflict      Code = "CONFLICT"
	CodeState         Code = "INVALID_STATE"
	CodeNotFound      Code = "NOT_FOUND"
	CodeNetwork       Code = "NETWORK_ERROR"
	CodeQuotaExceeded Code = "QUOTA_EXCEEDED"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeInternal      Code = "INTERNAL_ERROR"
)

// QuotaDetails describes which usage limit was hit.
type QuotaDetails struct {
	LimitType string `json:"limit_type"`
	Used      int64  `json:"used"`
	Limit     int64  `json:"limit"`
}

// Error is the application error type. Two errors are equal under errors.Is
// when their codes match.
type Error struct {
	Code    Code
	Message string
	Err     error
	Quota   *QuotaDetails
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target carries the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrValidation    = &Error{Code: CodeValidation}
	ErrConflict      = &Error{Code: CodeConflict}
	ErrState         = &Error{Code: CodeState}
	ErrNotFound      = &Error{Code: CodeNotFound}
	ErrNetwork       = &Error{Code: CodeNetwork}
	ErrQuotaExceeded = &Error{Code: CodeQuotaExceeded}
	ErrAuth          = &Error{Code: CodeUnauthorized}
	ErrInternal      = &Error{Code: CodeInternal}
)

// New creates an error with a formatted message.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func Validation(format string, args ...interface{}) *Error {
	return New(CodeValidation, format, args...)
}

func Conflict(format string, args ...interface{}) *Error {
	return New(CodeConflict, format, args...)
}

func State(format string, args ...interface{}) *Error {
	return New(CodeState, format, args...)
}

func NotFound(format string, args ...interface{}) *Error {
	return New(CodeNotFound, format, args...)
}

func Unauthorized(format string, args ...interface{}) *Error {
	return New(CodeUnauthorized, format, args...)
}

// Network wraps a transport failure.
func Network(err error) *Error {
	return Wrap(err, CodeNetwork, "network request failed")
}

// QuotaExceeded reports an exhausted usage limit.
func QuotaExceeded(limitType string, used, limit int64) *Error {
	return &Error{
		Code:    CodeQuotaExceeded,
		Message: fmt.Sprintf("%s limit reached (%d/%d)", limitType, used, limit),
		Quota:   &QuotaDetails{LimitType: limitType, Used: used, Limit: limit},
	}
}

// CodeOf returns the code of the first *Error in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsCode reports whether err carries code.
func IsCode(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// QuotaOf extracts quota details from err, if any.
func QuotaOf(err error) (*QuotaDetails, bool) {
	var e *Error
	if errors.As(err, &e) && e.Quota != nil {
		return e.Quota, true
	}
	return nil, false
}

// HTTPStatus maps a code to its HTTP status.
func HTTPStatus(code Code) int {
	switch code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeConflict, CodeState:
		return http.StatusConflict
	case CodeNotFound:
		return http.StatusNotFound
	case CodeQuotaExceeded:
		return http.StatusTooManyRequests
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// CodeForStatus is the fallback used when a response carries no structured code.
func CodeForStatus(status int) Code {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return CodeValidation
	case http.StatusConflict:
		return CodeConflict
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusTooManyRequests:
		return CodeQuotaExceeded
	case http.StatusUnauthorized, http.StatusForbidden:
		return CodeUnauthorized
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return CodeNetwork
	default:
		return CodeInternal
	}
}
