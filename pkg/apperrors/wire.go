package apperrors

import "errors"

// Body is the JSON error payload exchanged with the backend.
type Body struct {
	Code      Code   `json:"code"`
	Message   string `json:"message"`
	LimitType string `json:"limit_type,omitempty"`
	Used      int64  `json:"used,omitempty"`
	Limit     int64  `json:"limit,omitempty"`
}

// Envelope wraps Body as {"error": {...}}.
type Envelope struct {
	Error Body `json:"error"`
}

// ToBody renders err for the wire. Errors outside the taxonomy become
// INTERNAL_ERROR with a generic message.
func ToBody(err error) Body {
	var e *Error
	if !errors.As(err, &e) {
		return Body{Code: CodeInternal, Message: "internal error"}
	}
	b := Body{Code: e.Code, Message: e.Error()}
	if e.Err != nil && e.Message != "" {
		b.Message = e.Message
	}
	if e.Quota != nil {
		b.LimitType = e.Quota.LimitType
		b.Used = e.Quota.Used
		b.Limit = e.Quota.Limit
	}
	return b
}

// FromBody rebuilds an *Error from a decoded payload. status is used when the
// payload has no code.
func FromBody(status int, b Body) *Error {
	code := b.Code
	if code == "" {
		code = CodeForStatus(status)
	}
	e := &Error{Code: code, Message: b.Message}
	if code == CodeQuotaExceeded && b.LimitType != "" {
		e.Quota = &QuotaDetails{LimitType: b.LimitType, Used: b.Used, Limit: b.Limit}
	}
	return e
}
