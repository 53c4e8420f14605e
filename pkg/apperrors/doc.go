// Package apperrors defines the error taxonomy shared by the client
// components and the reference backend.
//
// # Overview
//
// Every failure that crosses a component boundary is an *Error carrying a
// Code. Callers branch on the code with errors.Is against the exported
// sentinels, never on message text:
//
//	if errors.Is(err, apperrors.ErrAuth) {
//		sess.Close(ctx)
//	}
//
// # Wire Format
//
// The backend encodes errors as
//
//	{"error": {"code": "QUOTA_EXCEEDED", "message": "...", "limit_type": "daily", "used": 1, "limit": 1}}
//
// and the HTTP client rebuilds them with FromBody.
package apperrors
