// # Overview
//
// Handlers write errors through WriteError, which renders any error as the
// structured envelope clients decode:
//
//	{"error": {"code": "QUOTA_EXCEEDED", "message": "...", "limit_type": "daily", "used": 1, "limit": 1}}
//
// The HTTP status is derived from the code, so handlers never pick one.
//
// # Request Parsing
//
//	var req CreatePaymentRequestBody
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//	id, ok := httputil.ParsePathStringOrError(w, r, "id")
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware(logger),
//		httputil.LoggingMiddleware,
//		httputil.RecoveryMiddleware,
//	)(router)
package httputil
