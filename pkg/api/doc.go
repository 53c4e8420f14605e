// Package api is the reference payments backend: the HTTP surface that
// pkg/backend talks to, served on top of a billing.Service.
//
// Routes:
//
//	POST   /v1/sessions                                 login by email, returns a bearer token
//	DELETE /v1/sessions                                 revoke the caller's token
//	GET    /v1/plans                                    plan catalog
//	GET    /v1/me                                       profile with subscription and usage
//	POST   /v1/analyses                                 consume one analysis (429 when over quota)
//	POST   /v1/payment-requests                         create a bank-transfer request
//	GET    /v1/payment-requests/active                  the caller's active request, 204 when none
//	GET    /v1/payment-requests/{id}                    status
//	POST   /v1/payment-requests/{id}/claim              mark as paid
//	POST   /v1/payment-requests/{id}/cancel             abandon
//	POST   /v1/admin/payment-requests/{id}/approve      admin review
//	POST   /v1/admin/payment-requests/{id}/reject       admin review, note required
//	GET    /v1/admin/events                             audit trail (?limit, request_id, type), when Config.Audit is set
//	GET    /v1/admin/webhook-deliveries                 recent webhook deliveries, when Config.Deliveries is set
//
// Admin routes answer 404 to callers whose email is not in AdminEmails.
//
// Errors are written as the apperrors envelope, so the client maps them back
// to the same codes.
package api
