// Package payments implements the bank-transfer upgrade flow on the client.
//
// # Overview
//
// A user upgrades by creating a payment request, transferring the amount to
// the displayed bank account with the request's reference, and claiming the
// payment. An admin then approves or rejects the claim out of band.
//
// Two orthogonal states describe a request:
//
//	SubmissionState: pending -> user_claimed_paid | cancelled | expired
//	ReviewState:     none -> awaiting_review -> approved | rejected
//
// Submission state moves on user actions and, for expiry, lazily whenever the
// request is read. Review state belongs to the backend and is only observed.
//
// # Manager
//
// Manager owns the single active request of one user. Initiate is idempotent:
// while a request is active it is returned unchanged, and concurrent calls are
// collapsed into one backend round trip.
//
// # Reconciler
//
// Reconciler is called on demand (pull to refresh, a visible screen tick) and
// never runs in the background. It copies the backend's state into the cache
// and applies side effects once per transition:
//
//	approved   refresh subscription, clear cache, notify
//	rejected   keep with admin note until acknowledged, notify
//	expired    keep until acknowledged
//	cancelled  keep until acknowledged
//
// The backend's state wins over the local clock.
package payments
