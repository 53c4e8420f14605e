// Package billing is the server side of the bank-transfer upgrade flow.
//
// # Overview
//
// A Service owns users, their plan and usage counters, and their payment
// requests. It is the authority the client-side packages reconcile against:
//
//   - at most one active payment request per user (CONFLICT otherwise)
//   - claim and cancel only from pending; an overdue request becomes expired
//   - review only from user_claimed_paid/awaiting_review; approval moves the
//     owner to the requested plan for one subscription period
//   - ConsumeAnalysis is the authoritative quota check
//
// # Implementations
//
// MemoryService keeps everything in process memory and is used for local
// development and tests. PostgresService stores users and requests in
// PostgreSQL; a partial unique index enforces the one-active rule and
// analyses are consumed in a serializable transaction holding the user row.
//
// # Usage Example
//
//	svc, err := billing.NewPostgresService(db, billing.Options{
//		Catalog:    catalog,
//		Bank:       payments.BankDetails{BankName: "Zenith", AccountName: "Chartpay Ltd", AccountNumber: "1012345678"},
//		RequestTTL: 30 * time.Minute,
//	})
//	if err := svc.Migrate(ctx); err != nil {
//		return err
//	}
//	r, err := svc.CreatePaymentRequest(ctx, userID, "premium")
//
// ExpireStale is meant to run on a schedule so overdue requests are
// persisted as expired even when no client reads them.
package billing
