package billing

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/platinummonkey/chartpay/pkg/account"
	"github.com/platinummonkey/chartpay/pkg/observability"
	"github.com/platinummonkey/chartpay/pkg/payments"
	"github.com/platinummonkey/chartpay/pkg/plans"
	"github.com/platinummonkey/chartpay/pkg/quota"
)

// DefaultRequestTTL is how long a pending request waits for the transfer.
const DefaultRequestTTL = 30 * time.Minute

// DefaultSubscriptionPeriod is how long an approved upgrade lasts.
const DefaultSubscriptionPeriod = 30 * 24 * time.Hour

// User is a backend account with its plan and usage counters.
type User struct {
	ID                    string                     `json:"id"`
	Email                 string                     `json:"email"`
	Plan                  string                     `json:"plan"`
	SubscriptionStatus    account.SubscriptionStatus `json:"subscription_status"`
	SubscriptionStartedAt *time.Time                 `json:"subscription_started_at,omitempty"`
	SubscriptionExpiresAt *time.Time                 `json:"subscription_expires_at,omitempty"`
	DailyAnalyses         int64                      `json:"daily_analyses"`
	MonthlyAnalyses       int64                      `json:"monthly_analyses"`
	UsageDay              time.Time                  `json:"usage_day"`
	UsageMonth            time.Time                  `json:"usage_month"`
	CreatedAt             time.Time                  `json:"created_at"`
}

// Counters returns the usage counters.
func (u User) Counters() quota.Counters {
	return quota.Counters{DailyAnalyses: u.DailyAnalyses, MonthlyAnalyses: u.MonthlyAnalyses}
}

// Options configures a Service implementation.
type Options struct {
	Catalog            *plans.Catalog
	Bank               payments.BankDetails
	RequestTTL         time.Duration
	SubscriptionPeriod time.Duration
	Clock              clockwork.Clock
	Logger             *observability.Logger
	Metrics            *observability.Metrics
}

func (o Options) withDefaults() Options {
	if o.RequestTTL <= 0 {
		o.RequestTTL = DefaultRequestTTL
	}
	if o.SubscriptionPeriod <= 0 {
		o.SubscriptionPeriod = DefaultSubscriptionPeriod
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Logger == nil {
		o.Logger = observability.NewNopLogger()
	}
	return o
}

// Service is the server side of the payment and quota contract.
//
// Calls scoped to a user take the caller's user id; a request owned by
// someone else is reported as not found.
type Service interface {
	// EnsureUser returns the account for email, creating it on the lowest
	// plan when it does not exist.
	EnsureUser(ctx context.Context, email string) (User, error)
	GetUser(ctx context.Context, userID string) (User, error)
	Profile(ctx context.Context, userID string) (account.Profile, error)

	// ConsumeAnalysis records one billable analysis or fails with
	// QUOTA_EXCEEDED. It is the authoritative quota check.
	ConsumeAnalysis(ctx context.Context, userID string) (quota.Counters, error)

	CreatePaymentRequest(ctx context.Context, userID, plan string) (payments.PaymentRequest, error)
	ClaimPaymentRequest(ctx context.Context, userID, id string) (payments.PaymentRequest, error)
	CancelPaymentRequest(ctx context.Context, userID, id string) (payments.PaymentRequest, error)
	GetPaymentRequest(ctx context.Context, userID, id string) (payments.PaymentRequest, error)
	// GetActivePaymentRequest returns nil when the user has none.
	GetActivePaymentRequest(ctx context.Context, userID string) (*payments.PaymentRequest, error)

	// ReviewPaymentRequest approves or rejects a claimed request. Approval
	// moves the owner to the requested plan.
	ReviewPaymentRequest(ctx context.Context, id string, approve bool, note string) (payments.PaymentRequest, error)

	// ExpireStale marks every pending request past its expiry as expired and
	// returns how many were changed.
	ExpireStale(ctx context.Context) (int64, error)
}
