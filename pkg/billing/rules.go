package billing

import (
	"encoding/base32"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/chartpay/pkg/account"
	"github.com/platinummonkey/chartpay/pkg/apperrors"
	"github.com/platinummonkey/chartpay/pkg/payments"
	"github.com/platinummonkey/chartpay/pkg/plans"
	"github.com/platinummonkey/chartpay/pkg/quota"
)

var referenceEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewReference returns a transfer reference such as CP-MFRGGZDF.
func NewReference() string {
	id := uuid.New()
	return "CP-" + strings.ToUpper(referenceEncoding.EncodeToString(id[:])[:8])
}

func dayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// newUser builds an account on the catalog's lowest plan.
func newUser(id, email string, catalog *plans.Catalog, now time.Time) (User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return User{}, apperrors.Validation("a valid email is required")
	}
	lowest, ok := catalog.Lowest()
	if !ok {
		return User{}, apperrors.New(apperrors.CodeInternal, "plan catalog is empty")
	}
	return User{
		ID:                 id,
		Email:              email,
		Plan:               lowest.Name,
		SubscriptionStatus: account.SubscriptionActive,
		UsageDay:           dayStart(now),
		UsageMonth:         monthStart(now),
		CreatedAt:          now,
	}, nil
}

// rollover resets counters whose period has passed and drops a lapsed
// subscription back to the lowest plan.
func rollover(u User, catalog *plans.Catalog, now time.Time) User {
	if day := dayStart(now); u.UsageDay.Before(day) {
		u.DailyAnalyses = 0
		u.UsageDay = day
	}
	if month := monthStart(now); u.UsageMonth.Before(month) {
		u.MonthlyAnalyses = 0
		u.UsageMonth = month
	}
	if u.SubscriptionExpiresAt != nil && !now.Before(*u.SubscriptionExpiresAt) {
		if lowest, ok := catalog.Lowest(); ok {
			u.Plan = lowest.Name
		}
		u.SubscriptionStatus = account.SubscriptionExpired
		u.SubscriptionExpiresAt = nil
	}
	return u
}

func profileOf(u User) account.Profile {
	return account.Profile{
		UserID: u.ID,
		Email:  u.Email,
		Subscription: account.Subscription{
			Plan:      u.Plan,
			Status:    u.SubscriptionStatus,
			StartedAt: u.SubscriptionStartedAt,
			ExpiresAt: u.SubscriptionExpiresAt,
		},
		APIUsage: account.APIUsage{
			DailyAnalyses:   u.DailyAnalyses,
			MonthlyAnalyses: u.MonthlyAnalyses,
		},
	}
}

// consume applies one analysis to u, or returns QUOTA_EXCEEDED.
func consume(u User, gate *quota.Gate) (User, error) {
	d, err := gate.Check(u.Plan, u.Counters())
	if err != nil {
		return u, err
	}
	if !d.Allowed {
		return u, apperrors.QuotaExceeded(string(d.LimitType), d.Used, d.Limit)
	}
	u.DailyAnalyses++
	u.MonthlyAnalyses++
	return u, nil
}

// newPaymentRequest validates the upgrade and builds a pending request.
func newPaymentRequest(u User, planName string, opts Options, now time.Time) (payments.PaymentRequest, error) {
	target, err := opts.Catalog.Get(planName)
	if err != nil {
		return payments.PaymentRequest{}, err
	}
	if current, err := opts.Catalog.Get(u.Plan); err == nil && target.Rank <= current.Rank {
		return payments.PaymentRequest{}, apperrors.Validation("already on plan %s or higher", current.Name)
	}
	if target.Price <= 0 {
		return payments.PaymentRequest{}, apperrors.Validation("plan %s has no price", target.Name)
	}
	return payments.PaymentRequest{
		ID:              uuid.NewString(),
		UserID:          u.ID,
		Plan:            target.Name,
		Amount:          target.Price,
		Currency:        target.Currency,
		SubmissionState: payments.SubmissionPending,
		ReviewState:     payments.ReviewNone,
		BankDetails:     opts.Bank,
		Reference:       NewReference(),
		CreatedAt:       now,
		ExpiresAt:       now.Add(opts.RequestTTL),
	}, nil
}

// claim moves a pending request to user_claimed_paid. A request past its
// expiry comes back expired together with a state error.
func claim(r payments.PaymentRequest, now time.Time) (payments.PaymentRequest, error) {
	if r.PastExpiry(now) {
		return r.WithLazyExpiry(now), apperrors.State("payment request %s has expired", r.ID)
	}
	if !r.CanClaim() {
		return r, apperrors.State("payment request %s is %s", r.ID, r.SubmissionState)
	}
	r.SubmissionState = payments.SubmissionClaimedPaid
	r.ReviewState = payments.ReviewAwaiting
	r.ClaimedAt = &now
	return r, nil
}

func cancel(r payments.PaymentRequest, now time.Time) (payments.PaymentRequest, error) {
	if r.PastExpiry(now) {
		return r.WithLazyExpiry(now), apperrors.State("payment request %s has expired", r.ID)
	}
	if !r.CanCancel() {
		return r, apperrors.State("payment request %s is %s", r.ID, r.SubmissionState)
	}
	r.SubmissionState = payments.SubmissionCancelled
	return r, nil
}

// review records the admin decision on a claimed request. Rejection needs a note.
func review(r payments.PaymentRequest, approve bool, note string, now time.Time) (payments.PaymentRequest, error) {
	if r.SubmissionState != payments.SubmissionClaimedPaid || r.ReviewState != payments.ReviewAwaiting {
		return r, apperrors.State("payment request %s is not awaiting review", r.ID)
	}
	note = strings.TrimSpace(note)
	if !approve && note == "" {
		return r, apperrors.Validation("a rejection needs a note")
	}
	if approve {
		r.ReviewState = payments.ReviewApproved
	} else {
		r.ReviewState = payments.ReviewRejected
	}
	r.AdminNote = note
	r.ReviewedAt = &now
	return r, nil
}

// upgrade moves u to plan for one subscription period starting at now.
func upgrade(u User, plan string, period time.Duration, now time.Time) User {
	expires := now.Add(period)
	u.Plan = plan
	u.SubscriptionStatus = account.SubscriptionActive
	u.SubscriptionStartedAt = &now
	u.SubscriptionExpiresAt = &expires
	return u
}

func decision(approve bool) string {
	if approve {
		return "approved"
	}
	return "rejected"
}
