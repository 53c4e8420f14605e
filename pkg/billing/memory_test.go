package billing

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/chartpay/pkg/account"
	"github.com/platinummonkey/chartpay/pkg/apperrors"
	"github.com/platinummonkey/chartpay/pkg/payments"
	"github.com/platinummonkey/chartpay/pkg/plans"
)

var testBank = payments.BankDetails{BankName: "Zenith", AccountName: "Chartpay Ltd", AccountNumber: "1012345678"}

func testOptions(t *testing.T, clock clockwork.Clock) Options {
	t.Helper()
	catalog, err := plans.NewStaticCatalog(plans.Defaults())
	require.NoError(t, err)
	return Options{Catalog: catalog, Bank: testBank, Clock: clock}
}

func newTestMemoryService(t *testing.T) (*MemoryService, *clockwork.FakeClock, User) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc, err := NewMemoryService(testOptions(t, clock))
	require.NoError(t, err)
	u, err := svc.EnsureUser(context.Background(), "Trader@Example.com")
	require.NoError(t, err)
	return svc, clock, u
}

func TestNewReference(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		ref := NewReference()
		assert.Regexp(t, regexp.MustCompile(`^CP-[A-Z2-7]{8}$`), ref)
		assert.False(t, seen[ref], "duplicate reference %s", ref)
		seen[ref] = true
	}
}

func TestMemoryService_EnsureUser(t *testing.T) {
	svc, _, u := newTestMemoryService(t)
	ctx := context.Background()

	assert.Equal(t, "trader@example.com", u.Email)
	assert.Equal(t, plans.Free, u.Plan)

	again, err := svc.EnsureUser(ctx, "trader@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID)

	_, err = svc.EnsureUser(ctx, "not-an-email")
	assert.True(t, errors.Is(err, apperrors.ErrValidation))

	_, err = svc.GetUser(ctx, "missing")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestMemoryService_ConsumeAnalysis(t *testing.T) {
	svc, clock, u := newTestMemoryService(t)
	ctx := context.Background()

	t.Run("success - first analysis of the day", func(t *testing.T) {
		c, err := svc.ConsumeAnalysis(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), c.DailyAnalyses)
		assert.Equal(t, int64(1), c.MonthlyAnalyses)
	})

	t.Run("error - daily limit reached", func(t *testing.T) {
		_, err := svc.ConsumeAnalysis(ctx, u.ID)
		require.Error(t, err)
		q, ok := apperrors.QuotaOf(err)
		require.True(t, ok)
		assert.Equal(t, "daily", q.LimitType)
		assert.Equal(t, int64(1), q.Used)
		assert.Equal(t, int64(1), q.Limit)
	})

	t.Run("success - daily counter resets the next day", func(t *testing.T) {
		clock.Advance(24 * time.Hour)
		c, err := svc.ConsumeAnalysis(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), c.DailyAnalyses)
		assert.Equal(t, int64(2), c.MonthlyAnalyses)
	})
}

func TestMemoryService_PaymentRequestLifecycle(t *testing.T) {
	svc, _, u := newTestMemoryService(t)
	ctx := context.Background()

	r, err := svc.CreatePaymentRequest(ctx, u.ID, plans.Premium)
	require.NoError(t, err)
	assert.Equal(t, payments.SubmissionPending, r.SubmissionState)
	assert.Equal(t, payments.ReviewNone, r.ReviewState)
	assert.Equal(t, int64(500000), r.Amount)
	assert.Equal(t, testBank, r.BankDetails)
	assert.Equal(t, DefaultRequestTTL, r.ExpiresAt.Sub(r.CreatedAt))
	require.NoError(t, r.Validate())

	_, err = svc.CreatePaymentRequest(ctx, u.ID, plans.Premium)
	assert.True(t, errors.Is(err, apperrors.ErrConflict), "one active request per user")

	active, err := svc.GetActivePaymentRequest(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, r.ID, active.ID)

	_, err = svc.GetPaymentRequest(ctx, "someone-else", r.ID)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	_, err = svc.ReviewPaymentRequest(ctx, r.ID, true, "")
	assert.True(t, errors.Is(err, apperrors.ErrState), "cannot review before claim")

	claimed, err := svc.ClaimPaymentRequest(ctx, u.ID, r.ID)
	require.NoError(t, err)
	assert.Equal(t, payments.SubmissionClaimedPaid, claimed.SubmissionState)
	assert.Equal(t, payments.ReviewAwaiting, claimed.ReviewState)
	require.NotNil(t, claimed.ClaimedAt)

	_, err = svc.CancelPaymentRequest(ctx, u.ID, r.ID)
	assert.True(t, errors.Is(err, apperrors.ErrState), "cannot cancel after claim")

	approved, err := svc.ReviewPaymentRequest(ctx, r.ID, true, "")
	require.NoError(t, err)
	assert.Equal(t, payments.ReviewApproved, approved.ReviewState)

	p, err := svc.Profile(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, plans.Premium, p.Subscription.Plan)
	assert.Equal(t, account.SubscriptionActive, p.Subscription.Status)
	require.NotNil(t, p.Subscription.ExpiresAt)

	active, err = svc.GetActivePaymentRequest(ctx, u.ID)
	require.NoError(t, err)
	assert.Nil(t, active)

	_, err = svc.CreatePaymentRequest(ctx, u.ID, plans.Premium)
	assert.True(t, errors.Is(err, apperrors.ErrValidation), "already on premium")
}

func TestMemoryService_Reject(t *testing.T) {
	svc, _, u := newTestMemoryService(t)
	ctx := context.Background()

	r, err := svc.CreatePaymentRequest(ctx, u.ID, plans.Premium)
	require.NoError(t, err)
	_, err = svc.ClaimPaymentRequest(ctx, u.ID, r.ID)
	require.NoError(t, err)

	_, err = svc.ReviewPaymentRequest(ctx, r.ID, false, "  ")
	assert.True(t, errors.Is(err, apperrors.ErrValidation), "rejection needs a note")

	rejected, err := svc.ReviewPaymentRequest(ctx, r.ID, false, "no matching transfer")
	require.NoError(t, err)
	assert.Equal(t, payments.ReviewRejected, rejected.ReviewState)
	assert.Equal(t, "no matching transfer", rejected.AdminNote)

	p, err := svc.Profile(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, plans.Free, p.Subscription.Plan)

	_, err = svc.CreatePaymentRequest(ctx, u.ID, plans.Premium)
	assert.NoError(t, err, "a rejected request does not block a new one")
}

func TestMemoryService_Expiry(t *testing.T) {
	svc, clock, u := newTestMemoryService(t)
	ctx := context.Background()

	r, err := svc.CreatePaymentRequest(ctx, u.ID, plans.Premium)
	require.NoError(t, err)
	clock.Advance(DefaultRequestTTL)

	got, err := svc.GetPaymentRequest(ctx, u.ID, r.ID)
	require.NoError(t, err)
	assert.Equal(t, payments.SubmissionExpired, got.SubmissionState, "expired on read at exactly expires_at")

	_, err = svc.ClaimPaymentRequest(ctx, u.ID, r.ID)
	assert.True(t, errors.Is(err, apperrors.ErrState))

	n, err := svc.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "claim already persisted the expiry")

	next, err := svc.CreatePaymentRequest(ctx, u.ID, plans.Premium)
	require.NoError(t, err)
	assert.NotEqual(t, r.Reference, next.Reference)

	clock.Advance(time.Hour)
	n, err = svc.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMemoryService_CancelThenCreate(t *testing.T) {
	svc, _, u := newTestMemoryService(t)
	ctx := context.Background()

	r, err := svc.CreatePaymentRequest(ctx, u.ID, plans.Premium)
	require.NoError(t, err)
	cancelled, err := svc.CancelPaymentRequest(ctx, u.ID, r.ID)
	require.NoError(t, err)
	assert.Equal(t, payments.SubmissionCancelled, cancelled.SubmissionState)

	_, err = svc.CancelPaymentRequest(ctx, u.ID, r.ID)
	assert.True(t, errors.Is(err, apperrors.ErrState))

	_, err = svc.CreatePaymentRequest(ctx, u.ID, "gold")
	assert.True(t, errors.Is(err, apperrors.ErrValidation), "unknown plan")

	_, err = svc.CreatePaymentRequest(ctx, u.ID, plans.Premium)
	assert.NoError(t, err)
}

func TestMemoryService_SubscriptionLapses(t *testing.T) {
	svc, clock, u := newTestMemoryService(t)
	ctx := context.Background()

	r, err := svc.CreatePaymentRequest(ctx, u.ID, plans.Premium)
	require.NoError(t, err)
	_, err = svc.ClaimPaymentRequest(ctx, u.ID, r.ID)
	require.NoError(t, err)
	_, err = svc.ReviewPaymentRequest(ctx, r.ID, true, "")
	require.NoError(t, err)

	clock.Advance(DefaultSubscriptionPeriod)
	p, err := svc.Profile(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, plans.Free, p.Subscription.Plan)
	assert.Equal(t, account.SubscriptionExpired, p.Subscription.Status)
}
