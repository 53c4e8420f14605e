package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/chartpay/pkg/account"
	"github.com/platinummonkey/chartpay/pkg/apperrors"
	"github.com/platinummonkey/chartpay/pkg/observability"
	"github.com/platinummonkey/chartpay/pkg/payments"
	"github.com/platinummonkey/chartpay/pkg/plans"
	"github.com/platinummonkey/chartpay/pkg/quota"
)

// fakeBackend is an in-memory stand-in for backend.Client.
type fakeBackend struct {
	mu           sync.Mutex
	clock        clockwork.Clock
	profile      account.Profile
	profileErr   error
	profileCalls int
	consumeFunc  func(ctx context.Context) (quota.Counters, error)
	request      *payments.PaymentRequest
}

func (b *fakeBackend) FetchPlans(ctx context.Context) ([]plans.Plan, error) {
	return plans.Defaults(), nil
}

func (b *fakeBackend) FetchProfile(ctx context.Context) (account.Profile, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.profileCalls++
	return b.profile, b.profileErr
}

func (b *fakeBackend) ConsumeAnalysis(ctx context.Context) (quota.Counters, error) {
	if b.consumeFunc != nil {
		return b.consumeFunc(ctx)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.profile.APIUsage.DailyAnalyses++
	b.profile.APIUsage.MonthlyAnalyses++
	return b.profile.Counters(), nil
}

func (b *fakeBackend) CreatePaymentRequest(ctx context.Context, plan string) (payments.PaymentRequest, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.clock.Now()
	r := payments.PaymentRequest{
		ID: "pr-1", UserID: "u-1", Plan: plan, Amount: 500000, Currency: "NGN",
		SubmissionState: payments.SubmissionPending, ReviewState: payments.ReviewNone,
		Reference: "CP-TEST0001", CreatedAt: now, ExpiresAt: now.Add(30 * time.Minute),
	}
	b.request = &r
	return r, nil
}

func (b *fakeBackend) MarkClaimedPaid(ctx context.Context, id string) (payments.PaymentRequest, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.request.SubmissionState = payments.SubmissionClaimedPaid
	b.request.ReviewState = payments.ReviewAwaiting
	return *b.request, nil
}

func (b *fakeBackend) GetPaymentStatus(ctx context.Context, id string) (payments.PaymentRequest, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.request == nil || b.request.ID != id {
		return payments.PaymentRequest{}, apperrors.NotFound("not found")
	}
	return *b.request, nil
}

func (b *fakeBackend) CancelPaymentRequest(ctx context.Context, id string) (payments.PaymentRequest, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.request.SubmissionState = payments.SubmissionCancelled
	return *b.request, nil
}

func (b *fakeBackend) GetActivePaymentRequest(ctx context.Context) (*payments.PaymentRequest, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.request == nil || !b.request.IsActive() {
		return nil, nil
	}
	r := *b.request
	return &r, nil
}

func (b *fakeBackend) approve() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.request.ReviewState = payments.ReviewApproved
	b.profile.Subscription.Plan = b.request.Plan
}

func freeProfile(daily, monthly int64) account.Profile {
	return account.Profile{
		UserID:       "u-1",
		Email:        "trader@example.com",
		Subscription: account.Subscription{Plan: plans.Free, Status: account.SubscriptionActive},
		APIUsage:     account.APIUsage{DailyAnalyses: daily, MonthlyAnalyses: monthly},
	}
}

func newTestSession(t *testing.T, b *fakeBackend, notifier payments.Notifier) *Session {
	t.Helper()
	if b.clock == nil {
		b.clock = clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	}
	s, err := New("u-1", Deps{
		Backend:  b,
		Plans:    b,
		Profiles: b,
		Consumer: b,
		Notifier: notifier,
		Clock:    b.clock,
		Logger:   observability.NewNopLogger(),
	})
	require.NoError(t, err)
	return s
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New("u-1", Deps{})
	assert.Error(t, err)
}

func TestSession_OpenAndCheckQuota(t *testing.T) {
	b := &fakeBackend{profile: freeProfile(1, 5)}
	s := newTestSession(t, b, nil)
	ctx := context.Background()

	_, err := s.CheckQuota(ctx)
	assert.True(t, errors.Is(err, apperrors.ErrState), "quota before open")

	require.NoError(t, s.Open(ctx))
	assert.Len(t, s.Plans(), 2)
	assert.Equal(t, "u-1", s.UserID())

	d, err := s.CheckQuota(ctx)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, quota.LimitDaily, d.LimitType)
	assert.True(t, d.CanUpgrade)
}

func TestSession_Analyze(t *testing.T) {
	t.Run("allowed consumes and updates counters", func(t *testing.T) {
		b := &fakeBackend{profile: freeProfile(0, 5)}
		s := newTestSession(t, b, nil)
		require.NoError(t, s.Open(context.Background()))

		d, err := s.Analyze(context.Background())
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, int64(1), s.Profile().APIUsage.DailyAnalyses)

		d, err = s.Analyze(context.Background())
		require.NoError(t, err)
		assert.False(t, d.Allowed, "local gate blocks the second analysis")
	})

	t.Run("backend rejection after local allow", func(t *testing.T) {
		b := &fakeBackend{
			profile: freeProfile(0, 5),
			consumeFunc: func(ctx context.Context) (quota.Counters, error) {
				return quota.Counters{}, apperrors.QuotaExceeded("daily", 1, 1)
			},
		}
		s := newTestSession(t, b, nil)
		require.NoError(t, s.Open(context.Background()))

		d, err := s.Analyze(context.Background())
		require.NoError(t, err)
		assert.False(t, d.Allowed)
		assert.Equal(t, quota.LimitDaily, d.LimitType)
		assert.True(t, d.CanUpgrade)
	})
}

func TestSession_UpgradeFlow(t *testing.T) {
	b := &fakeBackend{profile: freeProfile(1, 5)}
	var notes []payments.Notification
	s := newTestSession(t, b, payments.NotifierFunc(func(ctx context.Context, n payments.Notification) {
		notes = append(notes, n)
	}))
	ctx := context.Background()
	require.NoError(t, s.Open(ctx))

	r, err := s.Upgrade(ctx, plans.Premium)
	require.NoError(t, err)
	again, err := s.Upgrade(ctx, plans.Premium)
	require.NoError(t, err)
	assert.Equal(t, r.Reference, again.Reference)

	rem, err := s.Remaining(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(30), rem.Minutes)

	_, err = s.ClaimPaid(ctx, r.ID)
	require.NoError(t, err)

	res, err := s.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, payments.OutcomeAwaitingReview, res.Outcome)

	b.approve()
	res, err = s.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, payments.OutcomeApproved, res.Outcome)
	assert.Equal(t, plans.Premium, s.Profile().Subscription.Plan)
	require.Len(t, notes, 1)

	res, err = s.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, payments.OutcomeNoop, res.Outcome)
	assert.Len(t, notes, 1)

	d, err := s.CheckQuota(ctx)
	require.NoError(t, err)
	assert.True(t, d.Allowed, "premium daily limit is higher")
}

func TestSession_AuthErrorTearsDown(t *testing.T) {
	b := &fakeBackend{profile: freeProfile(0, 0)}
	s := newTestSession(t, b, nil)
	ctx := context.Background()
	require.NoError(t, s.Open(ctx))
	_, err := s.Upgrade(ctx, plans.Premium)
	require.NoError(t, err)

	b.consumeFunc = func(ctx context.Context) (quota.Counters, error) {
		return quota.Counters{}, apperrors.Unauthorized("token expired")
	}
	_, err = s.Analyze(ctx)
	assert.True(t, errors.Is(err, apperrors.ErrAuth))
	assert.True(t, s.Closed())
	assert.Empty(t, s.Profile().UserID)

	cached, err := s.Payments().Active(ctx)
	require.NoError(t, err)
	assert.Nil(t, cached)

	_, err = s.Upgrade(ctx, plans.Premium)
	assert.True(t, errors.Is(err, ErrClosed))
	_, err = s.Refresh(ctx)
	assert.True(t, errors.Is(err, apperrors.ErrAuth))

	assert.NoError(t, s.Close(ctx), "close is idempotent")
}

func TestSession_OpenAuthFailure(t *testing.T) {
	b := &fakeBackend{profileErr: apperrors.Unauthorized("bad token")}
	s := newTestSession(t, b, nil)

	err := s.Open(context.Background())
	assert.True(t, errors.Is(err, apperrors.ErrAuth))
	assert.True(t, s.Closed())
}

func TestSession_ServerActiveRequestResumedAfterRelogin(t *testing.T) {
	b := &fakeBackend{profile: freeProfile(1, 5)}
	ctx := context.Background()

	first := newTestSession(t, b, nil)
	require.NoError(t, first.Open(ctx))
	r, err := first.Upgrade(ctx, plans.Premium)
	require.NoError(t, err)
	require.NoError(t, first.Close(ctx))

	second := newTestSession(t, b, nil)
	require.NoError(t, second.Open(ctx))
	resumed, err := second.Upgrade(ctx, plans.Premium)
	require.NoError(t, err)
	assert.Equal(t, r.Reference, resumed.Reference)
}
