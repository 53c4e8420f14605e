package payments

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/chartpay/pkg/apperrors"
	"github.com/platinummonkey/chartpay/pkg/observability"
	"github.com/platinummonkey/chartpay/pkg/plans"
)

type mockRefresher struct {
	mu          sync.Mutex
	calls       int
	refreshFunc func(ctx context.Context) error
}

func (r *mockRefresher) RefreshSubscription(ctx context.Context) error {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	if r.refreshFunc != nil {
		return r.refreshFunc(ctx)
	}
	return nil
}

func (r *mockRefresher) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []Notification
}

func (n *recordingNotifier) Notify(ctx context.Context, note Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note)
}

func (n *recordingNotifier) recorded() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.notes...)
}

type reconcileFixture struct {
	manager    *Manager
	reconciler *Reconciler
	backend    *mockBackend
	refresher  *mockRefresher
	notifier   *recordingNotifier
	server     PaymentRequest
}

// newReconcileFixture initiates pr-1 and serves f.server as the backend's truth.
func newReconcileFixture(t *testing.T, metrics *observability.Metrics) (*reconcileFixture, func(time.Duration)) {
	t.Helper()
	f := &reconcileFixture{
		refresher: &mockRefresher{},
		notifier:  &recordingNotifier{},
		server:    newRequest("pr-1", testStart),
	}
	f.backend = &mockBackend{
		createFunc: func(ctx context.Context, plan string) (PaymentRequest, error) {
			return newRequest("pr-1", testStart), nil
		},
		statusFunc: func(ctx context.Context, id string) (PaymentRequest, error) {
			return f.server, nil
		},
	}
	m, clock := newTestManager(t, f.backend)
	f.manager = m

	r, err := NewReconciler(ReconcilerConfig{
		Manager:   m,
		Refresher: f.refresher,
		Notifier:  f.notifier,
		Logger:    observability.NewNopLogger(),
		Metrics:   metrics,
	})
	require.NoError(t, err)
	f.reconciler = r

	_, err = m.Initiate(context.Background(), plans.Premium)
	require.NoError(t, err)
	return f, clock.Advance
}

func TestNewReconciler_Validation(t *testing.T) {
	_, err := NewReconciler(ReconcilerConfig{})
	assert.Error(t, err)

	m, _ := newTestManager(t, &mockBackend{})
	_, err = NewReconciler(ReconcilerConfig{Manager: m})
	assert.Error(t, err)
}

func TestReconcile_NothingCached(t *testing.T) {
	m, _ := newTestManager(t, &mockBackend{})
	r, err := NewReconciler(ReconcilerConfig{Manager: m, Refresher: &mockRefresher{}})
	require.NoError(t, err)

	res, err := r.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, res.Outcome)
}

func TestReconcile_Approved(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	f, _ := newReconcileFixture(t, metrics)
	ctx := context.Background()

	f.server.SubmissionState = SubmissionClaimedPaid
	f.server.ReviewState = ReviewApproved

	res, err := f.reconciler.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApproved, res.Outcome)
	assert.True(t, res.Notified)
	assert.Equal(t, 1, f.refresher.calls)
	require.Len(t, f.notifier.notes, 1)
	assert.Equal(t, NotifyApproved, f.notifier.notes[0].Kind)
	assert.Equal(t, "CP-pr-1", f.notifier.notes[0].Reference)

	cached, err := f.manager.Active(ctx)
	require.NoError(t, err)
	assert.Nil(t, cached)

	res, err = f.reconciler.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, res.Outcome)
	assert.Equal(t, 1, f.refresher.calls)
	assert.Len(t, f.notifier.notes, 1)
	assert.Equal(t, 1, f.backend.statusCalls)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.NotificationsTotal.WithLabelValues("approved")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ReconcileTotal.WithLabelValues("noop")))
}

func TestReconcile_RefreshFailureRetries(t *testing.T) {
	f, _ := newReconcileFixture(t, nil)
	ctx := context.Background()
	f.server.SubmissionState = SubmissionClaimedPaid
	f.server.ReviewState = ReviewApproved

	fail := true
	f.refresher.refreshFunc = func(ctx context.Context) error {
		if fail {
			return apperrors.Network(errors.New("timeout"))
		}
		return nil
	}

	_, err := f.reconciler.Reconcile(ctx)
	assert.True(t, errors.Is(err, apperrors.ErrNetwork))
	assert.Empty(t, f.notifier.notes)

	cached, err := f.manager.Active(ctx)
	require.NoError(t, err)
	require.NotNil(t, cached)

	fail = false
	res, err := f.reconciler.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApproved, res.Outcome)
	assert.Len(t, f.notifier.notes, 1)
}

func TestReconcile_Rejected(t *testing.T) {
	f, _ := newReconcileFixture(t, nil)
	ctx := context.Background()

	f.server.SubmissionState = SubmissionClaimedPaid
	f.server.ReviewState = ReviewRejected
	f.server.AdminNote = "No transfer with this reference was received."

	for i := 0; i < 2; i++ {
		res, err := f.reconciler.Reconcile(ctx)
		require.NoError(t, err)
		assert.Equal(t, OutcomeRejected, res.Outcome)
		require.NotNil(t, res.Request)
		assert.Equal(t, f.server.AdminNote, res.Request.AdminNote)
	}

	require.Len(t, f.notifier.notes, 1, "rejection is announced once")
	assert.Contains(t, f.notifier.notes[0].Message, "No transfer")
	assert.Equal(t, 0, f.refresher.calls)

	cached, err := f.manager.Active(ctx)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, ReviewRejected, cached.ReviewState)

	require.NoError(t, f.manager.Acknowledge(ctx, "pr-1"))
	cached, err = f.manager.Active(ctx)
	require.NoError(t, err)
	assert.Nil(t, cached)
}

func TestReconcile_ServerWinsOverLocalExpiry(t *testing.T) {
	f, advance := newReconcileFixture(t, nil)
	ctx := context.Background()

	advance(31 * time.Minute)
	cached, err := f.manager.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, SubmissionExpired, cached.SubmissionState)

	// The admin approved before expiry; the backend recorded it.
	f.server.SubmissionState = SubmissionClaimedPaid
	f.server.ReviewState = ReviewApproved

	res, err := f.reconciler.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApproved, res.Outcome)
	assert.Equal(t, 1, f.refresher.calls)
}

func TestReconcile_LocalExpiryConfirmedByServer(t *testing.T) {
	f, advance := newReconcileFixture(t, nil)
	ctx := context.Background()
	advance(31 * time.Minute)

	cached, err := f.manager.Active(ctx)
	require.NoError(t, err)
	require.Equal(t, SubmissionExpired, cached.SubmissionState)
	assert.Nil(t, cached.NotifiedAt)

	res, err := f.reconciler.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeExpired, res.Outcome)
	assert.True(t, res.Notified)
	require.Len(t, f.notifier.notes, 1)
	assert.Equal(t, NotifyExpired, f.notifier.notes[0].Kind)

	res, err = f.reconciler.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeExpired, res.Outcome)
	assert.False(t, res.Notified)
	assert.Len(t, f.notifier.notes, 1, "expiry is announced once")

	cached, err = f.manager.Active(ctx)
	require.NoError(t, err)
	require.NotNil(t, cached.NotifiedAt)
	assert.True(t, cached.NotifiedAt.Equal(testStart.Add(31*time.Minute)))
}

func TestReconcile_OverlappingCallsApproveOnce(t *testing.T) {
	f, _ := newReconcileFixture(t, nil)
	ctx := context.Background()

	approved := f.server
	approved.SubmissionState = SubmissionClaimedPaid
	approved.ReviewState = ReviewApproved
	entered := make(chan struct{}, 2)
	release := make(chan struct{})
	f.backend.statusFunc = func(ctx context.Context, id string) (PaymentRequest, error) {
		entered <- struct{}{}
		<-release
		return approved, nil
	}

	results := make([]Result, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.reconciler.Reconcile(ctx)
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}

	<-entered
	// Give the second caller time to reach Reconcile while the first is blocked.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, 1, f.refresher.callCount())
	notes := f.notifier.recorded()
	require.Len(t, notes, 1)
	assert.Equal(t, NotifyApproved, notes[0].Kind)

	f.backend.mu.Lock()
	assert.Equal(t, 1, f.backend.statusCalls)
	f.backend.mu.Unlock()

	for _, res := range results {
		assert.Contains(t, []Outcome{OutcomeApproved, OutcomeNoop}, res.Outcome)
	}
	cached, err := f.manager.Active(ctx)
	require.NoError(t, err)
	assert.Nil(t, cached)
}

func TestReconcile_ServerExpiredOrCancelled(t *testing.T) {
	tests := []struct {
		name    string
		state   SubmissionState
		outcome Outcome
		kind    NotificationKind
	}{
		{"expired by sweeper", SubmissionExpired, OutcomeExpired, NotifyExpired},
		{"cancelled on another device", SubmissionCancelled, OutcomeCancelled, NotifyCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, _ := newReconcileFixture(t, nil)
			f.server.SubmissionState = tt.state

			res, err := f.reconciler.Reconcile(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.outcome, res.Outcome)

			_, err = f.reconciler.Reconcile(context.Background())
			require.NoError(t, err)
			require.Len(t, f.notifier.notes, 1)
			assert.Equal(t, tt.kind, f.notifier.notes[0].Kind)
		})
	}
}

func TestReconcile_StillPendingOverwritesCache(t *testing.T) {
	f, _ := newReconcileFixture(t, nil)
	f.server.SubmissionState = SubmissionClaimedPaid
	f.server.ReviewState = ReviewAwaiting

	res, err := f.reconciler.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeAwaitingReview, res.Outcome)
	assert.False(t, res.Notified)

	cached, err := f.manager.Active(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SubmissionClaimedPaid, cached.SubmissionState)
}

func TestReconcile_StaleRequest(t *testing.T) {
	f, _ := newReconcileFixture(t, nil)
	f.backend.statusFunc = func(ctx context.Context, id string) (PaymentRequest, error) {
		return PaymentRequest{}, apperrors.NotFound("payment request %s not found", id)
	}

	res, err := f.reconciler.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeStale, res.Outcome)

	cached, err := f.manager.Active(context.Background())
	require.NoError(t, err)
	assert.Nil(t, cached)
}

func TestReconcile_NetworkFailureKeepsLocalView(t *testing.T) {
	f, _ := newReconcileFixture(t, nil)
	f.backend.statusFunc = func(ctx context.Context, id string) (PaymentRequest, error) {
		return PaymentRequest{}, apperrors.Network(errors.New("no route to host"))
	}

	res, err := f.reconciler.Reconcile(context.Background())
	assert.True(t, errors.Is(err, apperrors.ErrNetwork))
	assert.Equal(t, OutcomePending, res.Outcome)
	require.NotNil(t, res.Request)
	assert.Equal(t, "pr-1", res.Request.ID)
}
