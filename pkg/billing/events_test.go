package billing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/chartpay/pkg/observability"
	"github.com/platinummonkey/chartpay/pkg/plans"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) types() []EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func TestWithEvents_Lifecycle(t *testing.T) {
	mem, clock, u := newTestMemoryService(t)
	pub := &recordingPublisher{}
	svc := WithEvents(mem, pub, clock, nil)
	ctx := observability.WithUserID(context.Background(), u.ID)

	r, err := svc.CreatePaymentRequest(ctx, u.ID, plans.Premium)
	require.NoError(t, err)
	_, err = svc.CreatePaymentRequest(ctx, u.ID, plans.Premium)
	require.Error(t, err)
	_, err = svc.ClaimPaymentRequest(ctx, u.ID, r.ID)
	require.NoError(t, err)

	adminCtx := observability.WithUserID(context.Background(), "admin-1")
	_, err = svc.ReviewPaymentRequest(adminCtx, r.ID, true, "")
	require.NoError(t, err)

	assert.Equal(t, []EventType{EventRequestCreated, EventRequestClaimed, EventRequestApproved}, pub.types())

	first := pub.events[0]
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, u.ID, first.Actor)
	assert.Equal(t, clock.Now().UTC(), first.OccurredAt)
	require.NotNil(t, first.Request)
	assert.Equal(t, r.Reference, first.Request.Reference)
	assert.Equal(t, "admin-1", pub.events[2].Actor)

	// Reads do not publish.
	_, err = svc.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, pub.events, 3)
}

func TestWithEvents_CancelRejectAndSweep(t *testing.T) {
	mem, clock, u := newTestMemoryService(t)
	pub := &recordingPublisher{}
	svc := WithEvents(mem, pub, clock, nil)
	ctx := context.Background()

	r, err := svc.CreatePaymentRequest(ctx, u.ID, plans.Premium)
	require.NoError(t, err)
	_, err = svc.CancelPaymentRequest(ctx, u.ID, r.ID)
	require.NoError(t, err)

	r, err = svc.CreatePaymentRequest(ctx, u.ID, plans.Premium)
	require.NoError(t, err)
	_, err = svc.ClaimPaymentRequest(ctx, u.ID, r.ID)
	require.NoError(t, err)
	_, err = svc.ReviewPaymentRequest(ctx, r.ID, false, "no transfer found")
	require.NoError(t, err)

	_, err = svc.CreatePaymentRequest(ctx, u.ID, plans.Premium)
	require.NoError(t, err)
	n, err := svc.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	clock.Advance(DefaultRequestTTL + time.Minute)
	n, err = svc.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	assert.Equal(t, []EventType{
		EventRequestCreated, EventRequestCancelled,
		EventRequestCreated, EventRequestClaimed, EventRequestRejected,
		EventRequestCreated, EventRequestsExpired,
	}, pub.types())

	last := pub.events[len(pub.events)-1]
	assert.Equal(t, SystemActor, last.Actor)
	assert.Nil(t, last.Request)
	assert.Equal(t, int64(1), last.Count)
}

func TestWithEvents_PublishFailureDoesNotFailCall(t *testing.T) {
	mem, clock, u := newTestMemoryService(t)
	pub := &recordingPublisher{err: errors.New("sink down")}
	svc := WithEvents(mem, pub, clock, nil)

	r, err := svc.CreatePaymentRequest(context.Background(), u.ID, plans.Premium)
	require.NoError(t, err)
	assert.NotEmpty(t, r.ID)
	assert.Len(t, pub.events, 1)
}

func TestWithEvents_NilPublisher(t *testing.T) {
	mem, _, _ := newTestMemoryService(t)
	assert.Same(t, mem, WithEvents(mem, nil, nil, nil))
}

func TestPublishers(t *testing.T) {
	a := &recordingPublisher{}
	b := &recordingPublisher{err: errors.New("b failed")}
	c := &recordingPublisher{err: errors.New("c failed")}

	err := Publishers(a, nil, b, c).Publish(context.Background(), Event{Type: EventRequestCreated})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b failed")
	assert.Contains(t, err.Error(), "c failed")
	assert.Len(t, a.events, 1)
	assert.Len(t, c.events, 1)

	called := false
	fn := PublisherFunc(func(ctx context.Context, event Event) error {
		called = event.Type == EventRequestsExpired
		return nil
	})
	require.NoError(t, Publishers(fn).Publish(context.Background(), Event{Type: EventRequestsExpired}))
	assert.True(t, called)
}
