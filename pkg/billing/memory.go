package billing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/chartpay/pkg/account"
	"github.com/platinummonkey/chartpay/pkg/apperrors"
	"github.com/platinummonkey/chartpay/pkg/payments"
	"github.com/platinummonkey/chartpay/pkg/quota"
)

// MemoryService is a Service kept in process memory. It backs local
// development and integration tests.
type MemoryService struct {
	opts Options
	gate *quota.Gate

	mu       sync.Mutex
	users    map[string]User
	byEmail  map[string]string
	requests map[string]payments.PaymentRequest
}

// NewMemoryService creates an empty MemoryService.
func NewMemoryService(opts Options) (*MemoryService, error) {
	if opts.Catalog == nil {
		return nil, fmt.Errorf("plan catalog is required")
	}
	opts = opts.withDefaults()
	return &MemoryService{
		opts:     opts,
		gate:     quota.NewGate(opts.Catalog, opts.Metrics, opts.Logger),
		users:    make(map[string]User),
		byEmail:  make(map[string]string),
		requests: make(map[string]payments.PaymentRequest),
	}, nil
}

func (s *MemoryService) EnsureUser(ctx context.Context, email string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, err := newUser(uuid.NewString(), email, s.opts.Catalog, s.opts.Clock.Now())
	if err != nil {
		return User{}, err
	}
	if id, ok := s.byEmail[u.Email]; ok {
		return s.users[id], nil
	}
	s.users[u.ID] = u
	s.byEmail[u.Email] = u.ID
	s.opts.Logger.WithField("user_id", u.ID).Info("user created")
	return u, nil
}

func (s *MemoryService) GetUser(ctx context.Context, userID string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user(userID)
}

func (s *MemoryService) Profile(ctx context.Context, userID string) (account.Profile, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return account.Profile{}, err
	}
	return profileOf(u), nil
}

func (s *MemoryService) ConsumeAnalysis(ctx context.Context, userID string) (quota.Counters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, err := s.user(userID)
	if err != nil {
		return quota.Counters{}, err
	}
	next, err := consume(u, s.gate)
	if err != nil {
		s.opts.Metrics.AnalysisConsumed(u.Plan, string(apperrors.CodeOf(err)))
		return u.Counters(), err
	}
	s.users[userID] = next
	s.opts.Metrics.AnalysisConsumed(u.Plan, "ok")
	return next.Counters(), nil
}

func (s *MemoryService) CreatePaymentRequest(ctx context.Context, userID, plan string) (payments.PaymentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, err := s.user(userID)
	if err != nil {
		return payments.PaymentRequest{}, err
	}
	if active := s.active(userID); active != nil {
		return payments.PaymentRequest{}, apperrors.Conflict("user already has active payment request %s", active.Reference)
	}
	r, err := newPaymentRequest(u, plan, s.opts, s.opts.Clock.Now())
	if err != nil {
		return payments.PaymentRequest{}, err
	}
	s.requests[r.ID] = r
	s.opts.Logger.WithFields(map[string]interface{}{
		"user_id":    userID,
		"request_id": r.ID,
		"reference":  r.Reference,
		"plan":       r.Plan,
	}).Info("payment request created")
	return r, nil
}

func (s *MemoryService) ClaimPaymentRequest(ctx context.Context, userID, id string) (payments.PaymentRequest, error) {
	return s.transition(userID, id, claim)
}

func (s *MemoryService) CancelPaymentRequest(ctx context.Context, userID, id string) (payments.PaymentRequest, error) {
	return s.transition(userID, id, cancel)
}

func (s *MemoryService) GetPaymentRequest(ctx context.Context, userID, id string) (payments.PaymentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.owned(userID, id)
	if err != nil {
		return payments.PaymentRequest{}, err
	}
	return r.WithLazyExpiry(s.opts.Clock.Now()), nil
}

func (s *MemoryService) GetActivePaymentRequest(ctx context.Context, userID string) (*payments.PaymentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active(userID), nil
}

func (s *MemoryService) ReviewPaymentRequest(ctx context.Context, id string, approve bool, note string) (payments.PaymentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return payments.PaymentRequest{}, apperrors.NotFound("payment request %s not found", id)
	}
	now := s.opts.Clock.Now()
	next, err := review(r, approve, note, now)
	if err != nil {
		return payments.PaymentRequest{}, err
	}
	if approve {
		u, err := s.user(r.UserID)
		if err != nil {
			return payments.PaymentRequest{}, err
		}
		s.users[u.ID] = upgrade(u, r.Plan, s.opts.SubscriptionPeriod, now)
	}
	s.requests[id] = next
	s.opts.Metrics.Reviewed(decision(approve))
	s.opts.Logger.WithFields(map[string]interface{}{
		"request_id": id,
		"decision":   decision(approve),
	}).Info("payment request reviewed")
	return next, nil
}

func (s *MemoryService) ExpireStale(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.opts.Clock.Now()
	var n int64
	for id, r := range s.requests {
		if r.PastExpiry(now) {
			s.requests[id] = r.WithLazyExpiry(now)
			n++
		}
	}
	s.opts.Metrics.Swept(n)
	return n, nil
}

func (s *MemoryService) transition(userID, id string, fn func(payments.PaymentRequest, time.Time) (payments.PaymentRequest, error)) (payments.PaymentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.owned(userID, id)
	if err != nil {
		return payments.PaymentRequest{}, err
	}
	next, err := fn(r, s.opts.Clock.Now())
	if next.SubmissionState != r.SubmissionState {
		s.requests[id] = next
	}
	if err != nil {
		return payments.PaymentRequest{}, err
	}
	return next, nil
}

// user returns the account with counters rolled over. Callers hold mu.
func (s *MemoryService) user(userID string) (User, error) {
	u, ok := s.users[userID]
	if !ok {
		return User{}, apperrors.NotFound("user %s not found", userID)
	}
	u = rollover(u, s.opts.Catalog, s.opts.Clock.Now())
	s.users[userID] = u
	return u, nil
}

func (s *MemoryService) owned(userID, id string) (payments.PaymentRequest, error) {
	r, ok := s.requests[id]
	if !ok || r.UserID != userID {
		return payments.PaymentRequest{}, apperrors.NotFound("payment request %s not found", id)
	}
	return r, nil
}

func (s *MemoryService) active(userID string) *payments.PaymentRequest {
	now := s.opts.Clock.Now()
	for _, r := range s.requests {
		if r.UserID != userID {
			continue
		}
		r = r.WithLazyExpiry(now)
		if r.IsActive() {
			return &r
		}
	}
	return nil
}

var _ Service = (*MemoryService)(nil)
