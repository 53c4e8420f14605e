// Package session ties the payment and quota components to one logged-in user.
//
// A Session is created at login, opened once, and closed at logout. Nothing
// in it is global, so two users in one process never share state.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/chartpay/pkg/account"
	"github.com/platinummonkey/chartpay/pkg/apperrors"
	"github.com/platinummonkey/chartpay/pkg/expiry"
	"github.com/platinummonkey/chartpay/pkg/observability"
	"github.com/platinummonkey/chartpay/pkg/payments"
	"github.com/platinummonkey/chartpay/pkg/plans"
	"github.com/platinummonkey/chartpay/pkg/quota"
)

// Deps are the collaborators a Session is built from. backend.Client
// satisfies Backend, Plans, Profiles and Consumer.
type Deps struct {
	Backend  payments.Backend
	Plans    plans.Fetcher
	Profiles account.ProfileFetcher
	Consumer quota.Consumer
	Store    payments.Store
	Notifier payments.Notifier
	Clock    clockwork.Clock
	Logger   *observability.Logger
	Metrics  *observability.Metrics
}

// Session is the session-scoped state of one user.
type Session struct {
	userID     string
	catalog    *plans.Catalog
	gate       *quota.Gate
	manager    *payments.Manager
	reconciler *payments.Reconciler
	profiles   account.ProfileFetcher
	consumer   quota.Consumer
	logger     *observability.Logger

	mu      sync.RWMutex
	profile account.Profile
	opened  bool
	closed  bool
}

// ErrClosed is returned by every call on a closed session.
var ErrClosed = apperrors.Unauthorized("session is closed")

// New builds a Session for userID. Call Open before use.
func New(userID string, deps Deps) (*Session, error) {
	if deps.Backend == nil || deps.Plans == nil || deps.Profiles == nil || deps.Consumer == nil {
		return nil, fmt.Errorf("session requires backend, plans, profiles and consumer")
	}
	if deps.Logger == nil {
		deps.Logger = observability.NewNopLogger()
	}
	logger := deps.Logger.WithField("user_id", userID)

	catalog := plans.NewCatalog(deps.Plans, logger)
	manager, err := payments.NewManager(payments.ManagerConfig{
		UserID:  userID,
		Backend: deps.Backend,
		Catalog: catalog,
		Store:   deps.Store,
		Clock:   deps.Clock,
		Logger:  logger,
		Metrics: deps.Metrics,
	})
	if err != nil {
		return nil, err
	}

	s := &Session{
		userID:   userID,
		catalog:  catalog,
		gate:     quota.NewGate(catalog, deps.Metrics, logger),
		manager:  manager,
		profiles: deps.Profiles,
		consumer: deps.Consumer,
		logger:   logger,
	}
	s.reconciler, err = payments.NewReconciler(payments.ReconcilerConfig{
		Manager:   manager,
		Refresher: s,
		Notifier:  deps.Notifier,
		Logger:    logger,
		Metrics:   deps.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Open loads the plan catalog and the profile in parallel.
func (s *Session) Open(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}
	var profile account.Profile
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.catalog.Load(gctx)
	})
	g.Go(func() error {
		p, err := s.profiles.FetchProfile(gctx)
		if err != nil {
			return fmt.Errorf("failed to fetch profile: %w", err)
		}
		profile = p
		return nil
	})
	if err := g.Wait(); err != nil {
		return s.Handle(ctx, err)
	}

	s.mu.Lock()
	s.profile = profile
	s.opened = true
	s.mu.Unlock()
	s.logger.WithField("plan", profile.Subscription.Plan).Info("session opened")
	return nil
}

// UserID returns the session owner.
func (s *Session) UserID() string { return s.userID }

// Profile returns the last fetched profile.
func (s *Session) Profile() account.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

// Plans returns the plan catalog ordered by rank.
func (s *Session) Plans() []plans.Plan {
	return s.catalog.Plans()
}

// Catalog exposes the session's plan catalog.
func (s *Session) Catalog() *plans.Catalog { return s.catalog }

// Payments exposes the payment request manager.
func (s *Session) Payments() *payments.Manager { return s.manager }

// CheckQuota evaluates the profile's counters against the current plan.
func (s *Session) CheckQuota(ctx context.Context) (quota.Decision, error) {
	if err := s.check(); err != nil {
		return quota.Decision{}, err
	}
	s.mu.RLock()
	p, opened := s.profile, s.opened
	s.mu.RUnlock()
	if !opened {
		return quota.Decision{}, apperrors.State("session is not open")
	}
	return s.gate.Check(p.Subscription.Plan, p.Counters())
}

// Analyze consumes one billable analysis. A local or backend quota rejection
// is returned as a Decision with Allowed false and a nil error.
func (s *Session) Analyze(ctx context.Context) (quota.Decision, error) {
	d, err := s.CheckQuota(ctx)
	if err != nil || !d.Allowed {
		return d, err
	}

	counters, err := s.consumer.ConsumeAnalysis(ctx)
	if err != nil {
		if rejected, ok := s.gate.FromError(s.Profile().Subscription.Plan, err); ok {
			return rejected, nil
		}
		return quota.Decision{}, s.Handle(ctx, err)
	}

	s.mu.Lock()
	s.profile = s.profile.WithCounters(counters)
	s.mu.Unlock()
	return d, nil
}

// Upgrade starts (or resumes) a payment request for plan.
func (s *Session) Upgrade(ctx context.Context, plan string) (payments.PaymentRequest, error) {
	if err := s.check(); err != nil {
		return payments.PaymentRequest{}, err
	}
	r, err := s.manager.Initiate(ctx, plan)
	return r, s.Handle(ctx, err)
}

// ClaimPaid marks the active request as paid by the user.
func (s *Session) ClaimPaid(ctx context.Context, id string) (payments.PaymentRequest, error) {
	if err := s.check(); err != nil {
		return payments.PaymentRequest{}, err
	}
	r, err := s.manager.ClaimPaid(ctx, id)
	return r, s.Handle(ctx, err)
}

// Cancel abandons a pending request.
func (s *Session) Cancel(ctx context.Context, id string) (payments.PaymentRequest, error) {
	if err := s.check(); err != nil {
		return payments.PaymentRequest{}, err
	}
	r, err := s.manager.Cancel(ctx, id)
	return r, s.Handle(ctx, err)
}

// Remaining is the countdown of the active request.
func (s *Session) Remaining(ctx context.Context) (expiry.Remaining, error) {
	if err := s.check(); err != nil {
		return expiry.Remaining{}, err
	}
	return s.manager.RemainingTime(ctx)
}

// Refresh reconciles the cached request with the backend.
func (s *Session) Refresh(ctx context.Context) (payments.Result, error) {
	if err := s.check(); err != nil {
		return payments.Result{}, err
	}
	res, err := s.reconciler.Reconcile(ctx)
	return res, s.Handle(ctx, err)
}

// RefreshSubscription reloads the profile. It satisfies
// payments.SubscriptionRefresher.
func (s *Session) RefreshSubscription(ctx context.Context) error {
	p, err := s.profiles.FetchProfile(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh profile: %w", err)
	}
	s.mu.Lock()
	s.profile = p
	s.mu.Unlock()
	s.logger.WithField("plan", p.Subscription.Plan).Info("subscription refreshed")
	return nil
}

// Handle tears the session down on an auth error and returns err unchanged.
func (s *Session) Handle(ctx context.Context, err error) error {
	if err != nil && errors.Is(err, apperrors.ErrAuth) {
		s.logger.WithError(err).Warn("authentication failed, closing session")
		if cerr := s.Close(ctx); cerr != nil {
			s.logger.WithError(cerr).Warn("failed to close session")
		}
	}
	return err
}

// Close destroys the session state, including the cached payment request.
// The backend still has the request and a later Upgrade picks it up again.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.profile = account.Profile{}
	s.mu.Unlock()

	if err := s.manager.Forget(ctx); err != nil {
		return err
	}
	s.logger.Info("session closed")
	return nil
}

// Closed reports whether Close has run.
func (s *Session) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *Session) check() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}
