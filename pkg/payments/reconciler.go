package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/platinummonkey/chartpay/pkg/apperrors"
	"github.com/platinummonkey/chartpay/pkg/observability"
)

// Outcome summarises one reconciliation pass.
type Outcome string

const (
	OutcomeNoop           Outcome = "noop"
	OutcomePending        Outcome = "pending"
	OutcomeAwaitingReview Outcome = "awaiting_review"
	OutcomeApproved       Outcome = "approved"
	OutcomeRejected       Outcome = "rejected"
	OutcomeExpired        Outcome = "expired"
	OutcomeCancelled      Outcome = "cancelled"
	OutcomeStale          Outcome = "stale"
)

// Result is what Reconcile observed. Request is nil when nothing is cached.
type Result struct {
	Outcome  Outcome
	Request  *PaymentRequest
	Notified bool
}

// ReconcilerConfig wires a Reconciler.
type ReconcilerConfig struct {
	Manager   *Manager
	Refresher SubscriptionRefresher
	Notifier  Notifier
	Logger    *observability.Logger
	Metrics   *observability.Metrics
}

// Reconciler syncs the cached request with the backend on demand and applies
// the side effects of terminal outcomes.
type Reconciler struct {
	manager   *Manager
	refresher SubscriptionRefresher
	notifier  Notifier
	logger    *observability.Logger
	metrics   *observability.Metrics
}

// NewReconciler creates a Reconciler.
func NewReconciler(cfg ReconcilerConfig) (*Reconciler, error) {
	if cfg.Manager == nil {
		return nil, fmt.Errorf("manager is required")
	}
	if cfg.Refresher == nil {
		return nil, fmt.Errorf("subscription refresher is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNopLogger()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = LogNotifier{Logger: cfg.Logger}
	}
	return &Reconciler{
		manager:   cfg.Manager,
		refresher: cfg.Refresher,
		notifier:  cfg.Notifier,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}, nil
}

// Reconcile fetches the backend state of the cached request and updates the
// cache. The backend wins over the local clock. On a transport failure the
// local view is returned alongside the error. Overlapping calls for one
// manager share a single pass.
func (r *Reconciler) Reconcile(ctx context.Context) (Result, error) {
	v, err, _ := r.manager.reconciles.Do(r.manager.userID, func() (interface{}, error) {
		return r.reconcile(ctx)
	})
	res, _ := v.(Result)
	return res, err
}

func (r *Reconciler) reconcile(ctx context.Context) (Result, error) {
	m := r.manager
	cached, err := m.Active(ctx)
	if err != nil {
		return Result{}, err
	}
	if cached == nil {
		r.metrics.Reconciled(string(OutcomeNoop))
		return Result{Outcome: OutcomeNoop}, nil
	}

	server, err := m.backend.GetPaymentStatus(ctx, cached.ID)
	if err == nil {
		err = server.Validate()
	}
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			if _, cerr := m.clearIfCurrent(ctx, cached.ID); cerr != nil {
				return Result{}, cerr
			}
			r.logger.WithField("request_id", cached.ID).Warn("cached payment request no longer exists")
			r.metrics.Reconciled(string(OutcomeStale))
			return Result{Outcome: OutcomeStale}, nil
		}
		r.metrics.Reconciled("error")
		return Result{Outcome: outcomeOf(*cached), Request: cached}, fmt.Errorf("failed to reconcile payment request: %w", err)
	}
	server = server.WithLazyExpiry(m.clock.Now())

	res, err := r.apply(ctx, *cached, server)
	if err != nil {
		r.metrics.Reconciled("error")
		return res, err
	}
	r.metrics.Reconciled(string(res.Outcome))
	return res, nil
}

func (r *Reconciler) apply(ctx context.Context, cached, server PaymentRequest) (Result, error) {
	m := r.manager
	log := r.logger.WithFields(map[string]interface{}{
		"request_id": server.ID,
		"submission": server.SubmissionState,
		"review":     server.ReviewState,
	})

	if server.ReviewState == ReviewApproved {
		// The cache is cleared only once the subscription is refreshed, so a
		// failed refresh is retried on the next pass.
		if err := r.refresher.RefreshSubscription(ctx); err != nil {
			return Result{Outcome: outcomeOf(cached), Request: &cached}, fmt.Errorf("failed to refresh subscription: %w", err)
		}
		removed, err := m.clearIfCurrent(ctx, server.ID)
		if err != nil {
			return Result{}, err
		}
		if !removed {
			log.Debug("approved request already cleared")
			return Result{Outcome: OutcomeApproved, Request: &server}, nil
		}
		r.notify(ctx, NotifyApproved, server)
		log.Info("payment request approved")
		return Result{Outcome: OutcomeApproved, Request: &server, Notified: true}, nil
	}

	server.NotifiedAt = cached.NotifiedAt
	res := Result{Outcome: outcomeOf(server)}
	var kind NotificationKind
	switch res.Outcome {
	case OutcomeRejected:
		kind = NotifyRejected
	case OutcomeCancelled:
		kind = NotifyCancelled
	case OutcomeExpired:
		kind = NotifyExpired
	}
	if kind != "" && server.NotifiedAt == nil {
		now := m.clock.Now().UTC()
		server.NotifiedAt = &now
	} else {
		kind = ""
	}

	if err := m.saveIfCurrent(ctx, server); err != nil {
		return Result{}, err
	}
	res.Request = &server
	if kind != "" {
		r.notify(ctx, kind, server)
		res.Notified = true
		log.Infof("payment request %s", kind)
	}
	return res, nil
}

func (r *Reconciler) notify(ctx context.Context, kind NotificationKind, req PaymentRequest) {
	r.notifier.Notify(ctx, notificationFor(kind, req))
	r.metrics.Notified(string(kind))
}

func outcomeOf(req PaymentRequest) Outcome {
	switch {
	case req.ReviewState == ReviewApproved:
		return OutcomeApproved
	case req.ReviewState == ReviewRejected:
		return OutcomeRejected
	case req.SubmissionState == SubmissionCancelled:
		return OutcomeCancelled
	case req.SubmissionState == SubmissionExpired:
		return OutcomeExpired
	case req.SubmissionState == SubmissionClaimedPaid:
		return OutcomeAwaitingReview
	default:
		return OutcomePending
	}
}
