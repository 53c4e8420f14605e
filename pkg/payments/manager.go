package payments

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/chartpay/pkg/apperrors"
	"github.com/platinummonkey/chartpay/pkg/expiry"
	"github.com/platinummonkey/chartpay/pkg/observability"
	"github.com/platinummonkey/chartpay/pkg/plans"
)

// ManagerConfig wires a Manager.
type ManagerConfig struct {
	UserID  string
	Backend Backend
	Catalog *plans.Catalog
	Store   Store
	Clock   clockwork.Clock
	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// Manager owns the single active payment request of one user.
type Manager struct {
	userID  string
	backend Backend
	catalog *plans.Catalog
	store   Store
	clock   clockwork.Clock
	logger  *observability.Logger
	metrics *observability.Metrics

	initiates  singleflight.Group
	reconciles singleflight.Group
	mu         sync.Mutex
}

// NewManager creates a Manager. Store defaults to an in-memory cache and
// Clock to the real clock.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.UserID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if cfg.Backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("plan catalog is required")
	}
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNopLogger()
	}
	return &Manager{
		userID:  cfg.UserID,
		backend: cfg.Backend,
		catalog: cfg.Catalog,
		store:   cfg.Store,
		clock:   cfg.Clock,
		logger:  cfg.Logger.WithField("user_id", cfg.UserID),
		metrics: cfg.Metrics,
	}, nil
}

// Initiate returns the user's active request, creating one for plan only
// when none exists. Concurrent calls share one round trip.
func (m *Manager) Initiate(ctx context.Context, plan string) (PaymentRequest, error) {
	if _, err := m.catalog.Get(plan); err != nil {
		m.metrics.PaymentOp("initiate", "invalid_plan")
		return PaymentRequest{}, err
	}

	v, err, _ := m.initiates.Do(m.userID, func() (interface{}, error) {
		return m.initiate(ctx, plan)
	})
	if err != nil {
		m.metrics.PaymentOp("initiate", string(apperrors.CodeOf(err)))
		return PaymentRequest{}, err
	}
	return v.(PaymentRequest), nil
}

func (m *Manager) initiate(ctx context.Context, plan string) (PaymentRequest, error) {
	cur, err := m.Active(ctx)
	if err != nil {
		return PaymentRequest{}, err
	}
	if cur != nil && cur.IsActive() {
		m.metrics.PaymentOp("initiate", "existing")
		return *cur, nil
	}

	remote, err := m.backend.GetActivePaymentRequest(ctx)
	if err != nil {
		return PaymentRequest{}, fmt.Errorf("failed to fetch active payment request: %w", err)
	}
	if r, ok := m.adoptActive(remote); ok {
		if err := m.save(ctx, r); err != nil {
			return PaymentRequest{}, err
		}
		m.metrics.PaymentOp("initiate", "existing")
		return r, nil
	}

	created, err := m.backend.CreatePaymentRequest(ctx, plan)
	if errors.Is(err, apperrors.ErrConflict) {
		// Another session created one first.
		remote, ferr := m.backend.GetActivePaymentRequest(ctx)
		if ferr != nil {
			return PaymentRequest{}, fmt.Errorf("failed to fetch active payment request after conflict: %w", ferr)
		}
		r, ok := m.adoptActive(remote)
		if !ok {
			return PaymentRequest{}, err
		}
		if err := m.save(ctx, r); err != nil {
			return PaymentRequest{}, err
		}
		m.metrics.PaymentOp("initiate", "existing")
		return r, nil
	}
	if err != nil {
		return PaymentRequest{}, fmt.Errorf("failed to create payment request: %w", err)
	}
	if err := created.Validate(); err != nil {
		return PaymentRequest{}, err
	}
	if err := m.save(ctx, created); err != nil {
		return PaymentRequest{}, err
	}

	m.logger.WithFields(map[string]interface{}{
		"request_id": created.ID,
		"reference":  created.Reference,
		"plan":       created.Plan,
		"amount":     created.Amount,
	}).Info("payment request created")
	m.metrics.PaymentOp("initiate", "created")
	return created, nil
}

func (m *Manager) adoptActive(remote *PaymentRequest) (PaymentRequest, bool) {
	if remote == nil {
		return PaymentRequest{}, false
	}
	if err := remote.Validate(); err != nil {
		m.logger.WithError(err).Warn("ignoring invalid active payment request")
		return PaymentRequest{}, false
	}
	r := remote.WithLazyExpiry(m.clock.Now())
	return r, r.IsActive()
}

// Active returns the cached request with lazy expiry applied, or nil.
func (m *Manager) Active(ctx context.Context) (*PaymentRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, err := m.store.Load(ctx, m.userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cached payment request: %w", err)
	}
	if cur == nil {
		return nil, nil
	}
	if cur.PastExpiry(m.clock.Now()) {
		expired := cur.WithLazyExpiry(m.clock.Now())
		if err := m.store.Save(ctx, m.userID, expired); err != nil {
			return nil, fmt.Errorf("failed to save expired payment request: %w", err)
		}
		m.logger.WithField("request_id", cur.ID).Info("payment request expired locally")
		cur = &expired
	}
	return cur, nil
}

// ClaimPaid records that the user says the transfer was made. Only a pending
// request can be claimed.
func (m *Manager) ClaimPaid(ctx context.Context, id string) (PaymentRequest, error) {
	cur, err := m.lookup(ctx, id)
	if err != nil {
		return PaymentRequest{}, err
	}
	if !cur.CanClaim() {
		m.metrics.PaymentOp("claim", "invalid_state")
		return PaymentRequest{}, apperrors.State("cannot claim payment request in state %s", cur.SubmissionState)
	}

	updated, err := m.backend.MarkClaimedPaid(ctx, id)
	if err != nil {
		m.metrics.PaymentOp("claim", string(apperrors.CodeOf(err)))
		return PaymentRequest{}, fmt.Errorf("failed to mark payment request as paid: %w", err)
	}
	if err := updated.Validate(); err != nil {
		return PaymentRequest{}, err
	}
	if err := m.saveIfCurrent(ctx, updated); err != nil {
		return PaymentRequest{}, err
	}

	m.logger.WithField("request_id", id).Info("payment request claimed as paid")
	m.metrics.PaymentOp("claim", "ok")
	return updated, nil
}

// Cancel abandons a pending request and drops it from the cache.
func (m *Manager) Cancel(ctx context.Context, id string) (PaymentRequest, error) {
	cur, err := m.lookup(ctx, id)
	if err != nil {
		return PaymentRequest{}, err
	}
	if !cur.CanCancel() {
		m.metrics.PaymentOp("cancel", "invalid_state")
		return PaymentRequest{}, apperrors.State("cannot cancel payment request in state %s", cur.SubmissionState)
	}

	cancelled, err := m.backend.CancelPaymentRequest(ctx, id)
	if err != nil {
		m.metrics.PaymentOp("cancel", string(apperrors.CodeOf(err)))
		return PaymentRequest{}, fmt.Errorf("failed to cancel payment request: %w", err)
	}
	if _, err := m.clearIfCurrent(ctx, id); err != nil {
		return PaymentRequest{}, err
	}

	m.logger.WithField("request_id", id).Info("payment request cancelled")
	m.metrics.PaymentOp("cancel", "ok")
	return cancelled, nil
}

// FetchStatus returns the backend's view of the request without touching the
// cache.
func (m *Manager) FetchStatus(ctx context.Context, id string) (PaymentRequest, error) {
	r, err := m.backend.GetPaymentStatus(ctx, id)
	if err != nil {
		return PaymentRequest{}, fmt.Errorf("failed to fetch payment status: %w", err)
	}
	if err := r.Validate(); err != nil {
		return PaymentRequest{}, err
	}
	return r, nil
}

// RemainingTime is the countdown for the cached request.
func (m *Manager) RemainingTime(ctx context.Context) (expiry.Remaining, error) {
	cur, err := m.Active(ctx)
	if err != nil {
		return expiry.Remaining{}, err
	}
	if cur == nil {
		return expiry.Remaining{}, apperrors.NotFound("no active payment request")
	}
	return expiry.Of(cur.ExpiresAt, m.clock.Now()), nil
}

// Acknowledge dismisses a terminal request the user has seen.
func (m *Manager) Acknowledge(ctx context.Context, id string) error {
	cur, err := m.Active(ctx)
	if err != nil {
		return err
	}
	if cur == nil || cur.ID != id {
		return apperrors.NotFound("payment request %s is not cached", id)
	}
	if cur.IsActive() {
		return apperrors.State("payment request %s is still %s", id, cur.SubmissionState)
	}
	_, err = m.clearIfCurrent(ctx, id)
	return err
}

// Forget drops any cached request.
func (m *Manager) Forget(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Delete(ctx, m.userID); err != nil {
		return fmt.Errorf("failed to clear cached payment request: %w", err)
	}
	return nil
}

// lookup resolves id from the cache, falling back to the backend.
func (m *Manager) lookup(ctx context.Context, id string) (PaymentRequest, error) {
	if id == "" {
		return PaymentRequest{}, apperrors.Validation("payment request id is required")
	}
	cur, err := m.Active(ctx)
	if err != nil {
		return PaymentRequest{}, err
	}
	if cur != nil && cur.ID == id {
		return *cur, nil
	}
	r, err := m.FetchStatus(ctx, id)
	if err != nil {
		return PaymentRequest{}, err
	}
	return r.WithLazyExpiry(m.clock.Now()), nil
}

func (m *Manager) save(ctx context.Context, r PaymentRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Save(ctx, m.userID, r); err != nil {
		return fmt.Errorf("failed to cache payment request: %w", err)
	}
	return nil
}

// saveIfCurrent updates the cache when r is the cached request or nothing is
// cached.
func (m *Manager) saveIfCurrent(ctx context.Context, r PaymentRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, err := m.store.Load(ctx, m.userID)
	if err != nil {
		return fmt.Errorf("failed to load cached payment request: %w", err)
	}
	if cur != nil && cur.ID != r.ID {
		return nil
	}
	if err := m.store.Save(ctx, m.userID, r); err != nil {
		return fmt.Errorf("failed to cache payment request: %w", err)
	}
	return nil
}

// clearIfCurrent drops the cached request when it is id and reports whether
// anything was removed.
func (m *Manager) clearIfCurrent(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, err := m.store.Load(ctx, m.userID)
	if err != nil {
		return false, fmt.Errorf("failed to load cached payment request: %w", err)
	}
	if cur == nil || cur.ID != id {
		return false, nil
	}
	if err := m.store.Delete(ctx, m.userID); err != nil {
		return false, fmt.Errorf("failed to clear cached payment request: %w", err)
	}
	return true, nil
}
