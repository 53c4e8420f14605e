package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/platinummonkey/chartpay/pkg/observability"
	"github.com/platinummonkey/chartpay/pkg/payments"
)

// EventType names a payment request change.
type EventType string

const (
	EventRequestCreated   EventType = "payment_request.created"
	EventRequestClaimed   EventType = "payment_request.claimed"
	EventRequestCancelled EventType = "payment_request.cancelled"
	EventRequestApproved  EventType = "payment_request.approved"
	EventRequestRejected  EventType = "payment_request.rejected"
	EventRequestsExpired  EventType = "payment_requests.expired"
)

// EventTypes lists every event type in a stable order.
func EventTypes() []EventType {
	return []EventType{
		EventRequestCreated,
		EventRequestClaimed,
		EventRequestCancelled,
		EventRequestApproved,
		EventRequestRejected,
		EventRequestsExpired,
	}
}

// SystemActor is recorded when no authenticated user caused the change.
const SystemActor = "system"

// Event describes one committed change. Request is set for single-request
// events; Count is set for sweeps.
type Event struct {
	ID         string                   `json:"id"`
	Type       EventType                `json:"type"`
	OccurredAt time.Time                `json:"occurred_at"`
	Actor      string                   `json:"actor"`
	Request    *payments.PaymentRequest `json:"payment_request,omitempty"`
	Count      int64                    `json:"count,omitempty"`
}

// Publisher receives events after the change is stored.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, event Event) error

func (f PublisherFunc) Publish(ctx context.Context, event Event) error {
	return f(ctx, event)
}

type multiPublisher []Publisher

// Publishers fans an event out to every non-nil publisher. All of them are
// called; their errors are joined.
func Publishers(pubs ...Publisher) Publisher {
	var m multiPublisher
	for _, p := range pubs {
		if p != nil {
			m = append(m, p)
		}
	}
	return m
}

func (m multiPublisher) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// eventService publishes an Event after each successful payment request
// change of the wrapped Service. Reads pass straight through.
type eventService struct {
	Service
	pub    Publisher
	clock  clockwork.Clock
	logger *observability.Logger
}

// WithEvents wraps svc so payment request changes are published to pub.
// A publish failure is logged and never fails the call: the change has
// already been stored.
func WithEvents(svc Service, pub Publisher, clock clockwork.Clock, logger *observability.Logger) Service {
	if pub == nil {
		return svc
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &eventService{Service: svc, pub: pub, clock: clock, logger: logger}
}

func (s *eventService) CreatePaymentRequest(ctx context.Context, userID, plan string) (payments.PaymentRequest, error) {
	r, err := s.Service.CreatePaymentRequest(ctx, userID, plan)
	if err == nil {
		s.publish(ctx, EventRequestCreated, &r, 0)
	}
	return r, err
}

func (s *eventService) ClaimPaymentRequest(ctx context.Context, userID, id string) (payments.PaymentRequest, error) {
	r, err := s.Service.ClaimPaymentRequest(ctx, userID, id)
	if err == nil {
		s.publish(ctx, EventRequestClaimed, &r, 0)
	}
	return r, err
}

func (s *eventService) CancelPaymentRequest(ctx context.Context, userID, id string) (payments.PaymentRequest, error) {
	r, err := s.Service.CancelPaymentRequest(ctx, userID, id)
	if err == nil {
		s.publish(ctx, EventRequestCancelled, &r, 0)
	}
	return r, err
}

func (s *eventService) ReviewPaymentRequest(ctx context.Context, id string, approve bool, note string) (payments.PaymentRequest, error) {
	r, err := s.Service.ReviewPaymentRequest(ctx, id, approve, note)
	if err != nil {
		return r, err
	}
	typ := EventRequestRejected
	if approve {
		typ = EventRequestApproved
	}
	s.publish(ctx, typ, &r, 0)
	return r, nil
}

func (s *eventService) ExpireStale(ctx context.Context) (int64, error) {
	n, err := s.Service.ExpireStale(ctx)
	if err == nil && n > 0 {
		s.publish(ctx, EventRequestsExpired, nil, n)
	}
	return n, err
}

func (s *eventService) publish(ctx context.Context, typ EventType, r *payments.PaymentRequest, count int64) {
	actor := observability.GetUserID(ctx)
	if actor == "" {
		actor = SystemActor
	}
	event := Event{
		ID:         uuid.NewString(),
		Type:       typ,
		OccurredAt: s.clock.Now().UTC(),
		Actor:      actor,
		Request:    r,
		Count:      count,
	}
	if err := s.pub.Publish(ctx, event); err != nil {
		log := s.logger.WithError(err).WithField("event", string(typ))
		if r != nil {
			log = log.WithField("payment_request_id", r.ID)
		}
		log.Warn("failed to publish payment request event")
	}
}
