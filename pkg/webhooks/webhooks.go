package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/chartpay/pkg/async"
	"github.com/platinummonkey/chartpay/pkg/billing"
	"github.com/platinummonkey/chartpay/pkg/observability"
)

// Format selects the body sent to an endpoint.
type Format string

const (
	// FormatJSON posts the event itself, signed when a secret is set.
	FormatJSON Format = "json"
	// FormatSlack posts a Slack incoming-webhook message.
	FormatSlack Format = "slack"
)

const (
	HeaderEvent     = "X-Chartpay-Event"
	HeaderEventID   = "X-Chartpay-Event-ID"
	HeaderDelivery  = "X-Chartpay-Delivery"
	HeaderSignature = "X-Chartpay-Signature"
)

// Endpoint is a receiver of payment request events.
type Endpoint struct {
	URL    string              `json:"url"`
	Secret string              `json:"-"`
	Format Format              `json:"format"`
	Events []billing.EventType `json:"events,omitempty"` // empty means every event
}

func (e Endpoint) wants(t billing.EventType) bool {
	if len(e.Events) == 0 {
		return true
	}
	for _, want := range e.Events {
		if want == t {
			return true
		}
	}
	return false
}

// Config configures a Dispatcher.
type Config struct {
	Endpoints []Endpoint
	Retry     RetryConfig
	Timeout   time.Duration // per attempt, default 10s
	MaxLogs   int
	Client    *http.Client
}

// Dispatcher delivers events to endpoints in the background. It satisfies
// billing.Publisher.
type Dispatcher struct {
	endpoints  []Endpoint
	client     *http.Client
	retry      *RetryPolicy
	deliveries *DeliveryLogStore
	logger     *observability.Logger
	metrics    *observability.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewDispatcher validates the endpoints and returns a running Dispatcher.
func NewDispatcher(cfg Config, logger *observability.Logger, metrics *observability.Metrics) (*Dispatcher, error) {
	endpoints := make([]Endpoint, 0, len(cfg.Endpoints))
	for _, ep := range cfg.Endpoints {
		u, err := url.Parse(ep.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("invalid webhook URL %q", ep.URL)
		}
		switch ep.Format {
		case "":
			ep.Format = FormatJSON
		case FormatJSON, FormatSlack:
		default:
			return nil, fmt.Errorf("unknown webhook format %q for %s", ep.Format, ep.URL)
		}
		endpoints = append(endpoints, ep)
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		endpoints:  endpoints,
		client:     client,
		retry:      NewRetryPolicy(cfg.Retry),
		deliveries: NewDeliveryLogStore(cfg.MaxLogs),
		logger:     logger.WithField("component", "webhooks"),
		metrics:    metrics,
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Deliveries exposes the delivery log.
func (d *Dispatcher) Deliveries() *DeliveryLogStore {
	return d.deliveries
}

// Publish queues event for every interested endpoint and returns without
// waiting for delivery.
func (d *Dispatcher) Publish(ctx context.Context, event billing.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return fmt.Errorf("webhook dispatcher is closed")
	}
	for _, ep := range d.endpoints {
		if !ep.wants(event.Type) {
			continue
		}
		payload, err := encode(ep, event)
		if err != nil {
			return err
		}
		log := DeliveryLog{
			ID:        uuid.NewString(),
			EventID:   event.ID,
			EventType: event.Type,
			URL:       ep.URL,
			Status:    DeliveryStatusPending,
			CreatedAt: time.Now().UTC(),
		}
		d.deliveries.Add(log)

		ep := ep
		d.wg.Add(1)
		async.SafeGoNoError(d.ctx, d.logger, 0, "webhook delivery", func(ctx context.Context) {
			defer d.wg.Done()
			d.deliver(ctx, ep, event, payload, log.ID)
		})
	}
	return nil
}

func encode(ep Endpoint, event billing.Event) ([]byte, error) {
	var body interface{} = event
	if ep.Format == FormatSlack {
		body = FormatSlackMessage(event)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return payload, nil
}

// deliver retries with backoff until success, a final error or Close.
func (d *Dispatcher) deliver(ctx context.Context, ep Endpoint, event billing.Event, payload []byte, logID string) {
	log := d.logger.WithField("event", string(event.Type)).WithField("url", ep.URL)
	for attempt := 1; ; attempt++ {
		start := time.Now()
		code, err := d.send(ctx, ep, event, payload, logID)
		elapsed := time.Since(start)

		if err == nil {
			d.deliveries.Update(logID, func(l *DeliveryLog) {
				now := time.Now().UTC()
				l.Attempts = attempt
				l.Status = DeliveryStatusSuccess
				l.StatusCode = code
				l.ErrorMessage = ""
				l.NextRetryAt = nil
				l.CompletedAt = &now
				l.Duration = elapsed
			})
			d.metrics.WebhookDelivered(string(event.Type), string(DeliveryStatusSuccess))
			log.WithField("attempts", attempt).Debug("webhook delivered")
			return
		}

		if !d.retry.ShouldRetry(attempt, err) {
			d.fail(logID, attempt, code, elapsed, err)
			d.metrics.WebhookDelivered(string(event.Type), string(DeliveryStatusFailed))
			log.WithError(err).WithField("attempts", attempt).Warn("webhook delivery failed")
			return
		}

		delay := d.retry.NextRetryDelay(attempt)
		d.deliveries.Update(logID, func(l *DeliveryLog) {
			next := time.Now().UTC().Add(delay)
			l.Attempts = attempt
			l.Status = DeliveryStatusRetrying
			l.StatusCode = code
			l.ErrorMessage = err.Error()
			l.NextRetryAt = &next
			l.Duration = elapsed
		})
		d.metrics.WebhookDelivered(string(event.Type), string(DeliveryStatusRetrying))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			d.fail(logID, attempt, code, elapsed, fmt.Errorf("dispatcher closed before retry: %w", err))
			return
		case <-timer.C:
		}
	}
}

func (d *Dispatcher) fail(logID string, attempts, code int, elapsed time.Duration, err error) {
	d.deliveries.Update(logID, func(l *DeliveryLog) {
		now := time.Now().UTC()
		l.Attempts = attempts
		l.Status = DeliveryStatusFailed
		l.StatusCode = code
		l.ErrorMessage = err.Error()
		l.NextRetryAt = nil
		l.CompletedAt = &now
		l.Duration = elapsed
	})
}

// send makes one attempt and returns the response status, if any.
func (d *Dispatcher) send(ctx context.Context, ep Endpoint, event billing.Event, payload []byte, deliveryID string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "chartpay-webhooks")
	req.Header.Set(HeaderEvent, string(event.Type))
	req.Header.Set(HeaderEventID, event.ID)
	req.Header.Set(HeaderDelivery, deliveryID)
	if ep.Secret != "" {
		req.Header.Set(HeaderSignature, generateSignature(payload, ep.Secret))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, &statusError{StatusCode: resp.StatusCode}
	}
	return resp.StatusCode, nil
}

// Close waits for in-flight deliveries until ctx ends, then abandons the
// rest. Publish fails afterwards.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

// VerifySignature checks an X-Chartpay-Signature header against payload.
func VerifySignature(payload []byte, signature, secret string) bool {
	expected := generateSignature(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// generateSignature generates HMAC-SHA256 signature
func generateSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
