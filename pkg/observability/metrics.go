package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing, so components can be built without a registry.
type Metrics struct {
	// HTTP server metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Backend client metrics
	BackendCallsTotal   *prometheus.CounterVec
	BackendCallDuration *prometheus.HistogramVec

	// Payment request lifecycle
	PaymentRequestOpsTotal *prometheus.CounterVec
	ReconcileTotal         *prometheus.CounterVec
	NotificationsTotal     *prometheus.CounterVec

	// Quota
	QuotaDecisionsTotal   *prometheus.CounterVec
	AnalysesConsumedTotal *prometheus.CounterVec

	// Review and sweeper (backend)
	PaymentReviewsTotal *prometheus.CounterVec
	ExpiredSweptTotal   prometheus.Counter

	// Outbound event delivery
	WebhookDeliveriesTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chartpay_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chartpay_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		BackendCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chartpay_backend_calls_total",
				Help: "Total number of calls made to the payments backend",
			},
			[]string{"operation", "code"},
		),
		BackendCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chartpay_backend_call_duration_seconds",
				Help:    "Backend call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		PaymentRequestOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chartpay_payment_request_operations_total",
				Help: "Payment request operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		ReconcileTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chartpay_reconcile_total",
				Help: "Reconciliation passes by result",
			},
			[]string{"result"},
		),
		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chartpay_notifications_total",
				Help: "Payment outcome notifications emitted",
			},
			[]string{"kind"},
		),
		QuotaDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chartpay_quota_decisions_total",
				Help: "Quota gate decisions by limit type",
			},
			[]string{"plan", "limit_type"},
		),
		AnalysesConsumedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chartpay_analyses_consumed_total",
				Help: "Billable analyses recorded by the backend",
			},
			[]string{"plan", "outcome"},
		),
		PaymentReviewsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chartpay_payment_reviews_total",
				Help: "Admin review decisions",
			},
			[]string{"decision"},
		),
		ExpiredSweptTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chartpay_payment_requests_expired_total",
				Help: "Pending payment requests expired by the sweeper",
			},
		),
		WebhookDeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chartpay_webhook_deliveries_total",
				Help: "Webhook delivery attempts by event and status",
			},
			[]string{"event", "status"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.BackendCallsTotal,
		m.BackendCallDuration,
		m.PaymentRequestOpsTotal,
		m.ReconcileTotal,
		m.NotificationsTotal,
		m.QuotaDecisionsTotal,
		m.AnalysesConsumedTotal,
		m.PaymentReviewsTotal,
		m.ExpiredSweptTotal,
		m.WebhookDeliveriesTotal,
	)

	return m
}

// PaymentOp records a payment request operation.
func (m *Metrics) PaymentOp(operation, outcome string) {
	if m == nil {
		return
	}
	m.PaymentRequestOpsTotal.WithLabelValues(operation, outcome).Inc()
}

// Reconciled records a reconciliation pass.
func (m *Metrics) Reconciled(result string) {
	if m == nil {
		return
	}
	m.ReconcileTotal.WithLabelValues(result).Inc()
}

// Notified records an emitted notification.
func (m *Metrics) Notified(kind string) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(kind).Inc()
}

// QuotaDecision records a quota gate decision.
func (m *Metrics) QuotaDecision(plan, limitType string) {
	if m == nil {
		return
	}
	m.QuotaDecisionsTotal.WithLabelValues(plan, limitType).Inc()
}

// AnalysisConsumed records a server-side consume attempt.
func (m *Metrics) AnalysisConsumed(plan, outcome string) {
	if m == nil {
		return
	}
	m.AnalysesConsumedTotal.WithLabelValues(plan, outcome).Inc()
}

// Reviewed records an admin review decision.
func (m *Metrics) Reviewed(decision string) {
	if m == nil {
		return
	}
	m.PaymentReviewsTotal.WithLabelValues(decision).Inc()
}

// Swept records requests expired by the sweeper.
func (m *Metrics) Swept(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.ExpiredSweptTotal.Add(float64(n))
}

// WebhookDelivered records one webhook delivery attempt.
func (m *Metrics) WebhookDelivered(event, status string) {
	if m == nil {
		return
	}
	m.WebhookDeliveriesTotal.WithLabelValues(event, status).Inc()
}

// BackendCall records one outbound call.
func (m *Metrics) BackendCall(operation, code string, d time.Duration) {
	if m == nil {
		return
	}
	m.BackendCallsTotal.WithLabelValues(operation, code).Inc()
	m.BackendCallDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// routeLabel prefers the mux route template so ids do not explode cardinality.
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return r.URL.Path
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if metrics == nil {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			path := routeLabel(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format.
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
