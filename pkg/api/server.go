package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/chartpay/pkg/billing"
	"github.com/platinummonkey/chartpay/pkg/httputil"
	"github.com/platinummonkey/chartpay/pkg/observability"
	"github.com/platinummonkey/chartpay/pkg/plans"
	"github.com/platinummonkey/chartpay/pkg/webhooks"
)

// DefaultMaxBodyBytes caps request bodies.
const DefaultMaxBodyBytes = 1 << 20

// Config wires a Server.
type Config struct {
	Service     billing.Service
	Catalog     *plans.Catalog
	Tokens      *TokenStore
	AdminEmails []string

	// Audit and Deliveries enable the admin read routes when set.
	Audit      AuditTrail
	Deliveries *webhooks.DeliveryLogStore

	Health   *observability.HealthChecker
	Registry *prometheus.Registry
	Metrics  *observability.Metrics
	Logger   *observability.Logger

	MaxBodyBytes int64
}

// Server is the reference payments backend HTTP API.
type Server struct {
	service billing.Service
	catalog *plans.Catalog
	tokens  *TokenStore
	admins  map[string]bool
	logger  *observability.Logger

	audit      AuditTrail
	deliveries *webhooks.DeliveryLogStore

	router  *mux.Router
	handler http.Handler
}

// NewServer creates a Server with all routes registered.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Service == nil {
		return nil, fmt.Errorf("billing service is required")
	}
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("plan catalog is required")
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNopLogger()
	}
	if cfg.Health == nil {
		cfg.Health = observability.NewHealthChecker("")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	s := &Server{
		service: cfg.Service,
		catalog: cfg.Catalog,
		tokens:  cfg.Tokens,
		admins:  make(map[string]bool, len(cfg.AdminEmails)),
		logger:  cfg.Logger,
		router:  mux.NewRouter(),

		audit:      cfg.Audit,
		deliveries: cfg.Deliveries,
	}
	for _, email := range cfg.AdminEmails {
		if email = strings.TrimSpace(strings.ToLower(email)); email != "" {
			s.admins[email] = true
		}
	}

	s.router.Use(observability.HTTPMetricsMiddleware(cfg.Metrics))
	s.setupRoutes(cfg)

	s.handler = otelhttp.NewHandler(httputil.Chain(
		httputil.RequestIDMiddleware(cfg.Logger),
		httputil.LoggingMiddleware,
		httputil.RecoveryMiddleware,
		httputil.ContentTypeMiddleware,
		httputil.MaxBytesMiddleware(cfg.MaxBodyBytes),
	)(s.router), "chartpay-server")
	return s, nil
}

func (s *Server) setupRoutes(cfg Config) {
	r := s.router

	r.HandleFunc("/health", cfg.Health.Readiness).Methods(http.MethodGet)
	r.HandleFunc("/health/live", cfg.Health.Liveness).Methods(http.MethodGet)
	r.HandleFunc("/health/ready", cfg.Health.Readiness).Methods(http.MethodGet)
	if cfg.Registry != nil {
		r.Handle("/metrics", observability.MetricsHandler(cfg.Registry)).Methods(http.MethodGet)
	}

	r.HandleFunc("/v1/sessions", s.login).Methods(http.MethodPost)
	r.HandleFunc("/v1/plans", s.listPlans).Methods(http.MethodGet)

	r.Handle("/v1/sessions", s.authed(s.logout)).Methods(http.MethodDelete)
	r.Handle("/v1/me", s.authed(s.getProfile)).Methods(http.MethodGet)
	r.Handle("/v1/analyses", s.authed(s.consumeAnalysis)).Methods(http.MethodPost)

	// "active" must be registered before the {id} routes.
	r.Handle("/v1/payment-requests", s.authed(s.createPaymentRequest)).Methods(http.MethodPost)
	r.Handle("/v1/payment-requests/active", s.authed(s.getActivePaymentRequest)).Methods(http.MethodGet)
	r.Handle("/v1/payment-requests/{id}", s.authed(s.getPaymentRequest)).Methods(http.MethodGet)
	r.Handle("/v1/payment-requests/{id}/claim", s.authed(s.claimPaymentRequest)).Methods(http.MethodPost)
	r.Handle("/v1/payment-requests/{id}/cancel", s.authed(s.cancelPaymentRequest)).Methods(http.MethodPost)

	r.Handle("/v1/admin/payment-requests/{id}/approve", s.admin(s.reviewPaymentRequest(true))).Methods(http.MethodPost)
	r.Handle("/v1/admin/payment-requests/{id}/reject", s.admin(s.reviewPaymentRequest(false))).Methods(http.MethodPost)
	if s.audit != nil {
		r.Handle("/v1/admin/events", s.admin(s.listEvents)).Methods(http.MethodGet)
	}
	if s.deliveries != nil {
		r.Handle("/v1/admin/webhook-deliveries", s.admin(s.listDeliveries)).Methods(http.MethodGet)
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Router exposes the route table.
func (s *Server) Router() *mux.Router {
	return s.router
}
