package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/platinummonkey/chartpay/pkg/audit"
	"github.com/platinummonkey/chartpay/pkg/billing"
	"github.com/platinummonkey/chartpay/pkg/httputil"
	"github.com/platinummonkey/chartpay/pkg/webhooks"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// AuditTrail reads back recorded payment request events.
type AuditTrail interface {
	Recent(ctx context.Context, q audit.Query) ([]billing.Event, error)
}

// EventsResponse is the body of GET /v1/admin/events.
type EventsResponse struct {
	Events []billing.Event `json:"events"`
}

// DeliveriesResponse is the body of GET /v1/admin/webhook-deliveries.
type DeliveriesResponse struct {
	Deliveries []webhooks.DeliveryLog `json:"deliveries"`
	Stats      webhooks.DeliveryStats `json:"stats"`
}

func parseLimit(r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	if n > maxListLimit {
		n = maxListLimit
	}
	return n, true
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r)
	if !ok {
		httputil.WriteBadRequest(w, "limit must be a positive integer")
		return
	}
	q := r.URL.Query()
	events, err := s.audit.Recent(r.Context(), audit.Query{
		Limit:     limit,
		RequestID: q.Get("request_id"),
		Type:      billing.EventType(q.Get("type")),
	})
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if events == nil {
		events = []billing.Event{}
	}
	httputil.WriteSuccess(w, EventsResponse{Events: events})
}

func (s *Server) listDeliveries(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r)
	if !ok {
		httputil.WriteBadRequest(w, "limit must be a positive integer")
		return
	}
	httputil.WriteSuccess(w, DeliveriesResponse{
		Deliveries: s.deliveries.Recent(limit),
		Stats:      s.deliveries.Stats(),
	})
}
