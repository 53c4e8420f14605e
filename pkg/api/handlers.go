package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/platinummonkey/chartpay/pkg/apperrors"
	"github.com/platinummonkey/chartpay/pkg/backend"
	"github.com/platinummonkey/chartpay/pkg/httputil"
	"github.com/platinummonkey/chartpay/pkg/observability"
)

type principalKey struct{}

// PrincipalFrom returns the authenticated caller stored on ctx.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// authed resolves the bearer token and rejects the request with 401 when it
// is missing or no longer live.
func (s *Server) authed(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			httputil.WriteUnauthorized(w, "missing bearer token")
			return
		}
		p, ok := s.tokens.Lookup(token)
		if !ok {
			httputil.WriteUnauthorized(w, "token expired or revoked")
			return
		}

		ctx := context.WithValue(r.Context(), principalKey{}, p)
		ctx = observability.WithUserID(ctx, p.UserID)
		ctx = observability.WithLogger(ctx, observability.FromContext(ctx).WithField("user_id", p.UserID))
		next(w, r.WithContext(ctx))
	})
}

// admin behaves like authed and additionally hides the route from
// non-admin callers.
func (s *Server) admin(next http.HandlerFunc) http.Handler {
	return s.authed(func(w http.ResponseWriter, r *http.Request) {
		if p, _ := PrincipalFrom(r.Context()); !p.Admin {
			httputil.WriteError(w, r, apperrors.NotFound("route not found"))
			return
		}
		next(w, r)
	})
}

func principal(r *http.Request) Principal {
	p, _ := PrincipalFrom(r.Context())
	return p
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req backend.LoginBody
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, strings.TrimSpace(req.Email), "email") {
		return
	}

	user, err := s.service.EnsureUser(r.Context(), req.Email)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	token, err := s.tokens.Issue(Principal{
		UserID: user.ID,
		Email:  user.Email,
		Admin:  s.admins[user.Email],
	})
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	observability.FromContext(r.Context()).WithField("user_id", user.ID).Info("session issued")
	httputil.WriteCreated(w, backend.LoginResponse{Token: token, UserID: user.ID})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	s.tokens.Revoke(bearerToken(r))
	httputil.WriteNoContent(w)
}

func (s *Server) listPlans(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, backend.PlansResponse{Plans: s.catalog.Plans()})
}

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.service.Profile(r.Context(), principal(r).UserID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, profile)
}

func (s *Server) consumeAnalysis(w http.ResponseWriter, r *http.Request) {
	usage, err := s.service.ConsumeAnalysis(r.Context(), principal(r).UserID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, backend.ConsumeResponse{Usage: usage})
}

func (s *Server) createPaymentRequest(w http.ResponseWriter, r *http.Request) {
	var req backend.CreatePaymentRequestBody
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Plan, "plan") {
		return
	}

	pr, err := s.service.CreatePaymentRequest(r.Context(), principal(r).UserID, req.Plan)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteCreated(w, pr)
}

func (s *Server) getActivePaymentRequest(w http.ResponseWriter, r *http.Request) {
	pr, err := s.service.GetActivePaymentRequest(r.Context(), principal(r).UserID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if pr == nil {
		httputil.WriteNoContent(w)
		return
	}
	httputil.WriteSuccess(w, pr)
}

func (s *Server) getPaymentRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	pr, err := s.service.GetPaymentRequest(r.Context(), principal(r).UserID, id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, pr)
}

func (s *Server) claimPaymentRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	pr, err := s.service.ClaimPaymentRequest(r.Context(), principal(r).UserID, id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, pr)
}

func (s *Server) cancelPaymentRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	pr, err := s.service.CancelPaymentRequest(r.Context(), principal(r).UserID, id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, pr)
}

func (s *Server) reviewPaymentRequest(approve bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := httputil.ParsePathStringOrError(w, r, "id")
		if !ok {
			return
		}
		var req backend.ReviewBody
		if !httputil.ParseJSONOrError(w, r, &req) {
			return
		}

		pr, err := s.service.ReviewPaymentRequest(r.Context(), id, approve, req.Note)
		if err != nil {
			httputil.WriteError(w, r, err)
			return
		}
		observability.FromContext(r.Context()).WithFields(map[string]interface{}{
			"payment_request_id": pr.ID,
			"approved":           approve,
		}).Info("payment request reviewed")
		httputil.WriteSuccess(w, pr)
	}
}
