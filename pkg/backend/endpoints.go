package backend

import (
	"context"
	"net/http"
	"net/url"

	"github.com/platinummonkey/chartpay/pkg/account"
	"github.com/platinummonkey/chartpay/pkg/payments"
	"github.com/platinummonkey/chartpay/pkg/plans"
	"github.com/platinummonkey/chartpay/pkg/quota"
)

// Request and response bodies shared with the reference server.
type (
	PlansResponse struct {
		Plans []plans.Plan `json:"plans"`
	}

	CreatePaymentRequestBody struct {
		Plan string `json:"plan"`
	}

	ReviewBody struct {
		Note string `json:"note,omitempty"`
	}

	ConsumeResponse struct {
		Usage quota.Counters `json:"usage"`
	}

	LoginBody struct {
		Email string `json:"email"`
	}

	LoginResponse struct {
		Token  string `json:"token"`
		UserID string `json:"user_id"`
	}
)

func paymentPath(id string, action string) string {
	p := "/v1/payment-requests/" + url.PathEscape(id)
	if action != "" {
		p += "/" + action
	}
	return p
}

// FetchPlans implements plans.Fetcher.
func (c *Client) FetchPlans(ctx context.Context) ([]plans.Plan, error) {
	var resp PlansResponse
	if _, err := c.do(ctx, "fetch_plans", http.MethodGet, "/v1/plans", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Plans, nil
}

// FetchProfile implements account.ProfileFetcher.
func (c *Client) FetchProfile(ctx context.Context) (account.Profile, error) {
	var p account.Profile
	_, err := c.do(ctx, "fetch_profile", http.MethodGet, "/v1/me", nil, &p)
	return p, err
}

func (c *Client) CreatePaymentRequest(ctx context.Context, plan string) (payments.PaymentRequest, error) {
	var r payments.PaymentRequest
	_, err := c.do(ctx, "create_payment_request", http.MethodPost, "/v1/payment-requests", CreatePaymentRequestBody{Plan: plan}, &r)
	return r, err
}

func (c *Client) MarkClaimedPaid(ctx context.Context, id string) (payments.PaymentRequest, error) {
	var r payments.PaymentRequest
	_, err := c.do(ctx, "claim_payment_request", http.MethodPost, paymentPath(id, "claim"), nil, &r)
	return r, err
}

func (c *Client) GetPaymentStatus(ctx context.Context, id string) (payments.PaymentRequest, error) {
	var r payments.PaymentRequest
	_, err := c.do(ctx, "get_payment_status", http.MethodGet, paymentPath(id, ""), nil, &r)
	return r, err
}

func (c *Client) CancelPaymentRequest(ctx context.Context, id string) (payments.PaymentRequest, error) {
	var r payments.PaymentRequest
	_, err := c.do(ctx, "cancel_payment_request", http.MethodPost, paymentPath(id, "cancel"), nil, &r)
	return r, err
}

// GetActivePaymentRequest returns nil when the backend answers 204.
func (c *Client) GetActivePaymentRequest(ctx context.Context) (*payments.PaymentRequest, error) {
	var r payments.PaymentRequest
	found, err := c.do(ctx, "get_active_payment_request", http.MethodGet, "/v1/payment-requests/active", nil, &r)
	if err != nil || !found {
		return nil, err
	}
	return &r, nil
}

// ConsumeAnalysis implements quota.Consumer. A quota rejection comes back as
// a QUOTA_EXCEEDED error carrying the limit details.
func (c *Client) ConsumeAnalysis(ctx context.Context) (quota.Counters, error) {
	var resp ConsumeResponse
	_, err := c.do(ctx, "consume_analysis", http.MethodPost, "/v1/analyses", nil, &resp)
	return resp.Usage, err
}

// Login exchanges an email for a bearer token and stores it on the client.
func (c *Client) Login(ctx context.Context, email string) (LoginResponse, error) {
	var resp LoginResponse
	if _, err := c.do(ctx, "login", http.MethodPost, "/v1/sessions", LoginBody{Email: email}, &resp); err != nil {
		return LoginResponse{}, err
	}
	c.SetToken(resp.Token)
	return resp, nil
}

// Logout revokes the current token and forgets it.
func (c *Client) Logout(ctx context.Context) error {
	if _, err := c.do(ctx, "logout", http.MethodDelete, "/v1/sessions", nil, nil); err != nil {
		return err
	}
	c.SetToken("")
	return nil
}

// ReviewPaymentRequest approves or rejects a claimed request. Admin only.
func (c *Client) ReviewPaymentRequest(ctx context.Context, id string, approve bool, note string) (payments.PaymentRequest, error) {
	action := "reject"
	if approve {
		action = "approve"
	}
	var r payments.PaymentRequest
	_, err := c.do(ctx, "review_payment_request", http.MethodPost, "/v1/admin/payment-requests/"+url.PathEscape(id)+"/"+action, ReviewBody{Note: note}, &r)
	return r, err
}

var (
	_ payments.Backend       = (*Client)(nil)
	_ plans.Fetcher          = (*Client)(nil)
	_ account.ProfileFetcher = (*Client)(nil)
	_ quota.Consumer         = (*Client)(nil)
)
