package payments

import (
	"context"
	"time"

	"github.com/platinummonkey/chartpay/pkg/apperrors"
	"github.com/platinummonkey/chartpay/pkg/money"
)

// SubmissionState is the user-driven progress of a payment request.
type SubmissionState string

const (
	SubmissionPending     SubmissionState = "pending"
	SubmissionClaimedPaid SubmissionState = "user_claimed_paid"
	SubmissionCancelled   SubmissionState = "cancelled"
	SubmissionExpired     SubmissionState = "expired"
)

// ReviewState is the admin outcome. It is owned by the backend and only
// observed by clients.
type ReviewState string

const (
	ReviewNone     ReviewState = "none"
	ReviewAwaiting ReviewState = "awaiting_review"
	ReviewApproved ReviewState = "approved"
	ReviewRejected ReviewState = "rejected"
)

// BankDetails is shown to the user for the transfer. Display only.
type BankDetails struct {
	BankName      string `json:"bank_name"`
	AccountName   string `json:"account_name"`
	AccountNumber string `json:"account_number"`
}

// PaymentRequest is a bank-transfer upgrade request.
type PaymentRequest struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	Plan            string          `json:"plan"`
	Amount          int64           `json:"amount"`
	Currency        string          `json:"currency"`
	SubmissionState SubmissionState `json:"submission_state"`
	ReviewState     ReviewState     `json:"review_state"`
	BankDetails     BankDetails     `json:"bank_details"`
	Reference       string          `json:"reference"`
	AdminNote       string          `json:"admin_note,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	ExpiresAt       time.Time       `json:"expires_at"`
	ClaimedAt       *time.Time      `json:"claimed_at,omitempty"`
	ReviewedAt      *time.Time      `json:"reviewed_at,omitempty"`
	// NotifiedAt is set on the cached copy once the user was told about its
	// terminal outcome. The backend never sends it.
	NotifiedAt *time.Time `json:"notified_at,omitempty"`
}

// Validate checks a request received from the backend.
func (r PaymentRequest) Validate() error {
	if r.ID == "" {
		return apperrors.Validation("payment request has no id")
	}
	if r.Amount < 0 {
		return apperrors.Validation("payment request %s has negative amount", r.ID)
	}
	if !r.ExpiresAt.After(r.CreatedAt) {
		return apperrors.Validation("payment request %s expires at or before creation", r.ID)
	}
	return nil
}

// PastExpiry reports whether a pending request has run out of time at now.
func (r PaymentRequest) PastExpiry(now time.Time) bool {
	return r.SubmissionState == SubmissionPending && !now.Before(r.ExpiresAt)
}

// WithLazyExpiry returns r moved to expired if it is pending past its expiry.
func (r PaymentRequest) WithLazyExpiry(now time.Time) PaymentRequest {
	if r.PastExpiry(now) {
		r.SubmissionState = SubmissionExpired
	}
	return r
}

// IsActive reports whether the request still blocks a new one.
func (r PaymentRequest) IsActive() bool {
	switch r.ReviewState {
	case ReviewApproved, ReviewRejected:
		return false
	}
	return r.SubmissionState == SubmissionPending || r.SubmissionState == SubmissionClaimedPaid
}

// IsTerminal is the negation of IsActive.
func (r PaymentRequest) IsTerminal() bool {
	return !r.IsActive()
}

// CanClaim reports whether ClaimPaid is a valid transition.
func (r PaymentRequest) CanClaim() bool {
	return r.SubmissionState == SubmissionPending
}

// CanCancel reports whether Cancel is a valid transition.
func (r PaymentRequest) CanCancel() bool {
	return r.SubmissionState == SubmissionPending
}

// FormattedAmount renders the amount for display.
func (r PaymentRequest) FormattedAmount() string {
	return money.Format(r.Amount, r.Currency)
}

// Backend is the remote collaborator owning payment requests.
type Backend interface {
	CreatePaymentRequest(ctx context.Context, plan string) (PaymentRequest, error)
	MarkClaimedPaid(ctx context.Context, id string) (PaymentRequest, error)
	GetPaymentStatus(ctx context.Context, id string) (PaymentRequest, error)
	CancelPaymentRequest(ctx context.Context, id string) (PaymentRequest, error)
	// GetActivePaymentRequest returns nil when the user has no active request.
	GetActivePaymentRequest(ctx context.Context) (*PaymentRequest, error)
}

// Store caches the user's current request between calls. Load returns nil
// when nothing is cached.
type Store interface {
	Load(ctx context.Context, userID string) (*PaymentRequest, error)
	Save(ctx context.Context, userID string, r PaymentRequest) error
	Delete(ctx context.Context, userID string) error
}

// SubscriptionRefresher reloads the user's subscription after an approval.
type SubscriptionRefresher interface {
	RefreshSubscription(ctx context.Context) error
}

// NotificationKind is the terminal outcome being announced.
type NotificationKind string

const (
	NotifyApproved  NotificationKind = "approved"
	NotifyRejected  NotificationKind = "rejected"
	NotifyExpired   NotificationKind = "expired"
	NotifyCancelled NotificationKind = "cancelled"
)

// Notification tells the user a request reached a terminal outcome.
type Notification struct {
	Kind      NotificationKind `json:"kind"`
	RequestID string           `json:"request_id"`
	Reference string           `json:"reference"`
	Plan      string           `json:"plan"`
	Message   string           `json:"message"`
}

// Notifier delivers notifications to the user.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}
