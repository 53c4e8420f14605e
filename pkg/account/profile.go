// Package account holds the user profile as reported by the backend.
package account

import (
	"context"
	"time"

	"github.com/platinummonkey/chartpay/pkg/quota"
)

// SubscriptionStatus is the state of the user's current plan.
type SubscriptionStatus string

const (
	SubscriptionActive  SubscriptionStatus = "active"
	SubscriptionExpired SubscriptionStatus = "expired"
)

// Subscription is the plan the user is currently on.
type Subscription struct {
	Plan      string             `json:"plan"`
	Status    SubscriptionStatus `json:"status"`
	StartedAt *time.Time         `json:"started_at,omitempty"`
	ExpiresAt *time.Time         `json:"expires_at,omitempty"`
}

// APIUsage mirrors the backend usage counters.
type APIUsage struct {
	DailyAnalyses   int64 `json:"daily_analyses"`
	MonthlyAnalyses int64 `json:"monthly_analyses"`
}

// Profile is the authenticated user's account snapshot.
type Profile struct {
	UserID       string       `json:"user_id"`
	Email        string       `json:"email"`
	Subscription Subscription `json:"subscription"`
	APIUsage     APIUsage     `json:"api_usage"`
}

// Counters returns the usage counters for quota checks.
func (p Profile) Counters() quota.Counters {
	return quota.Counters{
		DailyAnalyses:   p.APIUsage.DailyAnalyses,
		MonthlyAnalyses: p.APIUsage.MonthlyAnalyses,
	}
}

// WithCounters returns a copy of p with updated usage.
func (p Profile) WithCounters(c quota.Counters) Profile {
	p.APIUsage = APIUsage{DailyAnalyses: c.DailyAnalyses, MonthlyAnalyses: c.MonthlyAnalyses}
	return p
}

// ProfileFetcher loads the profile of the authenticated user.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context) (Profile, error)
}
