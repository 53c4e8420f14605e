package plans

import (
	"context"
	"fmt"

	"github.com/platinummonkey/chartpay/pkg/money"
)

// Unlimited marks a limit that is never exhausted.
const Unlimited int64 = -1

// Well-known plan names.
const (
	Free    = "free"
	Premium = "premium"
)

// Plan is a subscription tier and its analysis limits.
type Plan struct {
	Name         string `json:"name" yaml:"name"`
	DisplayName  string `json:"display_name,omitempty" yaml:"display_name"`
	Rank         int    `json:"rank" yaml:"rank"`
	DailyLimit   int64  `json:"daily_limit" yaml:"daily_limit"`
	MonthlyLimit int64  `json:"monthly_limit" yaml:"monthly_limit"`
	Price        int64  `json:"price" yaml:"price"`
	Currency     string `json:"currency" yaml:"currency"`
}

// DailyUnlimited reports whether the daily limit is unbounded.
func (p Plan) DailyUnlimited() bool { return p.DailyLimit < 0 }

// MonthlyUnlimited reports whether the monthly limit is unbounded.
func (p Plan) MonthlyUnlimited() bool { return p.MonthlyLimit < 0 }

// FormattedPrice renders the plan price for display.
func (p Plan) FormattedPrice() string {
	return money.Format(p.Price, p.Currency)
}

// Validate checks a single plan definition.
func (p Plan) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("plan name is required")
	}
	if p.Price < 0 {
		return fmt.Errorf("plan %s: price must not be negative", p.Name)
	}
	if p.Price > 0 && !money.Valid(p.Currency) {
		return fmt.Errorf("plan %s: invalid currency %q", p.Name, p.Currency)
	}
	if p.Rank < 0 {
		return fmt.Errorf("plan %s: rank must not be negative", p.Name)
	}
	return nil
}

// Fetcher loads the plan catalog from the backend.
type Fetcher interface {
	FetchPlans(ctx context.Context) ([]Plan, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context) ([]Plan, error)

func (f FetcherFunc) FetchPlans(ctx context.Context) ([]Plan, error) {
	return f(ctx)
}

// Defaults is the catalog used when no plan file is configured.
func Defaults() []Plan {
	return []Plan{
		{Name: Free, DisplayName: "Free", Rank: 0, DailyLimit: 1, MonthlyLimit: 30, Price: 0, Currency: "NGN"},
		{Name: Premium, DisplayName: "Premium", Rank: 1, DailyLimit: 50, MonthlyLimit: 1000, Price: 500000, Currency: "NGN"},
	}
}
