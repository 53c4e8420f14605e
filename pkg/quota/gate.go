package quota

import (
	"context"
	"fmt"

	"github.com/platinummonkey/chartpay/pkg/apperrors"
	"github.com/platinummonkey/chartpay/pkg/observability"
	"github.com/platinummonkey/chartpay/pkg/plans"
)

// LimitType names the limit a decision refers to.
type LimitType string

const (
	LimitNone    LimitType = "none"
	LimitDaily   LimitType = "daily"
	LimitMonthly LimitType = "monthly"
)

// Counters is a read-only snapshot of the backend's usage counters.
type Counters struct {
	DailyAnalyses   int64 `json:"daily_analyses"`
	MonthlyAnalyses int64 `json:"monthly_analyses"`
}

// Decision is the outcome of one quota check. It is never persisted.
type Decision struct {
	Allowed    bool      `json:"allowed"`
	LimitType  LimitType `json:"limit_type"`
	CanUpgrade bool      `json:"can_upgrade"`
	Message    string    `json:"message"`
	Used       int64     `json:"used,omitempty"`
	Limit      int64     `json:"limit,omitempty"`
}

// Consumer records a billable analysis against the backend, which enforces
// the quota authoritatively.
type Consumer interface {
	ConsumeAnalysis(ctx context.Context) (Counters, error)
}

// Gate answers whether a billable action may proceed. It is advisory: the
// backend can still reject an action the gate allowed.
type Gate struct {
	catalog *plans.Catalog
	metrics *observability.Metrics
	logger  *observability.Logger
}

// NewGate creates a gate resolving limits from catalog.
func NewGate(catalog *plans.Catalog, metrics *observability.Metrics, logger *observability.Logger) *Gate {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Gate{catalog: catalog, metrics: metrics, logger: logger}
}

// Check evaluates counters against the plan's limits. The daily limit is
// reported before the monthly one when both are exhausted.
func (g *Gate) Check(planName string, counters Counters) (Decision, error) {
	plan, err := g.catalog.Get(planName)
	if err != nil {
		return Decision{}, err
	}

	d := Decision{
		Allowed:    true,
		LimitType:  LimitNone,
		CanUpgrade: g.canUpgrade(planName),
	}

	switch {
	case exhausted(counters.DailyAnalyses, plan.DailyLimit):
		d.Allowed = false
		d.LimitType = LimitDaily
		d.Used, d.Limit = counters.DailyAnalyses, plan.DailyLimit
	case exhausted(counters.MonthlyAnalyses, plan.MonthlyLimit):
		d.Allowed = false
		d.LimitType = LimitMonthly
		d.Used, d.Limit = counters.MonthlyAnalyses, plan.MonthlyLimit
	}
	d.Message = g.message(d)

	g.metrics.QuotaDecision(planName, string(d.LimitType))
	if !d.Allowed {
		g.logger.WithFields(map[string]interface{}{
			"plan":       planName,
			"limit_type": d.LimitType,
			"used":       d.Used,
			"limit":      d.Limit,
		}).Debug("quota exhausted")
	}
	return d, nil
}

// FromError converts a backend quota rejection into a decision. ok is false
// when err is not a quota rejection.
func (g *Gate) FromError(planName string, err error) (Decision, bool) {
	q, ok := apperrors.QuotaOf(err)
	if !ok {
		if !apperrors.IsCode(err, apperrors.CodeQuotaExceeded) {
			return Decision{}, false
		}
		q = &apperrors.QuotaDetails{LimitType: string(LimitDaily)}
	}
	d := Decision{
		Allowed:    false,
		LimitType:  LimitType(q.LimitType),
		CanUpgrade: g.canUpgrade(planName),
		Used:       q.Used,
		Limit:      q.Limit,
	}
	if d.LimitType != LimitMonthly {
		d.LimitType = LimitDaily
	}
	d.Message = g.message(d)
	g.metrics.QuotaDecision(planName, string(d.LimitType))
	return d, true
}

func (g *Gate) canUpgrade(planName string) bool {
	return g.catalog.IsLowest(planName) && g.catalog.HasHigherTier(planName)
}

func (g *Gate) message(d Decision) string {
	if d.Allowed {
		return ""
	}
	var msg string
	if d.Limit > 0 {
		msg = fmt.Sprintf("You have used all %d of your %s analyses.", d.Limit, d.LimitType)
	} else {
		msg = fmt.Sprintf("Your %s analysis limit has been reached.", d.LimitType)
	}
	if d.CanUpgrade {
		msg += " Upgrade your plan for a higher limit."
	} else if d.LimitType == LimitDaily {
		msg += " It resets tomorrow."
	} else {
		msg += " It resets next month."
	}
	return msg
}

// exhausted reports whether used has reached limit. Negative limits are unlimited.
func exhausted(used, limit int64) bool {
	return limit >= 0 && used >= limit
}
