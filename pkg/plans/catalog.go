package plans

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/platinummonkey/chartpay/pkg/apperrors"
	"github.com/platinummonkey/chartpay/pkg/observability"
)

// Catalog holds the plan list for one session. Contents change only on an
// explicit Load or Refresh.
type Catalog struct {
	mu      sync.RWMutex
	fetcher Fetcher
	logger  *observability.Logger
	plans   []Plan
	byName  map[string]Plan
}

// NewCatalog creates an empty catalog backed by fetcher.
func NewCatalog(fetcher Fetcher, logger *observability.Logger) *Catalog {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Catalog{
		fetcher: fetcher,
		logger:  logger,
		byName:  make(map[string]Plan),
	}
}

// NewStaticCatalog creates a catalog from a fixed plan list.
func NewStaticCatalog(list []Plan) (*Catalog, error) {
	c := NewCatalog(nil, nil)
	if err := c.Set(list); err != nil {
		return nil, err
	}
	return c, nil
}

// Load fetches the catalog if it has not been loaded yet.
func (c *Catalog) Load(ctx context.Context) error {
	c.mu.RLock()
	loaded := len(c.plans) > 0
	c.mu.RUnlock()
	if loaded {
		return nil
	}
	return c.Refresh(ctx)
}

// Refresh re-fetches the catalog unconditionally.
func (c *Catalog) Refresh(ctx context.Context) error {
	if c.fetcher == nil {
		return fmt.Errorf("plan catalog has no fetcher")
	}
	list, err := c.fetcher.FetchPlans(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch plans: %w", err)
	}
	if err := c.Set(list); err != nil {
		return err
	}
	c.logger.WithField("plans", len(list)).Debug("plan catalog refreshed")
	return nil
}

// Set replaces the catalog contents after validating them.
func (c *Catalog) Set(list []Plan) error {
	if len(list) == 0 {
		return apperrors.Validation("plan catalog is empty")
	}
	byName := make(map[string]Plan, len(list))
	for _, p := range list {
		if err := p.Validate(); err != nil {
			return apperrors.Wrap(err, apperrors.CodeValidation, "invalid plan catalog")
		}
		if _, dup := byName[p.Name]; dup {
			return apperrors.Validation("duplicate plan %q", p.Name)
		}
		byName[p.Name] = p
	}
	sorted := make([]Plan, len(list))
	copy(sorted, list)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Rank < sorted[j].Rank })

	c.mu.Lock()
	c.plans = sorted
	c.byName = byName
	c.mu.Unlock()
	return nil
}

// Get returns the named plan. An unknown name is a validation error.
func (c *Catalog) Get(name string) (Plan, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.byName[name]
	if !ok {
		return Plan{}, apperrors.Validation("unknown plan %q", name)
	}
	return p, nil
}

// Plans returns the catalog ordered by rank.
func (c *Catalog) Plans() []Plan {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Plan, len(c.plans))
	copy(out, c.plans)
	return out
}

// Lowest returns the lowest-ranked plan.
func (c *Catalog) Lowest() (Plan, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.plans) == 0 {
		return Plan{}, false
	}
	return c.plans[0], true
}

// IsLowest reports whether name is the lowest tier.
func (c *Catalog) IsLowest(name string) bool {
	lowest, ok := c.Lowest()
	return ok && lowest.Name == name
}

// HasHigherTier reports whether any plan ranks above name.
func (c *Catalog) HasHigherTier(name string) bool {
	p, err := c.Get(name)
	if err != nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, other := range c.plans {
		if other.Rank > p.Rank {
			return true
		}
	}
	return false
}

// Upgrades returns the plans ranked above name.
func (c *Catalog) Upgrades(name string) []Plan {
	p, err := c.Get(name)
	if err != nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []Plan
	for _, other := range c.plans {
		if other.Rank > p.Rank {
			out = append(out, other)
		}
	}
	return out
}
