package plans

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/chartpay/pkg/apperrors"
	"github.com/platinummonkey/chartpay/pkg/observability"
)

func threeTiers() []Plan {
	return []Plan{
		{Name: "pro", Rank: 2, DailyLimit: Unlimited, MonthlyLimit: Unlimited, Price: 1500000, Currency: "NGN"},
		{Name: Free, Rank: 0, DailyLimit: 1, MonthlyLimit: 30, Currency: "NGN"},
		{Name: Premium, Rank: 1, DailyLimit: 50, MonthlyLimit: 1000, Price: 500000, Currency: "NGN"},
	}
}

func TestCatalog_LoadAndGet(t *testing.T) {
	calls := 0
	c := NewCatalog(FetcherFunc(func(ctx context.Context) ([]Plan, error) {
		calls++
		return threeTiers(), nil
	}), observability.NewNopLogger())

	require.NoError(t, c.Load(context.Background()))
	require.NoError(t, c.Load(context.Background()))
	assert.Equal(t, 1, calls, "Load fetches once")

	t.Run("ordered by rank", func(t *testing.T) {
		names := []string{}
		for _, p := range c.Plans() {
			names = append(names, p.Name)
		}
		assert.Equal(t, []string{Free, Premium, "pro"}, names)
	})

	t.Run("known plan", func(t *testing.T) {
		p, err := c.Get(Premium)
		require.NoError(t, err)
		assert.Equal(t, int64(500000), p.Price)
		assert.Equal(t, "₦5,000.00", p.FormattedPrice())
	})

	t.Run("unknown plan is validation error", func(t *testing.T) {
		_, err := c.Get("enterprise")
		assert.True(t, errors.Is(err, apperrors.ErrValidation))
	})

	t.Run("tiers", func(t *testing.T) {
		lowest, ok := c.Lowest()
		require.True(t, ok)
		assert.Equal(t, Free, lowest.Name)
		assert.True(t, c.IsLowest(Free))
		assert.False(t, c.IsLowest(Premium))
		assert.True(t, c.HasHigherTier(Premium))
		assert.False(t, c.HasHigherTier("pro"))
		assert.False(t, c.HasHigherTier("missing"))
		assert.Len(t, c.Upgrades(Free), 2)
	})

	t.Run("refresh refetches", func(t *testing.T) {
		require.NoError(t, c.Refresh(context.Background()))
		assert.Equal(t, 2, calls)
	})
}

func TestCatalog_PlansReturnsCopy(t *testing.T) {
	c, err := NewStaticCatalog(Defaults())
	require.NoError(t, err)

	list := c.Plans()
	list[0].DailyLimit = 999

	p, err := c.Get(Free)
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.DailyLimit)
}

func TestCatalog_Set(t *testing.T) {
	tests := []struct {
		name string
		list []Plan
	}{
		{"empty", nil},
		{"duplicate", []Plan{{Name: Free}, {Name: Free, Rank: 1}}},
		{"missing name", []Plan{{Rank: 0}}},
		{"bad currency", []Plan{{Name: Premium, Price: 100, Currency: "NAIRA"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewStaticCatalog(tt.list)
			assert.True(t, errors.Is(err, apperrors.ErrValidation), "got %v", err)
		})
	}
}

func TestCatalog_RefreshError(t *testing.T) {
	c := NewCatalog(FetcherFunc(func(ctx context.Context) ([]Plan, error) {
		return nil, apperrors.Network(errors.New("offline"))
	}), nil)

	err := c.Load(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNetwork))
	assert.Empty(t, c.Plans())

	assert.Error(t, NewCatalog(nil, nil).Refresh(context.Background()))
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plans.yaml")
	content := `plans:
  - name: free
    rank: 0
    daily_limit: 1
    monthly_limit: 30
    currency: NGN
  - name: premium
    rank: 1
    daily_limit: -1
    monthly_limit: -1
    price: 500000
    currency: NGN
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	list, err := FileFetcher{Path: path}.FetchPlans(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[1].DailyUnlimited())
	assert.True(t, list[1].MonthlyUnlimited())

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plans.yaml")
	require.NoError(t, os.WriteFile(path, []byte("plans:\n  - name: free\n    daily_limit: 1\n"), 0644))

	list, err := LoadFile(path)
	require.NoError(t, err)
	c, err := NewStaticCatalog(list)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, Watch(ctx, path, c, observability.NewNopLogger()))

	updated := "plans:\n  - name: free\n    daily_limit: 3\n  - name: premium\n    rank: 1\n    price: 500000\n    currency: NGN\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0644))

	assert.Eventually(t, func() bool {
		p, err := c.Get(Free)
		return err == nil && p.DailyLimit == 3 && c.HasHigherTier(Free)
	}, 5*time.Second, 20*time.Millisecond)
}
