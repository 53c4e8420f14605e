package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/chartpay/pkg/async"
	"github.com/platinummonkey/chartpay/pkg/observability"
)

// sweepTimeout bounds a single ExpireStale pass.
const sweepTimeout = 30 * time.Second

// Sweeper periodically persists the expiry of overdue pending requests.
// Reads already apply expiry lazily; the sweep keeps stored state and the
// one-active-request index in line with it.
type Sweeper struct {
	service Service
	cron    *cron.Cron
	logger  *observability.Logger
}

// NewSweeper schedules ExpireStale on schedule, a standard cron spec or a
// descriptor such as "@every 1m".
func NewSweeper(service Service, schedule string, logger *observability.Logger) (*Sweeper, error) {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	s := &Sweeper{
		service: service,
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger:  logger.WithField("component", "expiry_sweeper"),
	}
	if _, err := s.cron.AddFunc(schedule, func() {
		if _, err := s.RunOnce(context.Background()); err != nil {
			s.logger.WithError(err).Error("expiry sweep failed")
		}
	}); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

// RunOnce performs one sweep.
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	var n int64
	err := async.Run(ctx, s.logger, sweepTimeout, "expiry sweep", func(ctx context.Context) error {
		var err error
		n, err = s.service.ExpireStale(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.WithField("expired", n).Info("expired stale payment requests")
	}
	return n, nil
}

func (s *Sweeper) Start() {
	s.cron.Start()
	s.logger.Info("expiry sweeper started")
}

// Stop halts the schedule and waits for a running sweep, or for ctx.
func (s *Sweeper) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
