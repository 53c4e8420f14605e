package async

import (
	"context"
	"fmt"
	"time"

	"github.com/platinummonkey/chartpay/pkg/observability"
)

// Run executes fn with an optional timeout and converts a panic into an
// error. A zero timeout means fn is bounded only by ctx.
//
// Example:
//
//	err := async.Run(ctx, logger, 30*time.Second, "expiry sweep", func(ctx context.Context) error {
//	    _, err := svc.ExpireStale(ctx)
//	    return err
//	})
func Run(parentCtx context.Context, logger *observability.Logger, timeout time.Duration, taskName string, fn func(context.Context) error) (err error) {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	ctx, cancel := parentCtx, context.CancelFunc(func() {})
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(parentCtx, timeout)
	}
	defer cancel()

	defer observability.RecoverPanicWithCallback(logger, taskName, func() {
		err = fmt.Errorf("panic in %s", taskName)
	})

	return fn(ctx)
}

// SafeGo executes a function in a goroutine with:
// - Context cancellation support
// - Panic recovery
// - Timeout enforcement
// - Error logging
//
// Use this instead of bare `go func()` so a failing task never takes the
// process down.
func SafeGo(parentCtx context.Context, logger *observability.Logger, timeout time.Duration, taskName string, fn func(context.Context) error) {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	go func() {
		if err := Run(parentCtx, logger, timeout, taskName, fn); err != nil {
			logger.WithError(err).WithField("task", taskName).Error("background task failed")
		}
	}()
}

// SafeGoNoError is like SafeGo but for functions that don't return errors.
// Still provides panic recovery and context support.
func SafeGoNoError(parentCtx context.Context, logger *observability.Logger, timeout time.Duration, taskName string, fn func(context.Context)) {
	SafeGo(parentCtx, logger, timeout, taskName, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}
