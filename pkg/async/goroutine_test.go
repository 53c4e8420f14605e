package async

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/platinummonkey/chartpay/pkg/observability"
)

// syncBuffer guards a bytes.Buffer shared with a background goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRun(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		err := Run(ctx, nil, time.Second, "task", func(ctx context.Context) error { return nil })
		assert.NoError(t, err)
	})

	t.Run("error is returned", func(t *testing.T) {
		want := errors.New("sweep failed")
		err := Run(ctx, nil, time.Second, "task", func(ctx context.Context) error { return want })
		assert.ErrorIs(t, err, want)
	})

	t.Run("timeout cancels context", func(t *testing.T) {
		err := Run(ctx, nil, 20*time.Millisecond, "task", func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("zero timeout keeps parent deadline only", func(t *testing.T) {
		err := Run(ctx, nil, 0, "task", func(ctx context.Context) error {
			_, ok := ctx.Deadline()
			assert.False(t, ok)
			return nil
		})
		assert.NoError(t, err)
	})

	t.Run("panic becomes error", func(t *testing.T) {
		var buf bytes.Buffer
		logger := observability.NewLogger(observability.InfoLevel, &buf)
		err := Run(ctx, logger, time.Second, "expiry sweep", func(ctx context.Context) error {
			panic("boom")
		})
		assert.EqualError(t, err, "panic in expiry sweep")
		assert.Contains(t, buf.String(), "PANIC recovered")
	})
}

func TestSafeGo(t *testing.T) {
	ctx := context.Background()

	t.Run("executes", func(t *testing.T) {
		var executed atomic.Bool
		SafeGo(ctx, nil, time.Second, "test task", func(ctx context.Context) error {
			executed.Store(true)
			return nil
		})
		assert.Eventually(t, executed.Load, time.Second, 5*time.Millisecond)
	})

	t.Run("logs errors", func(t *testing.T) {
		buf := &syncBuffer{}
		logger := observability.NewLogger(observability.InfoLevel, buf)
		SafeGo(ctx, logger, time.Second, "test task", func(ctx context.Context) error {
			return errors.New("test error")
		})
		assert.Eventually(t, func() bool {
			return bytes.Contains([]byte(buf.String()), []byte("background task failed"))
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("survives panic", func(t *testing.T) {
		buf := &syncBuffer{}
		logger := observability.NewLogger(observability.InfoLevel, buf)
		SafeGoNoError(ctx, logger, time.Second, "panicking task", func(ctx context.Context) {
			panic("boom")
		})
		assert.Eventually(t, func() bool {
			return bytes.Contains([]byte(buf.String()), []byte("PANIC recovered"))
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("parent cancellation", func(t *testing.T) {
		parent, cancel := context.WithCancel(ctx)
		var cancelled atomic.Bool
		SafeGoNoError(parent, nil, 0, "waiter", func(ctx context.Context) {
			<-ctx.Done()
			cancelled.Store(true)
		})
		cancel()
		assert.Eventually(t, cancelled.Load, time.Second, 5*time.Millisecond)
	})
}
