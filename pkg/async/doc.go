// Package async provides safe execution primitives for background tasks.
//
// # Overview
//
// Run executes a task with a timeout and turns a panic into an error. SafeGo
// does the same on a new goroutine and logs the failure, so a background job
// (the expiry sweep, the plan file watcher) can never crash the server.
//
//	async.SafeGo(ctx, logger, 30*time.Second, "expiry sweep", func(ctx context.Context) error {
//		_, err := svc.ExpireStale(ctx)
//		return err
//	})
package async
