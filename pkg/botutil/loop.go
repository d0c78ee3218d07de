package botutil

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// RunLoop waits for ready to become true, then calls fn on each tick of interval.
// It returns when ctx is done. Panics in fn are recovered so the loop keeps running.
func RunLoop(ctx context.Context, ready *atomic.Bool, interval time.Duration, name string, fn func(context.Context)) {
	if !WaitForReady(ctx, ready) {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			safeCall(ctx, name, fn)
		}
	}
}

var readyPollInterval = time.Second

// WaitForReady blocks until ready is true. It reports false if ctx ended
// first.
func WaitForReady(ctx context.Context, ready *atomic.Bool) bool {
	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()
	for !ready.Load() {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
	return true
}

func safeCall(ctx context.Context, name string, fn func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Panic in background loop", "loop", name, "error", r)
		}
	}()
	fn(ctx)
}
