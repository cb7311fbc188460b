package retryutil

import (
	"context"
	"log/slog"
	"time"
)

// BestEffort runs fn and logs a failure instead of returning it. The caller's
// primary operation proceeds either way; the result only tells whether the
// side effect landed.
func BestEffort(ctx context.Context, logger *slog.Logger, name string, fn func(ctx context.Context) error) bool {
	if fn == nil {
		return false
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := fn(ctx); err != nil {
		if logger != nil {
			logger.Warn(name+"_failed", "error", err.Error())
		}
		return false
	}
	return true
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SleepFunc lets tests replace real waiting.
type SleepFunc func(ctx context.Context, d time.Duration) error
