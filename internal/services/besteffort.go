package services

import (
	"context"
	"time"
)

const bestEffortTimeout = 5 * time.Second

// bestEffort runs a side effect whose failure must never fail the primary
// operation. The error is logged and dropped. ctx cancellation of the caller
// does not cut the side effect short.
func bestEffort(ctx context.Context, logger Logger, op string, fn func(context.Context) error, args ...any) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bestEffortTimeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		logger.Warn("best-effort operation failed", append([]any{"op", op, "error", err}, args...)...)
	}
}
