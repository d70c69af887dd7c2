// Package readiness provides the single wait-until-ready primitive used for
// dependencies that may not be available yet (the event broker, provider
// credential checks). Attempts are bounded and back off exponentially.
package readiness

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
)

// Options bounds a wait.
type Options struct {
	Attempts uint          // Total attempts including the first; 0 is treated as 1
	Delay    time.Duration // Initial backoff delay
	MaxDelay time.Duration // Upper bound for a single backoff; 0 means 30s
}

// DefaultOptions are used by callers without specific needs.
var DefaultOptions = Options{Attempts: 5, Delay: time.Second, MaxDelay: 30 * time.Second}

// Check reports nil once the dependency is ready.
type Check func(ctx context.Context) error

// Permanent marks err as not worth retrying; Wait returns it immediately.
func Permanent(err error) error {
	return retry.Unrecoverable(err)
}

// Wait runs check until it succeeds, the attempts are exhausted, ctx is done or
// check returns a Permanent error. The last error is returned.
func Wait(ctx context.Context, logger *slog.Logger, name string, check Check, opts Options) error {
	attempts := opts.Attempts
	if attempts == 0 {
		attempts = 1
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}

	err := retry.Do(
		func() error { return check(ctx) },
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(opts.Delay),
		retry.MaxDelay(maxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.WarnContext(ctx, "Dependency not ready, retrying",
				"dependency", name,
				"attempt", n+1,
				"max_attempts", attempts,
				"error", err,
			)
		}),
	)
	if err != nil {
		return fmt.Errorf("%s not ready: %w", name, err)
	}
	return nil
}
