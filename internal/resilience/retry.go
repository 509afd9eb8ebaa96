// Package resilience provides the one-retry-with-backoff primitive §7 assigns
// to transient backend and embedder failures.
//
// The engine does not need the teacher's full three-state circuit breaker
// here: §7's taxonomy calls for exactly one retry per failure, not sustained
// trip/probe/reset cycling across many calls. [Retry] keeps the teacher's
// structured-logging-on-retry idiom in a shape that matches that contract.
package resilience

import (
	"context"
	"log/slog"
	"time"
)

// DefaultBackoff is the §7 retry delay for BackendUnavailable and
// EmbedderFailed kinds.
const DefaultBackoff = 250 * time.Millisecond

// Retry calls fn. If fn fails, it waits backoff (or returns ctx.Err() if the
// context is cancelled first) and calls fn exactly once more, returning
// whatever that second call produces. name is used only for logging.
func Retry(ctx context.Context, name string, backoff time.Duration, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}

	slog.Warn("transient failure, retrying once", "component", name, "backoff", backoff, "error", err)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(backoff):
	}

	return fn()
}
