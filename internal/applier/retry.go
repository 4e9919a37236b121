package applier

import (
	"context"
	"fmt"
	"time"

	"github.com/ruvelro/maca-engine/internal/media"
)

const (
	// DefaultAttempts bounds how often one application is retried.
	DefaultAttempts = 12
	// DefaultDelay is the pause between attempts. 12 × 220ms gives the
	// asynchronously-rendering form roughly 2.6s to show up.
	DefaultDelay = 220 * time.Millisecond
)

// Retry wraps an Applier with a bounded attempt loop. "At least one field
// set" counts as success; the waits between attempts are cancellable, so a
// cancelled queue cycle returns immediately instead of sleeping out the
// remaining attempts.
type Retry struct {
	inner    Applier
	attempts int
	delay    time.Duration
}

// NewRetry wraps inner with the default attempt policy.
func NewRetry(inner Applier) *Retry {
	return &Retry{inner: inner, attempts: DefaultAttempts, delay: DefaultDelay}
}

// NewRetryWith wraps inner with a custom policy. Values <= 0 get defaults.
func NewRetryWith(inner Applier, attempts int, delay time.Duration) *Retry {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Retry{inner: inner, attempts: attempts, delay: delay}
}

// Apply retries the inner applier until at least one field was set, the
// attempts run out, or the context ends.
func (r *Retry) Apply(ctx context.Context, tabID, attachmentID string, meta media.Metadata) (media.ApplyResult, error) {
	var lastErr error

	for attempt := 0; attempt < r.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return media.ApplyResult{}, err
		}

		res, err := r.inner.Apply(ctx, tabID, attachmentID, meta)
		if err == nil && res.AnySet() {
			return res, nil
		}
		lastErr = err

		if attempt == r.attempts-1 {
			break
		}

		timer := time.NewTimer(r.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return media.ApplyResult{}, ctx.Err()
		case <-timer.C:
		}
	}

	if lastErr != nil {
		return media.ApplyResult{}, fmt.Errorf("applying fields failed after %d attempts: %w", r.attempts, lastErr)
	}
	return media.ApplyResult{}, fmt.Errorf("no fields applied after %d attempts", r.attempts)
}
