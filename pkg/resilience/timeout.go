package resilience

import (
	"context"
	"fmt"
	"time"
)

// WithTimeout bounds fn by the given duration. fn receives a derived context
// that is cancelled at the deadline; a run that overshoots gets
// context.DeadlineExceeded back while fn unwinds on its own. A timeout of
// zero or less runs fn unbounded.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}

	bounded, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(bounded) }()

	select {
	case err := <-done:
		return err
	case <-bounded.Done():
		if ctx.Err() != nil {
			return fmt.Errorf("%s: parent context cancelled: %w", name, ctx.Err())
		}
		return fmt.Errorf("%s: %w (limit: %v)", name, context.DeadlineExceeded, timeout)
	}
}
