package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	// DefaultMaxAttempts is the total number of tries per request,
	// including the first one.
	DefaultMaxAttempts = 3
	// DefaultInitialBackoff is the delay before the first retry.
	// Each subsequent retry doubles it.
	DefaultInitialBackoff = 500 * time.Millisecond
)

var _ Provider = (*RetryProvider)(nil)

// RetryProvider retries failed model calls with exponential backoff.
// Only the model call itself is retried; callers remain responsible for
// not re-executing any side effects between attempts.
type RetryProvider struct {
	inner          Provider
	maxAttempts    int
	initialBackoff time.Duration
	logger         *slog.Logger
}

// RetryOption configures a RetryProvider.
type RetryOption func(*RetryProvider)

// WithMaxAttempts sets the total number of attempts (minimum 1).
func WithMaxAttempts(n int) RetryOption {
	return func(r *RetryProvider) {
		if n >= 1 {
			r.maxAttempts = n
		}
	}
}

// WithInitialBackoff sets the delay before the first retry.
func WithInitialBackoff(d time.Duration) RetryOption {
	return func(r *RetryProvider) {
		if d > 0 {
			r.initialBackoff = d
		}
	}
}

// NewRetryProvider wraps a provider with retry behavior.
func NewRetryProvider(inner Provider, logger *slog.Logger, opts ...RetryOption) *RetryProvider {
	r := &RetryProvider{
		inner:          inner,
		maxAttempts:    DefaultMaxAttempts,
		initialBackoff: DefaultInitialBackoff,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SendMessage forwards to the wrapped provider, retrying on failure.
// Backoff doubles after each failed attempt. Context cancellation stops
// the retry loop immediately.
func (r *RetryProvider) SendMessage(ctx context.Context, req *Request) (*Response, error) {
	backoff := r.initialBackoff
	var lastErr error

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		resp, err := r.inner.SendMessage(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if attempt == r.maxAttempts {
			break
		}

		r.logger.WarnContext(ctx, "model call failed, retrying",
			slog.String("provider", r.inner.Name()),
			slog.String("error", err.Error()),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", backoff),
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return nil, fmt.Errorf("model call failed after %d attempts: %w", r.maxAttempts, lastErr)
}

// Name returns the wrapped provider's name.
func (r *RetryProvider) Name() string {
	return r.inner.Name()
}
