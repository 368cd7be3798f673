package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// StatusError is a non-2xx response from a marketplace endpoint.
type StatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.URL, e.StatusCode, body)
}

// IsTransient reports whether err is worth retrying: rate limiting,
// recoverable auth failures, server errors and network failures.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == http.StatusTooManyRequests,
			se.StatusCode == http.StatusUnauthorized,
			se.StatusCode >= 500:
			return true
		}
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func isUnauthorized(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusUnauthorized
}

// Retrier runs an operation up to MaxRetries times with exponential
// backoff between attempts: BaseBackoff, 2*BaseBackoff, 4*BaseBackoff...
// capped at MaxBackoff.
type Retrier struct {
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	// OnUnauthorized runs after a 401 so the next attempt gets a fresh token.
	OnUnauthorized func()

	sleep func(ctx context.Context, d time.Duration) error
}

// Backoff is the wait after the given failed attempt (1-based).
func (r *Retrier) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := r.BaseBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if r.MaxBackoff > 0 && d >= r.MaxBackoff {
			return r.MaxBackoff
		}
	}
	if r.MaxBackoff > 0 && d > r.MaxBackoff {
		return r.MaxBackoff
	}
	return d
}

// Do calls fn until it succeeds, returns a non-transient error, or the
// attempts run out.
func (r *Retrier) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := r.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	sleep := r.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return fmt.Errorf("%s: %w", op, lastErr)
		}
		if isUnauthorized(lastErr) && r.OnUnauthorized != nil {
			r.OnUnauthorized()
		}
		if attempt < attempts {
			wait := r.Backoff(attempt)
			logger.Warnf("%s: attempt %d/%d failed: %v, retrying in %v", op, attempt, attempts, lastErr, wait)
			if err := sleep(ctx, wait); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
		}
	}

	return fmt.Errorf("%s: all %d attempts failed: %w", op, attempts, lastErr)
}

// WithUnauthorized returns a copy that calls fn on 401 responses.
func (r *Retrier) WithUnauthorized(fn func()) *Retrier {
	c := *r
	c.OnUnauthorized = fn
	return &c
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
