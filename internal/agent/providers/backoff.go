package providers

import (
	"context"
	"net/http"
	"strconv"
	"time"
)

// Retry pacing for throttled requests. The delay doubles per attempt
// and an explicit Retry-After from the server always wins.
const (
	backoffInitial    = 1500 * time.Millisecond
	backoffMax        = 40 * time.Second
	defaultMaxRetries = 4
)

// retrier runs a request function under the rate-limit retry policy.
type retrier struct {
	provider string
	model    string
	attempts int
	sleep    func(ctx context.Context, d time.Duration) error
}

func newRetrier(provider, model string) *retrier {
	return &retrier{
		provider: provider,
		model:    model,
		attempts: defaultMaxRetries,
		sleep:    sleepCtx,
	}
}

// do invokes fn up to the attempt budget, backing off between
// rate-limited tries. Non-retryable failures return immediately. On
// exhaustion the returned error is a KindRateLimited *Error carrying
// the last cause and the attempt count.
func (r *retrier) do(ctx context.Context, fn func() error) error {
	return r.doStream(ctx, func() (bool, error) { return false, fn() })
}

// doStream is do for attempts that deliver output as they run. An
// attempt that reports having emitted must not be replayed, since the
// consumer already saw part of it; its failure returns immediately
// even when retryable.
func (r *retrier) doStream(ctx context.Context, fn func() (emitted bool, err error)) error {
	delay := backoffInitial

	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		var emitted bool
		emitted, lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if emitted || !IsRateLimited(lastErr) {
			return lastErr
		}
		if attempt == r.attempts {
			break
		}

		wait := delay
		if perr, ok := AsError(lastErr); ok && perr.RetryAfter > 0 {
			wait = perr.RetryAfter
		}
		if wait > backoffMax {
			wait = backoffMax
		}
		if err := r.sleep(ctx, wait); err != nil {
			return err
		}

		delay *= 2
		if delay > backoffMax {
			delay = backoffMax
		}
	}

	return NewError(r.provider, r.model, lastErr).
		WithStatus(http.StatusTooManyRequests).
		WithAttempts(r.attempts).
		WithMessage("rate limit retries exhausted")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// parseRetryAfter reads a Retry-After header value: integer seconds or
// an HTTP-date. Returns 0 when absent or unparseable.
func parseRetryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
