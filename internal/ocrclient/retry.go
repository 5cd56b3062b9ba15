package ocrclient

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// Retry defaults match the backoff used by the original benchmark sessions.
const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = time.Second
	DefaultMaxDelay    = 32 * time.Second
)

// RetryTransport retries idempotent-safe failures of an OCR upload: network
// errors and 429/502/503/504 responses. The final attempt's response or error
// is returned unchanged, so callers see a normal non-200 when retries run out.
type RetryTransport struct {
	Base        http.RoundTripper
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Logger      *slog.Logger

	// sleep waits for d or until ctx is done. Replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetryTransport wraps base (http.DefaultTransport when nil) with the default policy.
func NewRetryTransport(base http.RoundTripper) *RetryTransport {
	return &RetryTransport{
		Base:        base,
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
	}
}

// RetryableStatus reports whether a status code is worth another attempt.
func RetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// Backoff returns the delay after the given failed attempt (1-based):
// base * 2^(attempt-1), capped at max.
func Backoff(attempt int, base, maxDelay time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxDelay {
			return maxDelay
		}
	}
	if d > maxDelay {
		return maxDelay
	}
	return d
}

// RoundTrip implements http.RoundTripper.
func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	attempts := t.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	// A body that cannot be replayed gets exactly one attempt.
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		attempts = 1
	}

	ctx := req.Context()
	for attempt := 1; ; attempt++ {
		r := req
		if attempt > 1 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			r = req.Clone(ctx)
			r.Body = body
		}

		resp, err := base.RoundTrip(r)
		if ctx.Err() != nil {
			if resp != nil {
				_ = resp.Body.Close()
			}
			return nil, ctx.Err()
		}
		if attempt >= attempts || !t.shouldRetry(resp, err) {
			return resp, err
		}

		delay := Backoff(attempt, t.baseDelay(), t.maxDelay())
		if resp != nil {
			if ra, ok := retryAfter(resp); ok {
				delay = min(ra, t.maxDelay())
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}
		t.logger().Warn("retrying OCR request",
			"url", req.URL.String(), "attempt", attempt, "max_attempts", attempts,
			"delay", delay.String(), "status", statusOf(resp), "error", errString(err))
		clientRetriesTotal.Inc()

		if err := t.wait(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func (t *RetryTransport) shouldRetry(resp *http.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	return RetryableStatus(resp.StatusCode)
}

func (t *RetryTransport) wait(ctx context.Context, d time.Duration) error {
	if t.sleep != nil {
		return t.sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *RetryTransport) baseDelay() time.Duration {
	if t.BaseDelay <= 0 {
		return DefaultBaseDelay
	}
	return t.BaseDelay
}

func (t *RetryTransport) maxDelay() time.Duration {
	if t.MaxDelay <= 0 {
		return DefaultMaxDelay
	}
	return t.MaxDelay
}

func (t *RetryTransport) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}

// retryAfter parses a Retry-After header given in seconds on 429 and 503 responses.
func retryAfter(resp *http.Response) (time.Duration, bool) {
	if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode != http.StatusServiceUnavailable {
		return 0, false
	}
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

func statusOf(resp *http.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
