package gateway

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"net/http"
	"time"
)

// RetryConfig configures the retry transport.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts after the first try.
	MaxRetries int
	// InitialBackoff is the backoff before the first retry.
	InitialBackoff time.Duration
	// MaxBackoff caps the backoff growth.
	MaxBackoff time.Duration
	// BackoffMultiplier is the exponential growth factor.
	BackoffMultiplier float64
	// Jitter adds +-Jitter randomness to each backoff (0.0 to 1.0).
	Jitter float64
	// RetryableStatusCodes are the HTTP statuses worth retrying.
	RetryableStatusCodes []int
}

// DefaultRetryConfig returns the defaults used by New.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
		RetryableStatusCodes: []int{
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
	}
}

// retryTransport retries idempotent-by-construction gateway calls on
// transient failures. Backoff waits honor request-context cancellation.
type retryTransport struct {
	base http.RoundTripper
	cfg  RetryConfig
}

func newRetryTransport(base http.RoundTripper, cfg RetryConfig) *retryTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &retryTransport{base: base, cfg: cfg}
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var (
		resp    *http.Response
		lastErr error
	)

	for attempt := 0; attempt <= t.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(t.backoff(attempt)):
			}
			req = req.Clone(req.Context())
		}

		resp, lastErr = t.base.RoundTrip(req)
		if lastErr != nil {
			if t.retryableError(lastErr) {
				continue
			}
			return nil, lastErr
		}

		if t.retryableStatus(resp.StatusCode) {
			resp.Body.Close()
			lastErr = &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
			continue
		}

		return resp, nil
	}

	return resp, lastErr
}

func (t *retryTransport) backoff(attempt int) time.Duration {
	backoff := float64(t.cfg.InitialBackoff) * math.Pow(t.cfg.BackoffMultiplier, float64(attempt-1))
	if max := float64(t.cfg.MaxBackoff); backoff > max {
		backoff = max
	}
	if t.cfg.Jitter > 0 {
		backoff += backoff * t.cfg.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(backoff)
}

func (t *retryTransport) retryableError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

func (t *retryTransport) retryableStatus(code int) bool {
	for _, retryable := range t.cfg.RetryableStatusCodes {
		if code == retryable {
			return true
		}
	}
	return false
}
