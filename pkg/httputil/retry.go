package httputil

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"net"
	"net/http"
	"syscall"
	"time"
)

// RetryPolicy describes bounded exponential backoff. Attempts counts every
// try, so MaxAttempts of 1 disables retries.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64

	// Sleep replaces the real wait; tests use it to run exhaustion without delay.
	Sleep func(ctx context.Context, d time.Duration) error
}

type RetryClient struct {
	client *http.Client
	policy RetryPolicy
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  5,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

// WithDefaults fills zero fields from DefaultRetryPolicy. A negative Jitter
// means no jitter at all.
func (p RetryPolicy) WithDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = def.InitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.Multiplier == 0 {
		p.Multiplier = def.Multiplier
	}
	if p.Jitter == 0 {
		p.Jitter = def.Jitter
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	return p
}

// Delay returns the wait before retry number n (1 for the first retry).
func (p RetryPolicy) Delay(n int) time.Duration {
	delay := p.InitialDelay
	for i := 1; i < n; i++ {
		delay = min(time.Duration(float64(delay)*p.Multiplier), p.MaxDelay)
	}
	return applyJitter(min(delay, p.MaxDelay), p.Jitter)
}

// Wait blocks for Delay(n) or until ctx is done.
func (p RetryPolicy) Wait(ctx context.Context, n int) error {
	d := p.Delay(n)
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func NewRetryClient(client *http.Client, policy RetryPolicy) *RetryClient {
	if client == nil {
		client = http.DefaultClient
	}

	return &RetryClient{
		client: client,
		policy: policy.WithDefaults(),
	}
}

func (c *RetryClient) Do(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	var err error

	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			if req.GetBody != nil {
				body, bodyErr := req.GetBody()
				if bodyErr != nil {
					return nil, bodyErr
				}
				req.Body = body
			}

			if waitErr := c.policy.Wait(req.Context(), attempt-1); waitErr != nil {
				return nil, waitErr
			}
		}

		resp, err = c.client.Do(req)
		if !IsTransient(resp, err) || attempt == c.policy.MaxAttempts {
			return resp, err
		}

		if resp != nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}
	}

	return resp, err
}

// IsTransient reports whether a response or transport error is worth
// retrying: timeouts, resets, dropped connections, 408, 429 and 5xx.
func IsTransient(resp *http.Response, err error) bool {
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return false
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return true
		}
		var opErr *net.OpError
		if errors.As(err, &opErr) {
			return true
		}
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) {
			return true
		}
		return errors.Is(err, syscall.ECONNRESET) ||
			errors.Is(err, io.ErrUnexpectedEOF) ||
			errors.Is(err, io.EOF)
	}

	if resp == nil {
		return false
	}

	switch resp.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}

	return resp.StatusCode >= 500 && resp.StatusCode < 600
}

func applyJitter(delay time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return delay
	}
	jitterFactor := 1 - jitter + rand.Float64()*2*jitter
	return time.Duration(float64(delay) * jitterFactor)
}
