package retry

import (
	"context"
	"errors"
	"net"
	"net/url"
	"syscall"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	defaultAttempts = 4
	defaultBase     = 250 * time.Millisecond
)

// TransientError marks a provider failure as retryable. Adapters wrap
// timeouts, DNS failures, and provider 5xx responses with it; 4xx
// application errors are never wrapped and therefore never retried.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	if e.Err == nil {
		return "transient provider error"
	}
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err so Do will retry it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether the error is retryable: explicitly marked
// transient, a net timeout, or a DNS resolution failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var marked *TransientError
	if errors.As(err, &marked) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return IsTransient(urlErr.Err)
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	return false
}

// Do runs fn with bounded exponential backoff, retrying only errors
// IsTransient accepts. Permanent errors return immediately.
func Do(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(defaultAttempts-1, retry.NewExponential(defaultBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if IsTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}
