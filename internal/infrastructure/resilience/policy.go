package resilience

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

type Config struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64
	// RetryJitter shortens each wait by up to this fraction.
	RetryJitter         float64
	RetryAfterMax       time.Duration

	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32
}

func DefaultConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 1 * time.Second,
		RetryMaxBackoff:     4 * time.Second,
		RetryMultiplier:     2.0,
		RetryJitter:         0.2,
		RetryAfterMax:       30 * time.Second,

		BreakerEnabled:          true,
		BreakerMinRequests:      10,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 2,
	}
}

// StorageConfig retries object store calls with a doubling delay starting
// at baseDelay. No breaker: a failing bucket should surface per call.
func StorageConfig(attempts int, baseDelay time.Duration) Config {
	cfg := DefaultConfig()
	if attempts > 0 {
		cfg.RetryMaxAttempts = attempts
	}
	if baseDelay > 0 {
		cfg.RetryInitialBackoff = baseDelay
	}
	maxBackoff := cfg.RetryInitialBackoff
	for i := 2; i < cfg.RetryMaxAttempts; i++ {
		maxBackoff *= 2
	}
	cfg.RetryMaxBackoff = maxBackoff
	cfg.BreakerEnabled = false
	return cfg
}

// PollingConfig retries idempotent status reads of a remote job and
// honours the server's Retry-After up to a minute.
func PollingConfig() Config {
	cfg := InferenceConfig()
	cfg.RetryMaxAttempts = 4
	cfg.RetryInitialBackoff = 500 * time.Millisecond
	cfg.RetryMaxBackoff = 5 * time.Second
	cfg.RetryAfterMax = time.Minute
	return cfg
}

// InferenceConfig makes a single attempt per call behind a breaker. Remote
// model calls are slow and not idempotent in cost, so they are not retried.
func InferenceConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryMaxAttempts = 1
	cfg.BreakerMinRequests = 5
	cfg.BreakerOpenTimeout = time.Minute
	return cfg
}

func (c Config) normalize() Config {
	out := c
	def := DefaultConfig()

	if out.RetryMaxAttempts <= 0 {
		out.RetryMaxAttempts = def.RetryMaxAttempts
	}
	if out.RetryInitialBackoff <= 0 {
		out.RetryInitialBackoff = def.RetryInitialBackoff
	}
	if out.RetryMaxBackoff <= 0 {
		out.RetryMaxBackoff = def.RetryMaxBackoff
	}
	if out.RetryMaxBackoff < out.RetryInitialBackoff {
		out.RetryMaxBackoff = out.RetryInitialBackoff
	}
	if out.RetryMultiplier < 1.0 {
		out.RetryMultiplier = def.RetryMultiplier
	}
	if out.RetryJitter < 0 || out.RetryJitter >= 1 {
		out.RetryJitter = 0
	}
	if out.RetryAfterMax <= 0 {
		out.RetryAfterMax = def.RetryAfterMax
	}

	if out.BreakerMinRequests == 0 {
		out.BreakerMinRequests = def.BreakerMinRequests
	}
	if out.BreakerFailureRatio <= 0 || out.BreakerFailureRatio > 1 {
		out.BreakerFailureRatio = def.BreakerFailureRatio
	}
	if out.BreakerOpenTimeout <= 0 {
		out.BreakerOpenTimeout = def.BreakerOpenTimeout
	}
	if out.BreakerHalfOpenMaxCalls == 0 {
		out.BreakerHalfOpenMaxCalls = def.BreakerHalfOpenMaxCalls
	}

	return out
}

// ClassifyHTTPStatus treats throttling and server errors as transient.
// Other client errors are the caller's fault and do not trip the breaker.
func ClassifyHTTPStatus(status int) ErrorClassification {
	switch {
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout:
		return ErrorClassification{Retryable: true, RecordFailure: true}
	case status >= 500:
		return ErrorClassification{Retryable: true, RecordFailure: true}
	default:
		return ErrorClassification{Retryable: false, RecordFailure: false}
	}
}

// ClassifyTransport handles errors raised before any response arrived.
func ClassifyTransport(err error) ErrorClassification {
	if errors.Is(err, context.Canceled) {
		return ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassification{Retryable: true, RecordFailure: true}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return ErrorClassification{Retryable: false, RecordFailure: true}
}
