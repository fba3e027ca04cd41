package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrorClassification tells the executor what a failed attempt means.
// RetryAfter is the wait the remote side asked for, zero when it did not.
type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
	RetryAfter    time.Duration
}

type ErrorClassifier func(err error) ErrorClassification

// Executor retries calls and guards each upstream dependency with a
// circuit breaker. Operations are named "<dependency>.<call>"; every call
// of one dependency shares its breaker, so an outage seen while polling
// also stops new submissions.
type Executor struct {
	cfg    Config
	logger *slog.Logger
	jitter func(time.Duration) time.Duration

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[any]
}

func NewExecutor(cfg Config) *Executor {
	cfg = cfg.normalize()
	return &Executor{
		cfg:      cfg,
		logger:   slog.Default(),
		jitter:   fractionJitter(cfg.RetryJitter),
		breakers: make(map[string]*gobreaker.CircuitBreaker[any]),
	}
}

// WithLogger routes retry and breaker events to logger.
func (e *Executor) WithLogger(logger *slog.Logger) *Executor {
	if logger != nil {
		e.logger = logger
	}
	return e
}

// Attempts is the configured maximum number of tries per call.
func (e *Executor) Attempts() int {
	return e.cfg.RetryMaxAttempts
}

func (e *Executor) Execute(
	ctx context.Context,
	operation string,
	fn func(context.Context) error,
	classifier ErrorClassifier,
) error {
	if fn == nil {
		return fmt.Errorf("resilience: operation callback is nil")
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	if classifier == nil {
		classifier = defaultClassifier
	}

	attempt := func() error {
		return e.retry(ctx, op, fn, classifier)
	}
	if !e.cfg.BreakerEnabled {
		return attempt()
	}
	_, err := e.breaker(Dependency(op), classifier).Execute(func() (any, error) {
		return nil, attempt()
	})
	return err
}

// Dependency is the part of an operation name before the first dot.
func Dependency(operation string) string {
	if name, _, ok := strings.Cut(operation, "."); ok && name != "" {
		return name
	}
	return operation
}

func (e *Executor) retry(
	ctx context.Context,
	operation string,
	fn func(context.Context) error,
	classifier ErrorClassifier,
) error {
	var (
		err     error
		backoff = e.cfg.RetryInitialBackoff
	)
	for attempt := 1; attempt <= e.cfg.RetryMaxAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err != nil {
				return err
			}
			return ctxErr
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		class := classifier(err)
		if !class.Retryable || attempt == e.cfg.RetryMaxAttempts {
			return err
		}

		wait := e.nextWait(backoff, class.RetryAfter)
		if !fitsDeadline(ctx, wait) {
			e.logger.Warn("retry_abandoned",
				"operation", operation,
				"attempt", attempt,
				"backoff_ms", durationMS(wait),
				"error", err,
			)
			return err
		}
		e.logger.Warn("retry_attempt",
			"operation", operation,
			"attempt", attempt,
			"max_attempts", e.cfg.RetryMaxAttempts,
			"backoff_ms", durationMS(wait),
			"error", err,
		)
		if !sleep(ctx, wait) {
			return err
		}
		backoff = min(time.Duration(float64(backoff)*e.cfg.RetryMultiplier), e.cfg.RetryMaxBackoff)
	}
	return err
}

// nextWait jitters the backoff and stretches it to a server requested
// delay, capped at RetryAfterMax.
func (e *Executor) nextWait(backoff, retryAfter time.Duration) time.Duration {
	wait := e.jitter(min(backoff, e.cfg.RetryMaxBackoff))
	if retryAfter > wait {
		wait = min(retryAfter, e.cfg.RetryAfterMax)
	}
	return wait
}

// fitsDeadline reports whether another attempt can start before ctx
// expires.
func fitsDeadline(ctx context.Context, wait time.Duration) bool {
	deadline, ok := ctx.Deadline()
	return !ok || time.Until(deadline) > wait
}

func sleep(ctx context.Context, wait time.Duration) bool {
	if wait <= 0 {
		return true
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// fractionJitter spreads a wait uniformly over [d*(1-f), d].
func fractionJitter(fraction float64) func(time.Duration) time.Duration {
	return func(d time.Duration) time.Duration {
		if fraction <= 0 || d <= 0 {
			return d
		}
		spread := time.Duration(float64(d) * fraction)
		if spread <= 0 {
			return d
		}
		return d - rand.N(spread+1)
	}
}

func durationMS(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}

func (e *Executor) breaker(dependency string, classifier ErrorClassifier) *gobreaker.CircuitBreaker[any] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cb, ok := e.breakers[dependency]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        dependency,
		MaxRequests: e.cfg.BreakerHalfOpenMaxCalls,
		Timeout:     e.cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < e.cfg.BreakerMinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= e.cfg.BreakerFailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !classifier(err).RecordFailure
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			e.logger.Warn("circuit_breaker_state_change", "dependency", name, "from", from.String(), "to", to.String())
		},
	})
	e.breakers[dependency] = cb
	return cb
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func defaultClassifier(error) ErrorClassification {
	return ErrorClassification{
		Retryable:     false,
		RecordFailure: true,
	}
}
