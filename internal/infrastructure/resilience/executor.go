package resilience

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrorClassification tells the executor what a failed call means: whether a
// retry can help, and whether the breaker should count it.
type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

type ErrorClassifier func(err error) ErrorClassification

var errNilCall = errors.New("resilience: operation callback is nil")

// Executor guards named operations. Each operation gets its own breaker, created
// on first use; every call through it is retried on the configured schedule.
type Executor struct {
	cfg      Config
	backoff  backoffSchedule
	breakers sync.Map
}

func NewExecutor(cfg Config) *Executor {
	cfg = cfg.normalize()
	return &Executor{
		cfg: cfg,
		backoff: backoffSchedule{
			initial:    cfg.RetryInitialBackoff,
			ceiling:    cfg.RetryMaxBackoff,
			multiplier: cfg.RetryMultiplier,
		},
	}
}

func (e *Executor) Execute(ctx context.Context, operation string, fn func(context.Context) error, classify ErrorClassifier) error {
	if fn == nil {
		return errNilCall
	}
	if classify == nil {
		classify = countEveryFailure
	}
	operation = strings.TrimSpace(operation)
	if operation == "" {
		operation = "unknown"
	}

	attempts := func() error {
		return e.retry(ctx, operation, fn, classify)
	}
	if !e.cfg.BreakerEnabled {
		return attempts()
	}
	_, err := e.breakerFor(operation, classify).Execute(func() (struct{}, error) {
		return struct{}{}, attempts()
	})
	return err
}

func (e *Executor) retry(ctx context.Context, operation string, fn func(context.Context) error, classify ErrorClassifier) error {
	var lastErr error
	for attempt := 1; attempt <= e.cfg.RetryMaxAttempts; attempt++ {
		if attempt > 1 {
			delay := e.backoff.before(attempt)
			slog.Warn("retry_attempt",
				"operation", operation,
				"attempt", attempt,
				"max_attempts", e.cfg.RetryMaxAttempts,
				"backoff_ms", delay.Milliseconds(),
				"error", lastErr,
			)
			if !sleep(ctx, delay) {
				return lastErr
			}
		}
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil || !classify(lastErr).Retryable {
			return lastErr
		}
	}
	return lastErr
}

func (e *Executor) breakerFor(operation string, classify ErrorClassifier) *gobreaker.CircuitBreaker[struct{}] {
	if existing, ok := e.breakers.Load(operation); ok {
		return existing.(*gobreaker.CircuitBreaker[struct{}])
	}
	created := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        operation,
		MaxRequests: e.cfg.BreakerHalfOpenMaxCalls,
		Timeout:     e.cfg.BreakerOpenTimeout,
		ReadyToTrip: e.tripWhenFailing,
		IsSuccessful: func(err error) bool {
			return err == nil || !classify(err).RecordFailure
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit_breaker_state_change", "operation", name, "from", from.String(), "to", to.String())
		},
	})
	actual, _ := e.breakers.LoadOrStore(operation, created)
	return actual.(*gobreaker.CircuitBreaker[struct{}])
}

// tripWhenFailing opens the breaker once enough calls were seen and the share
// of failures among them reaches the configured ratio.
func (e *Executor) tripWhenFailing(counts gobreaker.Counts) bool {
	if counts.Requests == 0 || counts.Requests < e.cfg.BreakerMinRequests {
		return false
	}
	return float64(counts.TotalFailures) >= e.cfg.BreakerFailureRatio*float64(counts.Requests)
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func countEveryFailure(error) ErrorClassification {
	return ErrorClassification{RecordFailure: true}
}

// backoffSchedule grows the wait geometrically from initial, capped at ceiling.
type backoffSchedule struct {
	initial    time.Duration
	ceiling    time.Duration
	multiplier float64
}

// before returns the wait ahead of the given attempt; attempt 2 waits initial.
func (b backoffSchedule) before(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	wait := float64(b.initial) * math.Pow(b.multiplier, float64(attempt-2))
	if wait >= float64(b.ceiling) {
		return b.ceiling
	}
	return time.Duration(wait)
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
