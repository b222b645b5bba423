// Package transaction runs units of work inside database transactions and
// retries them when the database reports a transient failure.
package transaction

import (
	"context"
	"time"

	"github.com/erlaaaand/dentizy/apperror"
	"github.com/erlaaaand/dentizy/metrics"
	"github.com/erlaaaand/dentizy/store"
	"go.uber.org/zap"
)

const (
	// MaxAttempts is the hard cap on transactions opened per Run.
	MaxAttempts = 5
	BaseBackoff = 100 * time.Millisecond
	MaxBackoff  = 1000 * time.Millisecond
)

// UnitFunc is the work executed inside one transaction attempt.
type UnitFunc func(ctx context.Context, tx store.Tx) error

// Attempt describes one try of the retry loop. It is never persisted.
type Attempt struct {
	Number    int
	Err       error
	Retryable bool
}

// Executor opens a transaction per attempt, commits on success and rolls back
// on failure, retrying transient failures with capped exponential backoff.
type Executor struct {
	beginner    store.Beginner
	maxAttempts int
	sleep       func(ctx context.Context, d time.Duration) error
	logger      *zap.Logger
	metrics     *metrics.Metrics
	observe     func(Attempt)
}

// Option configures an Executor.
type Option func(*Executor)

func WithLogger(logger *zap.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithMaxAttempts lowers the attempt cap. Values outside 1..MaxAttempts are ignored.
func WithMaxAttempts(n int) Option {
	return func(e *Executor) {
		if n >= 1 && n <= MaxAttempts {
			e.maxAttempts = n
		}
	}
}

// WithSleep replaces the backoff sleep.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) {
		if sleep != nil {
			e.sleep = sleep
		}
	}
}

// WithAttemptObserver registers a callback invoked after every attempt.
func WithAttemptObserver(fn func(Attempt)) Option {
	return func(e *Executor) { e.observe = fn }
}

func NewExecutor(beginner store.Beginner, opts ...Option) *Executor {
	e := &Executor{
		beginner:    beginner,
		maxAttempts: MaxAttempts,
		sleep:       sleepContext,
		logger:      zap.L(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes unit until it commits, fails with a business rule error, or
// the retry budget is spent. Business rule errors are returned unchanged;
// every other failure becomes apperror.OperationFailed.
func (e *Executor) Run(ctx context.Context, unit UnitFunc) error {
	log := e.logger.With(zap.String("component", "transaction"))

	for attempt := 1; ; attempt++ {
		err := e.attempt(ctx, unit)
		if err == nil {
			e.record(Attempt{Number: attempt}, metrics.AttemptOutcomeCommitted)
			return nil
		}

		if apperror.IsBusinessRule(err) {
			e.record(Attempt{Number: attempt, Err: err}, metrics.AttemptOutcomeBusinessRule)
			return err
		}

		reason := Classify(err)
		retryable := reason != ReasonUnknown
		if !retryable || attempt >= e.maxAttempts || ctx.Err() != nil {
			e.record(Attempt{Number: attempt, Err: err, Retryable: retryable}, metrics.AttemptOutcomeFailed)
			log.Error("transaction failed",
				zap.Int("attempt", attempt),
				zap.Bool("retryable", retryable),
				zap.String("reason", string(reason)),
				zap.Error(err),
			)
			return apperror.OperationFailed(attempt)
		}

		delay := Backoff(attempt)
		e.record(Attempt{Number: attempt, Err: err, Retryable: true}, metrics.AttemptOutcomeRetried)
		e.metrics.ObserveRetry(string(reason), delay)
		log.Warn("retrying transaction",
			zap.Int("attempt", attempt),
			zap.String("reason", string(reason)),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)

		if err := e.sleep(ctx, delay); err != nil {
			log.Error("transaction retry aborted", zap.Int("attempt", attempt), zap.Error(err))
			return apperror.OperationFailed(attempt)
		}
	}
}

// Run is the typed form of Executor.Run. The result of the committed attempt is returned.
func Run[T any](ctx context.Context, e *Executor, unit func(ctx context.Context, tx store.Tx) (T, error)) (T, error) {
	var result T
	err := e.Run(ctx, func(ctx context.Context, tx store.Tx) error {
		v, err := unit(ctx, tx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// attempt runs unit in one transaction: one commit xor one rollback.
func (e *Executor) attempt(ctx context.Context, unit UnitFunc) error {
	tx, err := e.beginner.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
	}()

	if err := unit(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			e.logger.Warn("transaction rollback failed", zap.Error(rbErr))
		}
		return err
	}
	return tx.Commit()
}

func (e *Executor) record(a Attempt, outcome string) {
	e.metrics.ObserveAttempt(outcome)
	if e.observe != nil {
		e.observe(a)
	}
}

// Backoff returns the delay before retrying after the given attempt:
// min(100ms * 2^(attempt-1), 1s).
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := BaseBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= MaxBackoff {
			return MaxBackoff
		}
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
