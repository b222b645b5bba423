package patientcode

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/erlaaaand/dentizy/apperror"
	"github.com/erlaaaand/dentizy/clock"
	"github.com/erlaaaand/dentizy/metrics"
	"github.com/erlaaaand/dentizy/store"
	"github.com/erlaaaand/dentizy/transaction"
	"go.uber.org/zap"
)

// PersistFunc writes the row owning code inside the transaction that reserved it.
type PersistFunc func(ctx context.Context, tx store.Tx, code string) error

// DailyStatistics summarizes code usage for one calendar day.
type DailyStatistics struct {
	Date       string  `json:"date"`
	Total      int64   `json:"total"`
	Remaining  int64   `json:"remaining"`
	Percentage float64 `json:"percentage"`
}

// Allocator hands out unique, gap-tolerant, monotonically increasing codes
// per day. Uniqueness rests on the row lock taken by Tx.LockAndQueryLatest.
type Allocator struct {
	store    store.Store
	executor *transaction.Executor
	clock    clock.Clock
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

type Option func(*Allocator)

func WithLogger(logger *zap.Logger) Option {
	return func(a *Allocator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Allocator) { a.metrics = m }
}

func NewAllocator(s store.Store, executor *transaction.Executor, clk clock.Clock, opts ...Option) *Allocator {
	if clk == nil {
		clk = clock.System{}
	}
	a := &Allocator{
		store:    s,
		executor: executor,
		clock:    clk,
		logger:   zap.L(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(zap.String("component", "patientcode"))
	return a
}

// ErrPersistRequired is returned when Generate or Claim is called without a
// persist step. A code only counts as issued once its owning row is written.
var ErrPersistRequired = errors.New("patientcode: persist step is required")

// errCodeNotStored marks a persist step that returned without writing the code.
var errCodeNotStored = errors.New("persist step did not store the patient code")

// Generate reserves the next code for today and runs persist in the same
// transaction while the lock is still held. The whole unit is retried on
// transient database failures.
func (a *Allocator) Generate(ctx context.Context, persist PersistFunc) (string, error) {
	if persist == nil {
		return "", ErrPersistRequired
	}
	code, err := transaction.Run(ctx, a.executor, func(ctx context.Context, tx store.Tx) (string, error) {
		code, err := a.Next(ctx, tx)
		if err != nil {
			return "", err
		}
		if err := persistAndVerify(ctx, tx, code, persist); err != nil {
			return "", err
		}
		return code, nil
	})
	if err != nil {
		return "", err
	}

	_, seq, _ := Parse(code)
	a.metrics.ObserveCodeIssued(seq)
	a.logger.Info("patient code issued", zap.String("code", code))
	return code, nil
}

// Claim stores a caller chosen code under the same date lock Generate takes.
// Codes dated after today, and codes for today at or above the next sequence
// Generate would hand out, are rejected so manual entries never move the
// daily counter.
func (a *Allocator) Claim(ctx context.Context, code string, persist PersistFunc) error {
	if persist == nil {
		return ErrPersistRequired
	}
	_, seq, ok := Parse(code)
	if !ok {
		return apperror.Validation("patient_code %q is not a valid YYYYMMDD-SSS code", code)
	}
	datePrefix := code[:len(DateLayout)]

	err := a.executor.Run(ctx, func(ctx context.Context, tx store.Tx) error {
		latest, found, err := tx.LockAndQueryLatest(ctx, datePrefix)
		if err != nil {
			return fmt.Errorf("lock latest code for %s: %w", datePrefix, err)
		}

		today := DatePrefix(a.clock.Now())
		if datePrefix > today {
			return apperror.Validation("patient_code %s is dated in the future", code)
		}
		if datePrefix == today {
			next := 1
			if found {
				next, _ = nextSequence(latest)
			}
			if seq >= next {
				return apperror.Validation("patient_code %s has not been issued yet", code)
			}
		}

		existing, err := tx.FindPatientByCode(ctx, code)
		if err != nil {
			return fmt.Errorf("check patient code: %w", err)
		}
		if existing != nil {
			return apperror.Conflict("patient_code %s already registered", code)
		}
		return persistAndVerify(ctx, tx, code, persist)
	})
	if err != nil {
		return err
	}

	a.logger.Info("patient code claimed", zap.String("code", code))
	return nil
}

func persistAndVerify(ctx context.Context, tx store.Tx, code string, persist PersistFunc) error {
	if err := persist(ctx, tx, code); err != nil {
		return err
	}
	owner, err := tx.FindPatientByCode(ctx, code)
	if err != nil {
		return fmt.Errorf("verify patient code %s: %w", code, err)
	}
	if owner == nil {
		return fmt.Errorf("%w: %s", errCodeNotStored, code)
	}
	return nil
}

// Next computes the next code for today inside tx. Callers must commit tx
// with the owning row for the reservation to take effect.
func (a *Allocator) Next(ctx context.Context, tx store.Tx) (string, error) {
	datePrefix := DatePrefix(a.clock.Now())

	latest, found, err := tx.LockAndQueryLatest(ctx, datePrefix)
	if err != nil {
		return "", fmt.Errorf("lock latest code for %s: %w", datePrefix, err)
	}

	next := 1
	if found {
		var corrupt bool
		next, corrupt = nextSequence(latest)
		if corrupt {
			a.logger.Warn("latest patient code is malformed, restarting sequence",
				zap.String("date_prefix", datePrefix),
				zap.String("latest", latest),
			)
		}
	}

	if next > MaxSequence {
		a.metrics.ObserveCapacityExceeded()
		a.logger.Error("daily patient code capacity reached",
			zap.String("date_prefix", datePrefix),
			zap.Int("limit", MaxSequence),
		)
		return "", apperror.CapacityExceeded(datePrefix, MaxSequence)
	}
	return Format(datePrefix, next), nil
}

// GetDailyStatistics reports how many codes were issued on date. A zero date
// means today. The read takes no lock and may lag concurrent issuance.
func (a *Allocator) GetDailyStatistics(ctx context.Context, date time.Time) (DailyStatistics, error) {
	if date.IsZero() {
		date = a.clock.Now()
	}
	datePrefix := DatePrefix(date)

	total, err := a.store.CountCodesWithPrefix(ctx, datePrefix)
	if err != nil {
		return DailyStatistics{}, fmt.Errorf("daily statistics for %s: %w", datePrefix, err)
	}

	remaining := int64(MaxSequence) - total
	if remaining < 0 {
		remaining = 0
	}
	return DailyStatistics{
		Date:       datePrefix,
		Total:      total,
		Remaining:  remaining,
		Percentage: math.Round(float64(total)*100/MaxSequence*100) / 100,
	}, nil
}
