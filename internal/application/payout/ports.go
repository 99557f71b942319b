package payout

import (
	"context"
	"time"

	"github.com/cassiomorais/payouts/internal/domain/outbox"
)

// TransactionManager defines the interface for transaction management.
// This is an application-layer port, not a domain concern.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// OutboxWriter defines the interface for writing to the transactional outbox.
type OutboxWriter interface {
	Insert(ctx context.Context, entry *outbox.Entry) error
}

// Lock is a held per-payout lock.
type Lock interface {
	Extend(ctx context.Context, ttl time.Duration) error
	Release(ctx context.Context) error
}

// Locker acquires a lock for key or fails with ErrLockAcquisitionFailed when it is held elsewhere.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

// LockerFunc adapts a function to Locker.
type LockerFunc func(ctx context.Context, key string, ttl time.Duration) (Lock, error)

func (f LockerFunc) Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	return f(ctx, key, ttl)
}

// Metrics receives payout instrumentation. *observability.Metrics implements it.
type Metrics interface {
	PayoutStarted()
	PayoutFinished(status string, d time.Duration)
	ProviderAttempt(provider, outcome string)
	ProviderRetry(provider string)
	LedgerRepaired()
	StaleProcessing(n int)
	BatchFinished(result string, outcomes map[string]int, d time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) PayoutStarted() {}
func (nopMetrics) PayoutFinished(string, time.Duration) {}
func (nopMetrics) ProviderAttempt(string, string) {}
func (nopMetrics) ProviderRetry(string) {}
func (nopMetrics) LedgerRepaired() {}
func (nopMetrics) StaleProcessing(int) {}
func (nopMetrics) BatchFinished(string, map[string]int, time.Duration) {}

func metricsOrNop(m Metrics) Metrics {
	if m == nil {
		return nopMetrics{}
	}
	return m
}
