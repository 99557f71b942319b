package providers

import (
	"context"
	"errors"
	"time"

	domainErrors "github.com/cassiomorais/payouts/internal/domain/errors"
	"github.com/cassiomorais/payouts/internal/infrastructure/config"
	"github.com/sony/gobreaker/v2"
)

// StateObserver is notified when a provider's circuit breaker changes state.
type StateObserver func(provider string, from, to gobreaker.State)

// BreakerProvider wraps a provider in a circuit breaker. Only transient
// failures count against the breaker; rejections are business outcomes.
type BreakerProvider struct {
	next    Provider
	breaker *gobreaker.CircuitBreaker[*Result]
}

func NewBreakerProvider(next Provider, cfg config.BreakerConfig, onChange StateObserver) *BreakerProvider {
	minRequests := cfg.MinRequests
	if minRequests == 0 {
		minRequests = 10
	}
	ratio := cfg.FailureRatio
	if ratio <= 0 {
		ratio = 0.6
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        next.Name(),
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= minRequests && failureRatio >= ratio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !IsRetryable(err)
		},
	}
	if onChange != nil {
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			onChange(name, from, to)
		}
	}

	return &BreakerProvider{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker[*Result](settings),
	}
}

func (p *BreakerProvider) Name() string { return p.next.Name() }

// State exposes the breaker state for health reporting.
func (p *BreakerProvider) State() gobreaker.State { return p.breaker.State() }

func (p *BreakerProvider) Send(ctx context.Context, in Instruction) (*Result, error) {
	res, err := p.breaker.Execute(func() (*Result, error) {
		return p.next.Send(ctx, in)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, domainErrors.NewTransientError(p.next.Name(), "circuit breaker open", 0, err)
	}
	return res, err
}
