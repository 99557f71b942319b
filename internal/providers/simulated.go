package providers

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	domainErrors "github.com/cassiomorais/payouts/internal/domain/errors"
	"github.com/google/uuid"
)

// SimulatedProvider accepts instructions after a random delay of one to two times
// its latency and fails at configured rates.
// A reference that was already accepted returns the same provider reference.
type SimulatedProvider struct {
	latency       time.Duration
	rejectionRate float64 // 0.0 to 1.0
	timeoutRate   float64 // 0.0 to 1.0

	mu       sync.Mutex
	accepted map[string]string
}

type SimulatedOption func(*SimulatedProvider)

func WithRejectionRate(rate float64) SimulatedOption {
	return func(p *SimulatedProvider) { p.rejectionRate = rate }
}

func WithLatency(d time.Duration) SimulatedOption {
	return func(p *SimulatedProvider) { p.latency = d }
}

func WithTimeoutRate(rate float64) SimulatedOption {
	return func(p *SimulatedProvider) { p.timeoutRate = rate }
}

func NewSimulatedProvider(opts ...SimulatedOption) *SimulatedProvider {
	p := &SimulatedProvider{
		latency:  100 * time.Millisecond,
		accepted: make(map[string]string),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *SimulatedProvider) Name() string { return NameSimulated }

func (p *SimulatedProvider) delay() time.Duration {
	if p.latency <= 0 {
		return 0
	}
	return p.latency + rand.N(p.latency)
}

func (p *SimulatedProvider) Send(ctx context.Context, in Instruction) (*Result, error) {
	select {
	case <-time.After(p.delay()):
	case <-ctx.Done():
		return nil, domainErrors.NewTransientError(NameSimulated, "request interrupted", 0, ctx.Err())
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if ref, ok := p.accepted[in.Reference]; ok {
		return &Result{ProviderReference: ref}, nil
	}

	if rand.Float64() < p.timeoutRate {
		return nil, domainErrors.NewTransientError(NameSimulated, "simulated gateway timeout", 504, nil)
	}

	if rand.Float64() < p.rejectionRate {
		return nil, domainErrors.NewRejectedError(NameSimulated, fmt.Sprintf("simulated rejection for %s", in.Reference), 0)
	}

	ref := "sim_" + uuid.New().String()[:8]
	p.accepted[in.Reference] = ref
	return &Result{ProviderReference: ref}, nil
}
