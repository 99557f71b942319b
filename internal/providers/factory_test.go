package providers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/payouts/internal/domain/errors"
	"github.com/cassiomorais/payouts/internal/infrastructure/config"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Simulated(t *testing.T) {
	p, err := New(&config.ProviderConfig{Name: NameSimulated}, zerolog.Nop(), nil)
	require.NoError(t, err)

	assert.Equal(t, NameSimulated, p.Name())
	assert.IsType(t, &BreakerProvider{}, p)
}

func TestNew_MisconfiguredFallsBackToSimulated(t *testing.T) {
	for _, name := range []string{NameNetopia, NameBankTransfer} {
		t.Run(name, func(t *testing.T) {
			p, err := New(&config.ProviderConfig{Name: name}, zerolog.Nop(), nil)
			require.NoError(t, err)
			assert.Equal(t, NameSimulated, p.Name())
		})
	}
}

func TestNew_ConfiguredNetopia(t *testing.T) {
	p, err := New(&config.ProviderConfig{
		Name:    NameNetopia,
		Netopia: config.NetopiaConfig{BaseURL: "https://sandbox.netopia.example", APIKey: "k"},
	}, zerolog.Nop(), nil)
	require.NoError(t, err)
	assert.Equal(t, NameNetopia, p.Name())
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(&config.ProviderConfig{Name: "paypal"}, zerolog.Nop(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}

type scriptedProvider struct {
	mu    sync.Mutex
	calls int
	errs  []error
}

func (s *scriptedProvider) Name() string { return "scripted" }

func (s *scriptedProvider) Send(ctx context.Context, in Instruction) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	return &Result{ProviderReference: "ok"}, nil
}

func TestBreakerProvider_OpensOnTransientFailures(t *testing.T) {
	transient := domainErrors.NewTransientError("scripted", "down", 503, nil)
	inner := &scriptedProvider{errs: []error{transient, transient, transient}}

	var transitions []gobreaker.State
	p := NewBreakerProvider(inner, config.BreakerConfig{MinRequests: 3, FailureRatio: 0.5, Timeout: time.Minute},
		func(name string, from, to gobreaker.State) { transitions = append(transitions, to) })

	for i := 0; i < 3; i++ {
		_, err := p.Send(context.Background(), testInstruction())
		require.ErrorIs(t, err, domainErrors.ErrProviderTransient)
	}
	assert.Equal(t, gobreaker.StateOpen, p.State())
	assert.Equal(t, []gobreaker.State{gobreaker.StateOpen}, transitions)

	_, err := p.Send(context.Background(), testInstruction())
	require.ErrorIs(t, err, domainErrors.ErrProviderTransient)
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
	assert.Equal(t, 3, inner.calls)
}

func TestBreakerProvider_RejectionsDoNotTrip(t *testing.T) {
	rejected := domainErrors.NewRejectedError("scripted", "declined", 422)
	inner := &scriptedProvider{errs: []error{rejected, rejected, rejected, rejected}}
	p := NewBreakerProvider(inner, config.BreakerConfig{MinRequests: 2, FailureRatio: 0.5}, nil)

	for i := 0; i < 4; i++ {
		_, err := p.Send(context.Background(), testInstruction())
		require.ErrorIs(t, err, domainErrors.ErrProviderRejected)
	}
	assert.Equal(t, gobreaker.StateClosed, p.State())
	assert.Equal(t, 4, inner.calls)
}
