package providers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	domainErrors "github.com/cassiomorais/payouts/internal/domain/errors"
	"github.com/cassiomorais/payouts/internal/infrastructure/config"
	"github.com/rs/zerolog"
)

// New builds the provider named in cfg, wrapped in a circuit breaker.
// A real provider missing credentials falls back to the simulated one.
func New(cfg *config.ProviderConfig, logger zerolog.Logger, onChange StateObserver) (Provider, error) {
	p, err := build(cfg)
	if err != nil {
		if !errors.Is(err, domainErrors.ErrProviderMisconfigured) || cfg.Name == NameSimulated {
			return nil, err
		}
		logger.Warn().Err(err).
			Str("provider", cfg.Name).
			Msg("provider misconfigured, falling back to simulated provider")
		p = newSimulated(cfg.Simulated)
	}

	logger.Info().Str("provider", p.Name()).Msg("payout provider selected")
	return NewBreakerProvider(p, cfg.Breaker, onChange), nil
}

func build(cfg *config.ProviderConfig) (Provider, error) {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	switch cfg.Name {
	case NameSimulated, "":
		return newSimulated(cfg.Simulated), nil
	case NameNetopia:
		return NewNetopiaProvider(cfg.Netopia, client)
	case NameBankTransfer:
		return NewBankTransferProvider(cfg.BankTransfer, client)
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Name)
	}
}

func newSimulated(cfg config.SimulatedProviderConfig) *SimulatedProvider {
	return NewSimulatedProvider(
		WithLatency(cfg.Latency),
		WithRejectionRate(cfg.RejectionRate),
		WithTimeoutRate(cfg.TimeoutRate),
	)
}
