package providers

import (
	"context"
	"errors"

	domainErrors "github.com/cassiomorais/payouts/internal/domain/errors"
	"github.com/cassiomorais/payouts/internal/domain/payout"
	"github.com/shopspring/decimal"
)

const (
	NameSimulated    = "simulated"
	NameNetopia      = "netopia"
	NameBankTransfer = "bank_transfer"
)

// Instruction is the money-movement request sent to a provider.
type Instruction struct {
	PayoutID  string
	SellerID  string
	Amount    decimal.Decimal
	Currency  payout.Currency
	Reference string
}

// InstructionFor builds the instruction for a payout.
func InstructionFor(p *payout.Payout) Instruction {
	return Instruction{
		PayoutID:  p.ID.String(),
		SellerID:  p.SellerID,
		Amount:    p.Amount,
		Currency:  p.Currency,
		Reference: p.Reference(),
	}
}

// Result is returned when the provider accepted the instruction.
type Result struct {
	ProviderReference string
}

// Provider moves money to a seller. Failures are *errors.ProviderError.
type Provider interface {
	// Name returns the provider name.
	Name() string
	// Send dispatches one payout instruction.
	Send(ctx context.Context, in Instruction) (*Result, error)
}

// IsRetryable reports whether err is worth another attempt.
// It depends only on the error value.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, domainErrors.ErrProviderTransient) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled)
}

// FailureReason extracts the human readable reason recorded on a failed payout.
func FailureReason(err error) string {
	var pe *domainErrors.ProviderError
	if errors.As(err, &pe) && pe.Reason != "" {
		if pe.Kind == domainErrors.KindRejected {
			return pe.Reason
		}
		return pe.Error()
	}
	return err.Error()
}
