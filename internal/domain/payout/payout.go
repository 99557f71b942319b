package payout

import (
	"fmt"
	"time"

	"github.com/cassiomorais/payouts/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Currency is an ISO code from the closed set of payable currencies.
type Currency string

const (
	CurrencyRON Currency = "RON"
	CurrencyEUR Currency = "EUR"
)

// SupportedCurrencies lists every currency a payout may be made in.
var SupportedCurrencies = []Currency{CurrencyRON, CurrencyEUR}

// IsSupported reports whether c belongs to the closed currency set.
func (c Currency) IsSupported() bool {
	for _, s := range SupportedCurrencies {
		if s == c {
			return true
		}
	}
	return false
}

// Status represents the payout status in the state machine
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusPaid       Status = "paid"
	StatusFailed     Status = "failed"
)

// ReferencePrefix prefixes the reference sent to providers for deduplication.
const ReferencePrefix = "PAYOUT-"

// Payout is an amount owed to one seller for one order.
type Payout struct {
	ID               uuid.UUID
	SellerID         string
	OrderID          string
	Amount           decimal.Decimal
	CommissionAmount decimal.Decimal
	Currency         Currency
	Status           Status
	ProviderRef      *string
	FailureReason    *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	PaidAt           *time.Time
}

// NewPayout creates a pending payout
func NewPayout(sellerID, orderID string, amount, commission decimal.Decimal, currency Currency) (*Payout, error) {
	if sellerID == "" {
		return nil, errors.NewValidationError("seller_id", "cannot be empty")
	}
	if orderID == "" {
		return nil, errors.NewValidationError("order_id", "cannot be empty")
	}

	now := time.Now().UTC()
	p := &Payout{
		ID:               uuid.New(),
		SellerID:         sellerID,
		OrderID:          orderID,
		Amount:           amount.Round(2),
		CommissionAmount: commission.Round(2),
		Currency:         currency,
		Status:           StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the fields a provider needs before money can move.
func (p *Payout) Validate() error {
	if !p.Amount.IsPositive() {
		return errors.NewValidationError("amount", "must be greater than 0")
	}
	if p.CommissionAmount.IsNegative() {
		return errors.NewValidationError("commission_amount", "cannot be negative")
	}
	if !p.Currency.IsSupported() {
		return errors.NewValidationError("currency", fmt.Sprintf("%q is not supported", p.Currency))
	}
	return nil
}

// Reference is the idempotency-bearing identifier sent to providers.
func (p *Payout) Reference() string {
	return ReferencePrefix + p.ID.String()
}

var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusPaid, StatusFailed},
	StatusPaid:       {},
	StatusFailed:     {},
}

// CanTransition reports whether the state machine has an edge from -> to.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// CanTransitionTo checks if the payout can transition to the given status
func (p *Payout) CanTransitionTo(newStatus Status) bool {
	return CanTransition(p.Status, newStatus)
}

// TransitionTo transitions the payout to a new status
func (p *Payout) TransitionTo(newStatus Status) error {
	if !p.CanTransitionTo(newStatus) {
		return errors.NewDomainError(
			"invalid_transition",
			"cannot transition from "+string(p.Status)+" to "+string(newStatus),
			errors.ErrInvalidStateTransition,
		)
	}

	p.Status = newStatus
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkProcessing transitions the payout to processing status
func (p *Payout) MarkProcessing() error {
	return p.TransitionTo(StatusProcessing)
}

// MarkPaid transitions the payout to paid and records the provider reference
func (p *Payout) MarkPaid(providerRef string, paidAt time.Time) error {
	if providerRef == "" {
		return errors.NewValidationError("provider_ref", "cannot be empty")
	}
	if err := p.TransitionTo(StatusPaid); err != nil {
		return err
	}
	p.ProviderRef = &providerRef
	p.PaidAt = &paidAt
	return nil
}

// MarkFailed transitions the payout to failed with the verbatim reason
func (p *Payout) MarkFailed(reason string) error {
	if err := p.TransitionTo(StatusFailed); err != nil {
		return err
	}
	p.FailureReason = &reason
	return nil
}

// IsTerminal checks if the payout is in a terminal state
func (p *Payout) IsTerminal() bool {
	return p.Status == StatusPaid || p.Status == StatusFailed
}

// ProviderRefValue returns the provider reference or "".
func (p *Payout) ProviderRefValue() string {
	if p.ProviderRef == nil {
		return ""
	}
	return *p.ProviderRef
}

// FailureReasonValue returns the failure reason or "".
func (p *Payout) FailureReasonValue() string {
	if p.FailureReason == nil {
		return ""
	}
	return *p.FailureReason
}
