package ledger

import (
	"time"

	"github.com/cassiomorais/payouts/internal/domain/errors"
	"github.com/cassiomorais/payouts/internal/domain/payout"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntryType classifies a ledger movement.
type EntryType string

const (
	TypePayout EntryType = "payout"
)

// EntityType names the kind of record an entry belongs to.
type EntityType string

const (
	EntityPayout EntityType = "payout"
)

// Entry is an immutable record of money moving. Negative amounts leave the platform.
type Entry struct {
	ID         uuid.UUID
	Type       EntryType
	EntityType EntityType
	EntityID   uuid.UUID
	Amount     decimal.Decimal
	Currency   payout.Currency
	Meta       map[string]string
	CreatedAt  time.Time
}

// NewPayoutEntry builds the single entry recorded when a payout becomes paid.
func NewPayoutEntry(p *payout.Payout) (*Entry, error) {
	if p.Status != payout.StatusPaid {
		return nil, errors.NewDomainError(
			"payout_not_paid",
			"ledger entry requires a paid payout, got "+string(p.Status),
			errors.ErrInvalidStateTransition,
		)
	}
	if !p.Amount.IsPositive() {
		return nil, errors.NewValidationError("amount", "must be greater than 0")
	}

	return &Entry{
		ID:         uuid.New(),
		Type:       TypePayout,
		EntityType: EntityPayout,
		EntityID:   p.ID,
		Amount:     p.Amount.Neg(),
		Currency:   p.Currency,
		Meta: map[string]string{
			"seller_id":    p.SellerID,
			"order_id":     p.OrderID,
			"provider_ref": p.ProviderRefValue(),
		},
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Sum adds the amounts of entries.
func Sum(entries []*Entry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Amount)
	}
	return total
}
