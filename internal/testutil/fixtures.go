package testutil

import (
	"time"

	"github.com/cassiomorais/payouts/internal/domain/order"
	"github.com/cassiomorais/payouts/internal/domain/payout"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Dec parses a decimal literal and panics on bad input.
func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func NewTestPayout(sellerID, orderID, amount string, currency payout.Currency) *payout.Payout {
	now := time.Now().UTC()
	return &payout.Payout{
		ID:               uuid.New(),
		SellerID:         sellerID,
		OrderID:          orderID,
		Amount:           Dec(amount),
		CommissionAmount: decimal.Zero,
		Currency:         currency,
		Status:           payout.StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func NewPaidPayout(sellerID, orderID, amount, ref string) *payout.Payout {
	p := NewTestPayout(sellerID, orderID, amount, payout.CurrencyRON)
	paidAt := time.Now().UTC()
	p.Status = payout.StatusPaid
	p.ProviderRef = &ref
	p.PaidAt = &paidAt
	return p
}

func NewFailedPayout(sellerID, orderID, amount, reason string) *payout.Payout {
	p := NewTestPayout(sellerID, orderID, amount, payout.CurrencyRON)
	p.Status = payout.StatusFailed
	p.FailureReason = &reason
	return p
}

// NewDeliveredOrder builds a delivered order. Items are seller, amount due, commission triples.
func NewDeliveredOrder(id string, currency payout.Currency, items ...[3]string) *order.Order {
	delivered := time.Now().UTC().Add(-48 * time.Hour)
	o := &order.Order{
		ID:          id,
		Status:      order.StatusDelivered,
		Currency:    currency,
		DeliveredAt: &delivered,
	}
	for i, it := range items {
		o.Items = append(o.Items, order.Item{
			ID:         id + "-" + string(rune('a'+i)),
			SellerID:   it[0],
			AmountDue:  Dec(it[1]),
			Commission: Dec(it[2]),
		})
	}
	return o
}
