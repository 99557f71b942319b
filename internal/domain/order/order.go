package order

import (
	"context"
	"time"

	"github.com/cassiomorais/payouts/internal/domain/payout"
	"github.com/shopspring/decimal"
)

// Status is the order fulfilment state. Only StatusDelivered makes sellers payable.
type Status string

const (
	StatusPlaced    Status = "placed"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// Order is read-only here. Amounts are computed upstream.
type Order struct {
	ID          string
	Status      Status
	Currency    payout.Currency
	DeliveredAt *time.Time
	Items       []Item
}

// Item is one line of an order, owed to a single seller.
type Item struct {
	ID         string
	SellerID   string
	AmountDue  decimal.Decimal
	Commission decimal.Decimal
}

// IsDelivered reports whether the order is exactly in the delivered state.
func (o *Order) IsDelivered() bool {
	return o.Status == StatusDelivered
}

// SellerTotal is the aggregated amount owed to one seller for an order.
type SellerTotal struct {
	SellerID   string
	Amount     decimal.Decimal
	Commission decimal.Decimal
}

// TotalsBySeller groups items by seller in first-appearance order.
func (o *Order) TotalsBySeller() []SellerTotal {
	index := make(map[string]int)
	var totals []SellerTotal
	for _, it := range o.Items {
		i, ok := index[it.SellerID]
		if !ok {
			i = len(totals)
			index[it.SellerID] = i
			totals = append(totals, SellerTotal{SellerID: it.SellerID, Amount: decimal.Zero, Commission: decimal.Zero})
		}
		totals[i].Amount = totals[i].Amount.Add(it.AmountDue)
		totals[i].Commission = totals[i].Commission.Add(it.Commission)
	}
	return totals
}

// Repository defines read access to orders.
type Repository interface {
	// GetByID loads an order with its items
	GetByID(ctx context.Context, id string) (*Order, error)
}
