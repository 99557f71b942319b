package payout

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for payout persistence.
// Status changes go through compare-and-set methods only.
type Repository interface {
	// Create inserts a pending payout. Duplicate (order, seller) pairs fail with ErrPayoutAlreadyExists.
	Create(ctx context.Context, p *Payout) error

	// GetByID retrieves a payout by ID
	GetByID(ctx context.Context, id uuid.UUID) (*Payout, error)

	// ListByOrder returns the payouts of an order in creation order
	ListByOrder(ctx context.Context, orderID string) ([]*Payout, error)

	// TransitionStatus moves a payout from -> to. It reports false when no row was in `from`.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to Status) (bool, error)

	// MarkPaid moves a processing payout to paid with its provider reference
	MarkPaid(ctx context.Context, id uuid.UUID, providerRef string, paidAt time.Time) (bool, error)

	// MarkFailed moves a processing payout to failed with its reason
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error)

	// ListPendingDeliveredBefore selects pending payouts whose order was delivered at or before cutoff
	ListPendingDeliveredBefore(ctx context.Context, cutoff time.Time, limit int) ([]*Payout, error)

	// ListPaidWithoutLedger returns paid payouts that have no payout ledger entry
	ListPaidWithoutLedger(ctx context.Context, limit int) ([]*Payout, error)

	// ListStaleProcessing returns processing payouts last updated before the given time
	ListStaleProcessing(ctx context.Context, before time.Time, limit int) ([]*Payout, error)
}
