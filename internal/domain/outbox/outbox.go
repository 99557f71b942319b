package outbox

import (
	"time"

	"github.com/cassiomorais/payouts/internal/domain/payout"
	"github.com/google/uuid"
)

const (
	AggregatePayout = "payout"

	EventPayoutFailed = "payout.failed"
)

type Entry struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	Payload       map[string]any
	Status        Status
	RetryCount    int
	MaxRetries    int
	LastError     string
	CreatedAt     time.Time
	PublishedAt   *time.Time
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusPublished Status = "published"
	StatusFailed    Status = "failed"
)

func NewEntry(aggregateType string, aggregateID uuid.UUID, eventType string, payload map[string]any) *Entry {
	return &Entry{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
		Status:        StatusPending,
		RetryCount:    0,
		MaxRetries:    5,
		CreatedAt:     time.Now().UTC(),
	}
}

// NewPayoutFailed builds the alert event written alongside a failed transition.
func NewPayoutFailed(p *payout.Payout, reason string, at time.Time) *Entry {
	return NewEntry(AggregatePayout, p.ID, EventPayoutFailed, map[string]any{
		"payout_id": p.ID.String(),
		"seller_id": p.SellerID,
		"order_id":  p.OrderID,
		"amount":    p.Amount.StringFixed(2),
		"currency":  string(p.Currency),
		"reason":    reason,
		"failed_at": at.UTC().Format(time.RFC3339),
	})
}
