package ledger

import (
	"context"

	"github.com/google/uuid"
)

// Repository is append-only. There is no update or delete.
type Repository interface {
	// Append inserts an entry. A second payout entry for the same payout fails with ErrLedgerEntryExists.
	Append(ctx context.Context, entry *Entry) error

	// ListByEntity returns the entries recorded for an entity, oldest first
	ListByEntity(ctx context.Context, entityType EntityType, entityID uuid.UUID) ([]*Entry, error)
}
