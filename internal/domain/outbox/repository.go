package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists alert events written alongside payout transitions.
type Repository interface {
	// Insert adds an event. A repeat of the same event for the same payout is ignored.
	Insert(ctx context.Context, entry *Entry) error

	// ClaimPending locks up to limit pending events, oldest first, for the calling transaction
	ClaimPending(ctx context.Context, limit int) ([]*Entry, error)

	// MarkPublished records delivery to the alert stream
	MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error

	// RecordPublishFailure keeps the cause and gives up on the event once its retries run out
	RecordPublishFailure(ctx context.Context, id uuid.UUID, cause string) error
}
