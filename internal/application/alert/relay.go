package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/cassiomorais/payouts/internal/domain/outbox"
	"github.com/rs/zerolog"
)

// TransactionManager defines the interface for transaction management.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Publisher delivers an outbox entry to the alert stream.
type Publisher interface {
	Publish(ctx context.Context, entry *outbox.Entry) error
}

// RelayOutboxUseCase moves pending outbox entries onto the alert stream.
type RelayOutboxUseCase struct {
	txManager  TransactionManager
	outboxRepo outbox.Repository
	publisher  Publisher
	batchSize  int
	logger     zerolog.Logger
}

// NewRelayOutboxUseCase creates a new RelayOutboxUseCase.
func NewRelayOutboxUseCase(txManager TransactionManager, outboxRepo outbox.Repository, publisher Publisher, batchSize int, logger zerolog.Logger) *RelayOutboxUseCase {
	return &RelayOutboxUseCase{
		txManager:  txManager,
		outboxRepo: outboxRepo,
		publisher:  publisher,
		batchSize:  batchSize,
		logger:     logger.With().Str("component", "outbox_relay").Logger(),
	}
}

// Execute publishes one batch and returns how many entries were published.
// An entry that fails to publish stays pending until its retries run out.
func (uc *RelayOutboxUseCase) Execute(ctx context.Context) (int, error) {
	published := 0
	err := uc.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		entries, err := uc.outboxRepo.ClaimPending(txCtx, uc.batchSize)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if err := uc.publisher.Publish(ctx, entry); err != nil {
				uc.logger.Error().Err(err).
					Str("outbox_id", entry.ID.String()).
					Str("event_type", entry.EventType).
					Msg("Failed to publish outbox event")
				if err := uc.outboxRepo.RecordPublishFailure(txCtx, entry.ID, err.Error()); err != nil {
					return err
				}
				continue
			}
			if err := uc.outboxRepo.MarkPublished(txCtx, entry.ID, time.Now().UTC()); err != nil {
				return err
			}
			published++
		}
		return nil
	})
	if err != nil {
		return published, fmt.Errorf("relay outbox: %w", err)
	}
	return published, nil
}
