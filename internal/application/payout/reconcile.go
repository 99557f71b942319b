package payout

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/payouts/internal/domain/errors"
	"github.com/cassiomorais/payouts/internal/domain/ledger"
	"github.com/cassiomorais/payouts/internal/domain/payout"
	"github.com/rs/zerolog"
)

// ReconcileLedgerUseCase writes the missing ledger entry of paid payouts and
// reports payouts left in processing past staleAfter.
type ReconcileLedgerUseCase struct {
	payoutRepo payout.Repository
	ledgerRepo ledger.Repository
	limit      int
	staleAfter time.Duration
	metrics    Metrics
	logger     zerolog.Logger
	now        func() time.Time
}

// NewReconcileLedgerUseCase creates a new ReconcileLedgerUseCase. staleAfter is
// normally the payout lock TTL: no runner can still own a payout older than that.
func NewReconcileLedgerUseCase(payoutRepo payout.Repository, ledgerRepo ledger.Repository, limit int, staleAfter time.Duration, metrics Metrics, logger zerolog.Logger) *ReconcileLedgerUseCase {
	if staleAfter <= 0 {
		staleAfter = 2 * time.Minute
	}
	return &ReconcileLedgerUseCase{
		payoutRepo: payoutRepo,
		ledgerRepo: ledgerRepo,
		limit:      limit,
		staleAfter: staleAfter,
		metrics:    metricsOrNop(metrics),
		logger:     logger.With().Str("component", "ledger_reconciler").Logger(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Execute returns the number of entries written.
func (uc *ReconcileLedgerUseCase) Execute(ctx context.Context) (int, error) {
	missing, err := uc.payoutRepo.ListPaidWithoutLedger(ctx, uc.limit)
	if err != nil {
		return 0, fmt.Errorf("list paid payouts without ledger: %w", err)
	}

	repaired := 0
	var errs []error
	for _, p := range missing {
		entry, err := ledger.NewPayoutEntry(p)
		if err != nil {
			errs = append(errs, fmt.Errorf("payout %s: %w", p.ID, err))
			continue
		}
		if err := uc.ledgerRepo.Append(ctx, entry); err != nil {
			if errors.Is(err, domainErrors.ErrLedgerEntryExists) {
				continue
			}
			errs = append(errs, fmt.Errorf("payout %s: %w", p.ID, err))
			continue
		}
		repaired++
		uc.metrics.LedgerRepaired()
		uc.logger.Warn().
			Str("payout_id", p.ID.String()).
			Str("amount", entry.Amount.StringFixed(2)).
			Msg("Ledger entry repaired for paid payout")
	}

	if err := uc.reportStale(ctx); err != nil {
		errs = append(errs, err)
	}
	return repaired, errors.Join(errs...)
}

// reportStale flags processing payouts whose outcome was never recorded.
// They need an operator to check the provider before anything moves them.
func (uc *ReconcileLedgerUseCase) reportStale(ctx context.Context) error {
	before := uc.now().Add(-uc.staleAfter)
	stale, err := uc.payoutRepo.ListStaleProcessing(ctx, before, uc.limit)
	if err != nil {
		return fmt.Errorf("list stale processing payouts: %w", err)
	}

	uc.metrics.StaleProcessing(len(stale))
	for _, p := range stale {
		uc.logger.Error().
			Str("payout_id", p.ID.String()).
			Str("seller_id", p.SellerID).
			Str("amount", p.Amount.StringFixed(2)).
			Time("updated_at", p.UpdatedAt).
			Msg("Payout stuck in processing")
	}
	return nil
}
