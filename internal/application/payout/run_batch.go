package payout

import (
	"context"
	"fmt"
	"time"

	"github.com/cassiomorais/payouts/internal/domain/payout"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PayoutRunner runs a single payout. *RunPayoutUseCase implements it.
type PayoutRunner interface {
	Execute(ctx context.Context, payoutID uuid.UUID) (*Result, error)
}

// BatchSummary aggregates one batch run. Results keep selection order.
type BatchSummary struct {
	Cutoff     time.Time
	StartedAt  time.Time
	FinishedAt time.Time
	Selected   int
	Processed  int
	Succeeded  int
	Failed     int
	Skipped    int
	Cancelled  bool
	Results    []*Result
}

// Outcomes counts results by outcome label.
func (s *BatchSummary) Outcomes() map[string]int {
	return map[string]int{
		"paid":    s.Succeeded,
		"failed":  s.Failed,
		"skipped": s.Skipped,
	}
}

func (s *BatchSummary) add(r *Result) {
	s.Results = append(s.Results, r)
	switch {
	case r.InProgress:
		s.Skipped++
	case r.Status == payout.StatusPaid:
		s.Processed++
		s.Succeeded++
	default:
		s.Processed++
		s.Failed++
	}
}

// RunBatchUseCase runs every eligible pending payout for a cutoff.
type RunBatchUseCase struct {
	payoutRepo payout.Repository
	runner     PayoutRunner
	limit      int
	metrics    Metrics
	logger     zerolog.Logger
}

// NewRunBatchUseCase creates a new RunBatchUseCase. limit caps one selection.
func NewRunBatchUseCase(payoutRepo payout.Repository, runner PayoutRunner, limit int, metrics Metrics, logger zerolog.Logger) *RunBatchUseCase {
	return &RunBatchUseCase{
		payoutRepo: payoutRepo,
		runner:     runner,
		limit:      limit,
		metrics:    metricsOrNop(metrics),
		logger:     logger.With().Str("component", "payout_batch").Logger(),
	}
}

// Execute runs pending payouts whose order was delivered at or before cutoff, one at a time.
// Per-payout errors and panics become failed results. Only a failed selection returns an error.
func (uc *RunBatchUseCase) Execute(ctx context.Context, cutoff time.Time) (*BatchSummary, error) {
	summary := &BatchSummary{Cutoff: cutoff, StartedAt: time.Now().UTC()}

	candidates, err := uc.payoutRepo.ListPendingDeliveredBefore(ctx, cutoff, uc.limit)
	if err != nil {
		return nil, fmt.Errorf("select batch payouts: %w", err)
	}
	summary.Selected = len(candidates)

	uc.logger.Info().
		Time("cutoff", cutoff).
		Int("selected", summary.Selected).
		Msg("Batch run started")

	for _, p := range candidates {
		if ctx.Err() != nil {
			summary.Cancelled = true
			break
		}
		summary.add(uc.runOne(ctx, p))
	}

	summary.FinishedAt = time.Now().UTC()
	result := "completed"
	if summary.Cancelled {
		result = "cancelled"
	}
	uc.metrics.BatchFinished(result, summary.Outcomes(), summary.FinishedAt.Sub(summary.StartedAt))

	uc.logger.Info().
		Time("cutoff", cutoff).
		Int("processed", summary.Processed).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Bool("cancelled", summary.Cancelled).
		Dur("duration", summary.FinishedAt.Sub(summary.StartedAt)).
		Msg("Batch run finished")

	return summary, nil
}

func (uc *RunBatchUseCase) runOne(ctx context.Context, p *payout.Payout) (res *Result) {
	defer func() {
		if r := recover(); r != nil {
			uc.logger.Error().
				Str("payout_id", p.ID.String()).
				Interface("panic", r).
				Msg("Payout run panicked")
			res = failedResult(p, fmt.Sprintf("panic: %v", r))
		}
	}()

	res, err := uc.runner.Execute(ctx, p.ID)
	if err != nil {
		uc.logger.Error().Err(err).Str("payout_id", p.ID.String()).Msg("Payout run failed")
		reason := err.Error()
		if res != nil && res.FailureReason != "" {
			reason = res.FailureReason
		}
		return failedResult(p, reason)
	}
	if res == nil {
		return failedResult(p, "runner returned no result")
	}
	return res
}

func failedResult(p *payout.Payout, reason string) *Result {
	return &Result{
		PayoutID:      p.ID,
		SellerID:      p.SellerID,
		OrderID:       p.OrderID,
		Status:        payout.StatusFailed,
		FailureReason: reason,
	}
}
