package payout

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/payouts/internal/domain/errors"
	"github.com/cassiomorais/payouts/internal/domain/ledger"
	"github.com/cassiomorais/payouts/internal/domain/outbox"
	"github.com/cassiomorais/payouts/internal/domain/payout"
	"github.com/cassiomorais/payouts/internal/providers"
	"github.com/cassiomorais/payouts/pkg/retry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Result is the outcome of a single payout run.
type Result struct {
	PayoutID      uuid.UUID
	SellerID      string
	OrderID       string
	Status        payout.Status
	ProviderRef   string
	FailureReason string
	InProgress    bool
	Attempts      int
}

func resultFor(p *payout.Payout) *Result {
	return &Result{
		PayoutID:      p.ID,
		SellerID:      p.SellerID,
		OrderID:       p.OrderID,
		Status:        p.Status,
		ProviderRef:   p.ProviderRefValue(),
		FailureReason: p.FailureReasonValue(),
		InProgress:    p.Status == payout.StatusProcessing,
	}
}

// RunnerConfig tunes provider retries and the per-payout lock.
type RunnerConfig struct {
	Retry   retry.Config
	LockTTL time.Duration
}

// RunPayoutUseCase dispatches one pending payout to the provider and records the outcome.
type RunPayoutUseCase struct {
	payoutRepo payout.Repository
	ledgerRepo ledger.Repository
	outbox     OutboxWriter
	txManager  TransactionManager
	locker     Locker
	provider   providers.Provider
	cfg        RunnerConfig
	metrics    Metrics
	logger     zerolog.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

// NewRunPayoutUseCase creates a new RunPayoutUseCase.
func NewRunPayoutUseCase(
	payoutRepo payout.Repository,
	ledgerRepo ledger.Repository,
	outboxWriter OutboxWriter,
	txManager TransactionManager,
	locker Locker,
	provider providers.Provider,
	cfg RunnerConfig,
	metrics Metrics,
	logger zerolog.Logger,
) *RunPayoutUseCase {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	return &RunPayoutUseCase{
		payoutRepo: payoutRepo,
		ledgerRepo: ledgerRepo,
		outbox:     outboxWriter,
		txManager:  txManager,
		locker:     locker,
		provider:   provider,
		cfg:        cfg,
		metrics:    metricsOrNop(metrics),
		logger:     logger.With().Str("component", "payout_runner").Logger(),
		tracer:     otel.Tracer("payouts/runner"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Execute runs the payout with the given id.
//
// A paid payout returns its stored reference without dispatching. A processing
// payout, or one locked by another runner, returns InProgress. A failed payout
// returns its stored reason together with ErrPayoutAlreadyFailed.
func (uc *RunPayoutUseCase) Execute(ctx context.Context, payoutID uuid.UUID) (*Result, error) {
	ctx, span := uc.tracer.Start(ctx, "payout.run",
		trace.WithAttributes(attribute.String("payout.id", payoutID.String())))
	defer span.End()

	res, err := uc.execute(ctx, payoutID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if res != nil {
		span.SetAttributes(
			attribute.String("payout.status", string(res.Status)),
			attribute.Int("payout.attempts", res.Attempts),
		)
	}
	return res, err
}

func (uc *RunPayoutUseCase) execute(ctx context.Context, payoutID uuid.UUID) (*Result, error) {
	p, err := uc.payoutRepo.GetByID(ctx, payoutID)
	if err != nil {
		return nil, fmt.Errorf("load payout %s: %w", payoutID, err)
	}

	switch p.Status {
	case payout.StatusPaid, payout.StatusProcessing:
		return resultFor(p), nil
	case payout.StatusFailed:
		return resultFor(p), fmt.Errorf("payout %s: %w", p.ID, domainErrors.ErrPayoutAlreadyFailed)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}

	lock, err := uc.locker.Acquire(ctx, "payout:"+p.ID.String(), uc.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, domainErrors.ErrLockAcquisitionFailed) {
			uc.logger.Debug().Str("payout_id", p.ID.String()).Msg("Payout locked by another runner")
			return &Result{PayoutID: p.ID, SellerID: p.SellerID, OrderID: p.OrderID, Status: p.Status, InProgress: true}, nil
		}
		return nil, fmt.Errorf("acquire payout lock: %w", err)
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			uc.logger.Warn().Err(err).Str("payout_id", p.ID.String()).Msg("Failed to release payout lock")
		}
	}()

	claimed, err := uc.payoutRepo.TransitionStatus(ctx, p.ID, payout.StatusPending, payout.StatusProcessing)
	if err != nil {
		return nil, fmt.Errorf("claim payout: %w", err)
	}
	if !claimed {
		// Another runner moved it between our read and the compare-and-set.
		current, err := uc.payoutRepo.GetByID(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("reload payout %s: %w", p.ID, err)
		}
		res := resultFor(current)
		res.InProgress = !current.IsTerminal()
		return res, nil
	}
	if err := p.MarkProcessing(); err != nil {
		return nil, err
	}

	started := time.Now()
	uc.metrics.PayoutStarted()
	res, err := uc.dispatch(ctx, p, lock)
	status := string(p.Status)
	if err != nil {
		status = "error"
	}
	uc.metrics.PayoutFinished(status, time.Since(started))
	return res, err
}

// dispatch calls the provider through the retry executor and persists the terminal state.
// Once claimed, a payout is driven to paid or failed under its own deadline,
// independent of the caller's context.
func (uc *RunPayoutUseCase) dispatch(ctx context.Context, p *payout.Payout, lock Lock) (*Result, error) {
	name := uc.provider.Name()
	in := providers.InstructionFor(p)
	attempts := 0

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.cfg.LockTTL)
	defer cancel()

	cfg := uc.cfg.Retry
	cfg.OnRetry = func(n uint, err error) {
		uc.metrics.ProviderRetry(name)
		uc.logger.Warn().Err(err).
			Str("payout_id", p.ID.String()).
			Uint("attempt", n+1).
			Msg("Transient provider error, retrying")
		if err := lock.Extend(sendCtx, uc.cfg.LockTTL); err != nil {
			uc.logger.Warn().Err(err).Str("payout_id", p.ID.String()).Msg("Failed to extend payout lock")
		}
	}

	sent, sendErr := retry.DoWithResult(sendCtx, cfg, func(attemptCtx context.Context) (*providers.Result, error) {
		attempts++
		r, err := uc.provider.Send(attemptCtx, in)
		uc.metrics.ProviderAttempt(name, attemptOutcome(err))
		return r, err
	}, providers.IsRetryable)

	if sendErr == nil && (sent == nil || sent.ProviderReference == "") {
		sendErr = domainErrors.NewTransientError(name, "accepted without a provider reference", 0, nil)
	}

	writeCtx := context.WithoutCancel(ctx)
	var res *Result
	var err error
	if sendErr == nil {
		res, err = uc.markPaid(writeCtx, p, sent.ProviderReference)
	} else {
		res, err = uc.markFailed(writeCtx, p, providers.FailureReason(sendErr))
	}
	if res != nil {
		res.Attempts = attempts
	}
	return res, err
}

func (uc *RunPayoutUseCase) markPaid(ctx context.Context, p *payout.Payout, ref string) (*Result, error) {
	paidAt := uc.now()
	err := uc.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		ok, err := uc.payoutRepo.MarkPaid(txCtx, p.ID, ref, paidAt)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("payout %s is no longer processing: %w", p.ID, domainErrors.ErrInvalidStateTransition)
		}
		if err := p.MarkPaid(ref, paidAt); err != nil {
			return err
		}
		entry, err := ledger.NewPayoutEntry(p)
		if err != nil {
			return err
		}
		return uc.ledgerRepo.Append(txCtx, entry)
	})
	if err != nil {
		// Money has moved; the row stays processing and needs an operator.
		uc.logger.Error().Err(err).
			Str("payout_id", p.ID.String()).
			Str("provider_ref", ref).
			Msg("Provider accepted payout but recording it failed")
		return nil, fmt.Errorf("record paid payout %s: %w", p.ID, err)
	}

	uc.logger.Info().
		Str("payout_id", p.ID.String()).
		Str("seller_id", p.SellerID).
		Str("provider_ref", ref).
		Str("amount", p.Amount.StringFixed(2)).
		Msg("Payout paid")
	return resultFor(p), nil
}

func (uc *RunPayoutUseCase) markFailed(ctx context.Context, p *payout.Payout, reason string) (*Result, error) {
	failedAt := uc.now()
	err := uc.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		ok, err := uc.payoutRepo.MarkFailed(txCtx, p.ID, reason)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("payout %s is no longer processing: %w", p.ID, domainErrors.ErrInvalidStateTransition)
		}
		if err := p.MarkFailed(reason); err != nil {
			return err
		}
		return uc.outbox.Insert(txCtx, outbox.NewPayoutFailed(p, reason, failedAt))
	})
	if err != nil {
		return nil, fmt.Errorf("record failed payout %s: %w", p.ID, err)
	}

	uc.logger.Warn().
		Str("payout_id", p.ID.String()).
		Str("seller_id", p.SellerID).
		Str("reason", reason).
		Msg("Payout failed")
	return resultFor(p), nil
}

func attemptOutcome(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, domainErrors.ErrProviderRejected):
		return "rejected"
	case providers.IsRetryable(err):
		return "transient"
	default:
		return "error"
	}
}
