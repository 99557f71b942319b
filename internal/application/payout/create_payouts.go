package payout

import (
	"context"
	"errors"
	"fmt"

	domainErrors "github.com/cassiomorais/payouts/internal/domain/errors"
	"github.com/cassiomorais/payouts/internal/domain/order"
	"github.com/cassiomorais/payouts/internal/domain/payout"
	"github.com/rs/zerolog"
)

// CreatePayoutsUseCase creates the pending payouts owed for a delivered order.
type CreatePayoutsUseCase struct {
	orderRepo  order.Repository
	payoutRepo payout.Repository
	txManager  TransactionManager
	logger     zerolog.Logger
}

// NewCreatePayoutsUseCase creates a new CreatePayoutsUseCase.
func NewCreatePayoutsUseCase(orderRepo order.Repository, payoutRepo payout.Repository, txManager TransactionManager, logger zerolog.Logger) *CreatePayoutsUseCase {
	return &CreatePayoutsUseCase{
		orderRepo:  orderRepo,
		payoutRepo: payoutRepo,
		txManager:  txManager,
		logger:     logger.With().Str("component", "payout_generator").Logger(),
	}
}

// Execute creates one pending payout per seller with a positive total.
// An order that already has payouts returns them unchanged.
func (uc *CreatePayoutsUseCase) Execute(ctx context.Context, orderID string) ([]*payout.Payout, error) {
	o, err := uc.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", orderID, err)
	}
	if !o.IsDelivered() {
		return nil, domainErrors.NewDomainError(
			"order_not_delivered",
			fmt.Sprintf("order %s is %s", o.ID, o.Status),
			domainErrors.ErrOrderNotDelivered,
		)
	}

	existing, err := uc.payoutRepo.ListByOrder(ctx, o.ID)
	if err != nil {
		return nil, fmt.Errorf("list order payouts: %w", err)
	}
	if len(existing) > 0 {
		return existing, nil
	}

	var created []*payout.Payout
	for _, total := range o.TotalsBySeller() {
		if !total.Amount.IsPositive() {
			continue
		}
		p, err := payout.NewPayout(total.SellerID, o.ID, total.Amount, total.Commission, o.Currency)
		if err != nil {
			return nil, err
		}
		created = append(created, p)
	}
	if len(created) == 0 {
		return nil, nil
	}

	err = uc.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		for _, p := range created {
			if err := uc.payoutRepo.Create(txCtx, p); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, domainErrors.ErrPayoutAlreadyExists) {
		// A concurrent call won the insert.
		return uc.payoutRepo.ListByOrder(ctx, o.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("create payouts for order %s: %w", o.ID, err)
	}

	uc.logger.Info().
		Str("order_id", o.ID).
		Int("payouts", len(created)).
		Msg("Payouts created")
	return created, nil
}
