package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/payouts/internal/domain/errors"
	"github.com/cassiomorais/payouts/internal/domain/payout"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const payoutColumns = `p.id, p.seller_id, p.order_id, p.amount::text, p.commission_amount::text, p.currency,
	p.status, p.provider_ref, p.failure_reason, p.created_at, p.updated_at, p.paid_at`

// PayoutRepository implements payout.Repository using PostgreSQL.
type PayoutRepository struct {
	pool *pgxpool.Pool
}

// NewPayoutRepository creates a new PayoutRepository.
func NewPayoutRepository(pool *pgxpool.Pool) *PayoutRepository {
	return &PayoutRepository{pool: pool}
}

func (r *PayoutRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// Create inserts a new pending payout.
func (r *PayoutRepository) Create(ctx context.Context, p *payout.Payout) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO payouts
		 (id, seller_id, order_id, amount, commission_amount, currency, status,
		  provider_ref, failure_reason, created_at, updated_at, paid_at)
		 VALUES ($1,$2,$3,$4::numeric,$5::numeric,$6,$7,$8,$9,$10,$11,$12)`,
		p.ID, p.SellerID, p.OrderID,
		decimalToNumericString(p.Amount), decimalToNumericString(p.CommissionAmount),
		string(p.Currency), string(p.Status),
		p.ProviderRef, p.FailureReason, p.CreatedAt, p.UpdatedAt, p.PaidAt,
	)
	if err != nil {
		if isUniqueViolation(err, "uq_payouts_order_seller") {
			return domainErrors.ErrPayoutAlreadyExists
		}
		return fmt.Errorf("insert payout: %w", err)
	}
	return nil
}

// GetByID retrieves a payout by its ID.
func (r *PayoutRepository) GetByID(ctx context.Context, id uuid.UUID) (*payout.Payout, error) {
	return r.scanPayout(r.db(ctx).QueryRow(ctx,
		`SELECT `+payoutColumns+` FROM payouts p WHERE p.id = $1`, id))
}

// ListByOrder returns every payout of an order in creation order.
func (r *PayoutRepository) ListByOrder(ctx context.Context, orderID string) ([]*payout.Payout, error) {
	return r.list(ctx,
		`SELECT `+payoutColumns+` FROM payouts p WHERE p.order_id = $1 ORDER BY p.created_at, p.id`, orderID)
}

// TransitionStatus is a compare-and-set on status. Exactly one row must match.
func (r *PayoutRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to payout.Status) (bool, error) {
	if !payout.CanTransition(from, to) {
		return false, domainErrors.NewDomainError(
			"invalid_transition",
			"cannot transition from "+string(from)+" to "+string(to),
			domainErrors.ErrInvalidStateTransition,
		)
	}

	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE payouts SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`,
		string(to), id, string(from),
	)
	if err != nil {
		return false, fmt.Errorf("transition payout %s: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkPaid moves a processing payout to paid.
func (r *PayoutRepository) MarkPaid(ctx context.Context, id uuid.UUID, providerRef string, paidAt time.Time) (bool, error) {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE payouts SET status = 'paid', provider_ref = $1, paid_at = $2, updated_at = NOW()
		 WHERE id = $3 AND status = 'processing'`,
		providerRef, paidAt, id,
	)
	if err != nil {
		return false, fmt.Errorf("mark payout %s paid: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkFailed moves a processing payout to failed.
func (r *PayoutRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE payouts SET status = 'failed', failure_reason = $1, updated_at = NOW()
		 WHERE id = $2 AND status = 'processing'`,
		reason, id,
	)
	if err != nil {
		return false, fmt.Errorf("mark payout %s failed: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListPendingDeliveredBefore selects the batch candidates for a cutoff.
func (r *PayoutRepository) ListPendingDeliveredBefore(ctx context.Context, cutoff time.Time, limit int) ([]*payout.Payout, error) {
	if limit <= 0 {
		limit = 500
	}
	return r.list(ctx,
		`SELECT `+payoutColumns+`
		 FROM payouts p
		 JOIN orders o ON o.id = p.order_id
		 WHERE p.status = 'pending' AND o.delivered_at IS NOT NULL AND o.delivered_at <= $1
		 ORDER BY p.created_at, p.id
		 LIMIT $2`, cutoff, limit)
}

// ListPaidWithoutLedger finds paid payouts missing their ledger entry.
func (r *PayoutRepository) ListPaidWithoutLedger(ctx context.Context, limit int) ([]*payout.Payout, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.list(ctx,
		`SELECT `+payoutColumns+`
		 FROM payouts p
		 WHERE p.status = 'paid' AND NOT EXISTS (
		     SELECT 1 FROM ledger l
		     WHERE l.type = 'payout' AND l.entity_type = 'payout' AND l.entity_id = p.id)
		 ORDER BY p.paid_at, p.id
		 LIMIT $1`, limit)
}

// ListStaleProcessing finds payouts stuck in processing since before the given time.
func (r *PayoutRepository) ListStaleProcessing(ctx context.Context, before time.Time, limit int) ([]*payout.Payout, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.list(ctx,
		`SELECT `+payoutColumns+`
		 FROM payouts p
		 WHERE p.status = 'processing' AND p.updated_at < $1
		 ORDER BY p.updated_at, p.id
		 LIMIT $2`, before, limit)
}

func (r *PayoutRepository) list(ctx context.Context, query string, args ...any) ([]*payout.Payout, error) {
	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list payouts: %w", err)
	}
	defer rows.Close()

	var payouts []*payout.Payout
	for rows.Next() {
		p, err := r.scanPayout(rows)
		if err != nil {
			return nil, err
		}
		payouts = append(payouts, p)
	}
	return payouts, rows.Err()
}

func (r *PayoutRepository) scanPayout(row scanner) (*payout.Payout, error) {
	p := &payout.Payout{}
	var amount, commission, currency, status string
	err := row.Scan(
		&p.ID, &p.SellerID, &p.OrderID, &amount, &commission, &currency,
		&status, &p.ProviderRef, &p.FailureReason, &p.CreatedAt, &p.UpdatedAt, &p.PaidAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrPayoutNotFound
		}
		return nil, fmt.Errorf("scan payout: %w", err)
	}

	if p.Amount, err = numericStringToDecimal(amount); err != nil {
		return nil, err
	}
	if p.CommissionAmount, err = numericStringToDecimal(commission); err != nil {
		return nil, err
	}
	p.Currency = payout.Currency(currency)
	p.Status = payout.Status(status)
	return p, nil
}
