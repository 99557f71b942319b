package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	domainErrors "github.com/cassiomorais/payouts/internal/domain/errors"
	"github.com/cassiomorais/payouts/internal/domain/ledger"
	"github.com/cassiomorais/payouts/internal/domain/payout"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LedgerRepository implements ledger.Repository. It only inserts and reads.
type LedgerRepository struct {
	pool *pgxpool.Pool
}

func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

func (r *LedgerRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

func (r *LedgerRepository) Append(ctx context.Context, e *ledger.Entry) error {
	meta, err := json.Marshal(e.Meta)
	if err != nil {
		return fmt.Errorf("marshal ledger meta: %w", err)
	}

	_, err = r.db(ctx).Exec(ctx,
		`INSERT INTO ledger (id, type, entity_type, entity_id, amount, currency, meta, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, string(e.Type), string(e.EntityType), e.EntityID,
		decimalToNumericString(e.Amount), string(e.Currency), meta, e.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "uq_ledger_type_entity") {
			return domainErrors.ErrLedgerEntryExists
		}
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

func (r *LedgerRepository) ListByEntity(ctx context.Context, entityType ledger.EntityType, entityID uuid.UUID) ([]*ledger.Entry, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT id, type, entity_type, entity_id, amount, currency, meta, created_at
		 FROM ledger WHERE entity_type = $1 AND entity_id = $2
		 ORDER BY created_at, id`, string(entityType), entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []*ledger.Entry
	for rows.Next() {
		e := &ledger.Entry{}
		var typ, entType, amount, currency string
		var meta []byte
		if err := rows.Scan(&e.ID, &typ, &entType, &e.EntityID, &amount, &currency, &meta, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.Type = ledger.EntryType(typ)
		e.EntityType = ledger.EntityType(entType)
		e.Currency = payout.Currency(currency)
		if e.Amount, err = numericStringToDecimal(amount); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Meta); err != nil {
				return nil, fmt.Errorf("unmarshal ledger meta: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
