package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/pairbot/internal/domain"
	"github.com/alanyoungcy/pairbot/internal/resolution"
)

// ResolutionStore mirrors resolved conditions. Rows are written once; a
// row without a winner is upgraded when a record with one arrives.
type ResolutionStore struct {
	pool *pgxpool.Pool
}

// NewResolutionStore creates a new ResolutionStore backed by the given connection pool.
func NewResolutionStore(pool *pgxpool.Pool) *ResolutionStore {
	return &ResolutionStore{pool: pool}
}

// Insert stores r. Unresolved records are ignored.
func (s *ResolutionStore) Insert(ctx context.Context, r domain.Resolution) error {
	if !r.Resolved {
		return nil
	}
	id := resolution.NormalizeID(r.ConditionID)
	nums := r.PayoutNumerators
	if nums == nil {
		nums = []string{}
	}

	const query = `
		INSERT INTO resolutions (
			condition_id, resolved, winning_index, payout_numerators, payout_denominator,
			oracle, question_id, outcome_slot_count, block_number, tx_hash,
			observed_at, resolved_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (condition_id) DO UPDATE SET
			winning_index      = EXCLUDED.winning_index,
			payout_numerators  = EXCLUDED.payout_numerators,
			payout_denominator = EXCLUDED.payout_denominator,
			observed_at        = EXCLUDED.observed_at,
			resolved_at        = EXCLUDED.resolved_at
		WHERE resolutions.winning_index IS NULL AND EXCLUDED.winning_index IS NOT NULL`

	_, err := s.pool.Exec(ctx, query,
		id, r.Resolved, r.WinningIndex, nums, r.PayoutDenominator,
		r.Oracle, r.QuestionID, r.OutcomeSlotCount, int64(r.BlockNumber), r.TxHash,
		r.ObservedAt, r.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert resolution %s: %w", id, err)
	}
	return nil
}

// Get returns the stored record or domain.ErrNotFound.
func (s *ResolutionStore) Get(ctx context.Context, conditionID string) (domain.Resolution, error) {
	id := resolution.NormalizeID(conditionID)
	const query = `
		SELECT condition_id, resolved, winning_index, payout_numerators, payout_denominator,
		       oracle, question_id, outcome_slot_count, block_number, tx_hash,
		       observed_at, resolved_at
		FROM resolutions WHERE condition_id = $1`

	var r domain.Resolution
	var block int64
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&r.ConditionID, &r.Resolved, &r.WinningIndex, &r.PayoutNumerators, &r.PayoutDenominator,
		&r.Oracle, &r.QuestionID, &r.OutcomeSlotCount, &block, &r.TxHash,
		&r.ObservedAt, &r.ResolvedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Resolution{}, fmt.Errorf("postgres: resolution %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("postgres: get resolution %s: %w", id, err)
	}
	r.BlockNumber = uint64(block)
	return r, nil
}

var _ domain.ResolutionStore = (*ResolutionStore)(nil)
