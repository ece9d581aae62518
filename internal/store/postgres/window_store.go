package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/pairbot/internal/domain"
)

// WindowStore persists one row per traded window keyed by slug.
type WindowStore struct {
	pool *pgxpool.Pool
}

// NewWindowStore creates a new WindowStore backed by the given connection pool.
func NewWindowStore(pool *pgxpool.Pool) *WindowStore {
	return &WindowStore{pool: pool}
}

const windowColumns = `slug, condition_id, slot_start, slot_end, outcome, winning_index,
	guaranteed_profit, realized_pnl, paper, journal_path, redeem_tx, position, settled_at`

// Save upserts the result. A later settlement of the same slug replaces the
// earlier row.
func (s *WindowStore) Save(ctx context.Context, r domain.WindowResult) error {
	positionJSON, err := json.Marshal(r.Position)
	if err != nil {
		return fmt.Errorf("postgres: marshal position: %w", err)
	}
	p := r.Position

	const query = `
		INSERT INTO windows (
			slug, condition_id, slot_start, slot_end, state,
			up_amount, up_spent, up_fills, down_amount, down_spent, down_fills,
			spent, pair_cost, guaranteed_profit, outcome, winning_index,
			realized_pnl, paper, journal_path, redeem_tx, position, settled_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22
		)
		ON CONFLICT (slug) DO UPDATE SET
			condition_id      = EXCLUDED.condition_id,
			state             = EXCLUDED.state,
			up_amount         = EXCLUDED.up_amount,
			up_spent          = EXCLUDED.up_spent,
			up_fills          = EXCLUDED.up_fills,
			down_amount       = EXCLUDED.down_amount,
			down_spent        = EXCLUDED.down_spent,
			down_fills        = EXCLUDED.down_fills,
			spent             = EXCLUDED.spent,
			pair_cost         = EXCLUDED.pair_cost,
			guaranteed_profit = EXCLUDED.guaranteed_profit,
			outcome           = EXCLUDED.outcome,
			winning_index     = EXCLUDED.winning_index,
			realized_pnl      = EXCLUDED.realized_pnl,
			journal_path      = EXCLUDED.journal_path,
			redeem_tx         = EXCLUDED.redeem_tx,
			position          = EXCLUDED.position,
			settled_at        = EXCLUDED.settled_at`

	_, err = s.pool.Exec(ctx, query,
		r.Slug, r.ConditionID, r.SlotStart, r.SlotEnd, p.State,
		p.Up.Amount, p.Up.Spent, p.Up.Fills, p.Down.Amount, p.Down.Spent, p.Down.Fills,
		p.Spent, p.PairCost, r.GuaranteedProfit, string(r.Outcome), r.WinningIndex,
		r.RealizedPnL, r.Paper, r.JournalPath, r.RedeemTx, positionJSON, r.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save window %s: %w", r.Slug, err)
	}
	return nil
}

// Get returns the result for slug or domain.ErrNotFound.
func (s *WindowStore) Get(ctx context.Context, slug string) (domain.WindowResult, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+windowColumns+` FROM windows WHERE slug = $1`, slug)
	r, err := scanWindow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.WindowResult{}, fmt.Errorf("postgres: window %s: %w", slug, domain.ErrNotFound)
	}
	if err != nil {
		return domain.WindowResult{}, fmt.Errorf("postgres: get window %s: %w", slug, err)
	}
	return r, nil
}

// List returns results newest slot first.
func (s *WindowStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.WindowResult, error) {
	query, args := appendListOpts(`SELECT `+windowColumns+` FROM windows WHERE 1=1`, nil, "slot_start", opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list windows: %w", err)
	}
	defer rows.Close()

	var out []domain.WindowResult
	for rows.Next() {
		r, err := scanWindow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan window: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list windows rows: %w", err)
	}
	return out, nil
}

func scanWindow(row pgx.Row) (domain.WindowResult, error) {
	var r domain.WindowResult
	var outcome string
	var positionJSON []byte
	err := row.Scan(
		&r.Slug, &r.ConditionID, &r.SlotStart, &r.SlotEnd, &outcome, &r.WinningIndex,
		&r.GuaranteedProfit, &r.RealizedPnL, &r.Paper, &r.JournalPath, &r.RedeemTx,
		&positionJSON, &r.SettledAt,
	)
	if err != nil {
		return r, err
	}
	r.Outcome = domain.WindowOutcome(outcome)
	if len(positionJSON) > 0 {
		if err := json.Unmarshal(positionJSON, &r.Position); err != nil {
			return r, fmt.Errorf("unmarshal position: %w", err)
		}
	}
	return r, nil
}

var _ domain.WindowStore = (*WindowStore)(nil)
