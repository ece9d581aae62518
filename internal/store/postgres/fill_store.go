package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/pairbot/internal/domain"
)

// FillStore implements domain.FillStore using PostgreSQL.
type FillStore struct {
	pool *pgxpool.Pool
}

// NewFillStore creates a new FillStore backed by the given connection pool.
func NewFillStore(pool *pgxpool.Pool) *FillStore {
	return &FillStore{pool: pool}
}

const fillSelectCols = `id, slug, condition_id, leg, token_id, price, size,
	order_id, paper, filled_at`

func scanFillRows(rows pgx.Rows) ([]domain.Fill, error) {
	var fills []domain.Fill
	for rows.Next() {
		var f domain.Fill
		var leg int
		if err := rows.Scan(
			&f.ID, &f.Slug, &f.ConditionID, &leg, &f.TokenID,
			&f.Price, &f.Size, &f.OrderID, &f.Paper, &f.FilledAt,
		); err != nil {
			return nil, err
		}
		f.Leg = domain.Leg(leg)
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

// InsertBatch inserts fills in one round trip. Fills already stored under
// the same id are skipped.
func (s *FillStore) InsertBatch(ctx context.Context, fills []domain.Fill) error {
	if len(fills) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO fills (
			id, slug, condition_id, leg, token_id,
			price, size, order_id, paper, filled_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10
		) ON CONFLICT (id) DO NOTHING`

	for _, f := range fills {
		batch.Queue(query,
			f.ID, f.Slug, f.ConditionID, int(f.Leg), f.TokenID,
			f.Price, f.Size, f.OrderID, f.Paper, f.FilledAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range fills {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert fill batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListBySlug returns the fills of one window in the order they happened.
func (s *FillStore) ListBySlug(ctx context.Context, slug string) ([]domain.Fill, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+fillSelectCols+` FROM fills WHERE slug = $1 ORDER BY filled_at ASC`, slug)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fills for %s: %w", slug, err)
	}
	defer rows.Close()

	fills, err := scanFillRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan fills for %s: %w", slug, err)
	}
	return fills, nil
}

var _ domain.FillStore = (*FillStore)(nil)
