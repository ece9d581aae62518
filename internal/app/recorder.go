package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/pairbot/internal/domain"
	"github.com/alanyoungcy/pairbot/internal/strategy"
)

// recordingExecutor journals every filled buy of the wrapped executor and
// mirrors it into the audit log.
type recordingExecutor struct {
	next   strategy.OrderExecutor
	audit  domain.AuditStore
	paper  bool
	logger *slog.Logger

	mu    sync.Mutex
	fills []domain.Fill
}

var _ strategy.OrderExecutor = (*recordingExecutor)(nil)

func newRecordingExecutor(next strategy.OrderExecutor, audit domain.AuditStore, paper bool, logger *slog.Logger) *recordingExecutor {
	return &recordingExecutor{
		next:   next,
		audit:  audit,
		paper:  paper,
		logger: logger.With(slog.String("component", "fill_recorder")),
	}
}

// Buy implements strategy.OrderExecutor.
func (e *recordingExecutor) Buy(ctx context.Context, market domain.Market, leg domain.Leg, price, size float64) (bool, error) {
	ok, err := e.next.Buy(ctx, market, leg, price, size)
	if err != nil || !ok {
		return ok, err
	}

	fill := domain.Fill{
		ID:          uuid.NewString(),
		Slug:        market.Slug,
		ConditionID: market.ConditionID,
		Leg:         leg,
		TokenID:     market.TokenID(leg),
		Price:       price,
		Size:        size,
		Paper:       e.paper,
		FilledAt:    time.Now().UTC(),
	}
	e.mu.Lock()
	e.fills = append(e.fills, fill)
	e.mu.Unlock()

	if e.audit != nil {
		if err := e.audit.Log(ctx, domain.AuditFill, map[string]any{
			"fill_id":      fill.ID,
			"slug":         fill.Slug,
			"condition_id": fill.ConditionID,
			"leg":          leg.String(),
			"price":        price,
			"size":         size,
			"paper":        e.paper,
		}); err != nil {
			e.logger.Warn("audit fill failed",
				slog.String("fill_id", fill.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return true, nil
}

// drain returns the fills recorded since the last drain.
func (e *recordingExecutor) drain() []domain.Fill {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.fills
	e.fills = nil
	return out
}
