package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// WindowStore persists settled window results.
type WindowStore interface {
	Save(ctx context.Context, result WindowResult) error
	Get(ctx context.Context, slug string) (WindowResult, error)
	List(ctx context.Context, opts ListOpts) ([]WindowResult, error)
}

// ResolutionStore persists observed condition resolutions.
type ResolutionStore interface {
	Insert(ctx context.Context, r Resolution) error
	Get(ctx context.Context, conditionID string) (Resolution, error)
}

// Audit event names.
const (
	AuditFill          = "fill"
	AuditWindowOpened  = "window_opened"
	AuditWindowSettled = "window_settled"
	AuditRedeem        = "redeem"
)

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	// List returns entries newest first. An empty event lists every event.
	List(ctx context.Context, event string, opts ListOpts) ([]AuditEntry, error)
}

// FillStore persists the individual buys of each window.
type FillStore interface {
	InsertBatch(ctx context.Context, fills []Fill) error
	ListBySlug(ctx context.Context, slug string) ([]Fill, error)
}
