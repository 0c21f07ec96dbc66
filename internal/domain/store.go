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

// OrderRecordStore persists order records beyond the owning session's
// lifetime.
type OrderRecordStore interface {
	Upsert(ctx context.Context, rec OrderRecord) error
	GetByID(ctx context.Context, orderID string) (OrderRecord, error)
	ListByHandler(ctx context.Context, handler string, opts ListOpts) ([]OrderRecord, error)
	ListFinalBefore(ctx context.Context, before time.Time, limit int) ([]OrderRecord, error)
	// DeleteFinal removes the given records if they are terminal. Open
	// records are never deleted.
	DeleteFinal(ctx context.Context, orderIDs []string) (int64, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
	ListByOrder(ctx context.Context, orderID string) ([]AuditEntry, error)
}
