// Package eventlog defines the port interface for the append-only dispatch log.
package eventlog

import (
	"context"

	"github.com/pixelgate/pixelgate/internal/domain/event"
)

// Store appends and reads dispatch log records. Records are immutable once
// written; there is no update or delete.
type Store interface {
	// Append persists a new log record.
	Append(ctx context.Context, rec *event.LogRecord) error

	// ListRecent returns up to limit records ordered newest first.
	ListRecent(ctx context.Context, limit int) ([]event.LogRecord, error)

	// ListByTenant returns up to limit records for one tenant key,
	// ordered newest first.
	ListByTenant(ctx context.Context, tenantKey string, limit int) ([]event.LogRecord, error)
}
