// Package storage persists tenant documents and the lifecycle event archive.
// The in-memory store stays the source of truth; this package only
// snapshots it and restores it at boot.
package storage

import (
	"context"
	"time"

	"github.com/MRamiBalles/PetGuild/internal/events"
)

// EventRepository archives lifecycle events.
type EventRepository interface {
	// Append adds an event to the archive. It satisfies events.EventPersister.
	Append(ctx context.Context, event events.Event) error

	// Recent returns the newest limit events, oldest first.
	Recent(ctx context.Context, limit int) ([]events.Event, error)

	// ByTenant returns a tenant's events with a sequence number above since.
	ByTenant(ctx context.Context, tenant string, since uint64) ([]events.Event, error)

	// PruneBefore deletes a tenant's events older than cutoff.
	PruneBefore(ctx context.Context, tenant string, cutoff time.Time) (int64, error)
}

// TenantDocument is one persisted tenant snapshot.
type TenantDocument struct {
	Tenant    string
	Document  []byte
	UpdatedAt time.Time
}

// DocumentRepository stores the latest snapshot of each tenant.
type DocumentRepository interface {
	// Upsert replaces the tenant's snapshot.
	Upsert(ctx context.Context, doc TenantDocument) error

	// Get returns the tenant's snapshot, or nil when none exists.
	Get(ctx context.Context, tenant string) (*TenantDocument, error)

	// All returns every stored snapshot ordered by tenant.
	All(ctx context.Context) ([]TenantDocument, error)
}

var (
	_ EventRepository       = (*SQLiteEventRepository)(nil)
	_ events.EventPersister = (*SQLiteEventRepository)(nil)
	_ DocumentRepository    = (*SQLiteDocumentRepository)(nil)
)
