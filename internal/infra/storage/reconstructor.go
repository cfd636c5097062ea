package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/MRamiBalles/PetGuild/internal/events"
	"github.com/MRamiBalles/PetGuild/internal/platform/logger"
	"github.com/MRamiBalles/PetGuild/internal/store"
)

// Reconstructor rebuilds in-memory state from what was persisted:
// tenant documents go back into the store, recent events back into the log.
type Reconstructor struct {
	docs   DocumentRepository
	events EventRepository
	logger *logger.Logger
}

// NewReconstructor creates a new state reconstructor.
func NewReconstructor(docs DocumentRepository, eventRepo EventRepository, log *logger.Logger) *Reconstructor {
	return &Reconstructor{docs: docs, events: eventRepo, logger: log}
}

// RestoreStore loads every tenant snapshot into st. A snapshot that does not
// decode is logged and skipped; the tenant stays unprovisioned.
func (r *Reconstructor) RestoreStore(ctx context.Context, st *store.Store) (int, error) {
	docs, err := r.docs.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load tenant documents: %w", err)
	}

	restored := 0
	for _, doc := range docs {
		if err := st.Restore(doc.Tenant, doc.Document); err != nil {
			r.logger.Error("skipping unreadable tenant snapshot",
				zap.String("tenant", doc.Tenant),
				zap.Time("updated_at", doc.UpdatedAt),
				zap.Error(err))
			continue
		}
		restored++
	}
	return restored, nil
}

// RestoreEvents seeds el with the newest limit archived events.
func (r *Reconstructor) RestoreEvents(ctx context.Context, el *events.EventLog, limit int) (int, error) {
	archived, err := r.events.Recent(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to load archived events: %w", err)
	}
	el.Restore(archived)
	return len(archived), nil
}

// Restore runs RestoreStore then RestoreEvents.
func (r *Reconstructor) Restore(ctx context.Context, st *store.Store, el *events.EventLog, eventLimit int) error {
	tenants, err := r.RestoreStore(ctx, st)
	if err != nil {
		return err
	}
	n, err := r.RestoreEvents(ctx, el, eventLimit)
	if err != nil {
		return err
	}
	r.logger.Info("state restored", zap.Int("tenants", tenants), zap.Int("events", n))
	return nil
}
