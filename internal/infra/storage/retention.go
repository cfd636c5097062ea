package storage

import (
	"context"
	"time"

	"github.com/MRamiBalles/PetGuild/internal/store"
)

const pruneTimeout = 30 * time.Second

// Retention trims a tenant's audit lists in the store and its archived events.
type Retention struct {
	store  *store.Store
	events EventRepository
}

func NewRetention(st *store.Store, eventRepo EventRepository) *Retention {
	return &Retention{store: st, events: eventRepo}
}

// PruneAudit removes audit entries and archived events older than cutoff and
// reports how many rows went.
func (r *Retention) PruneAudit(tenant string, cutoff time.Time) (int, error) {
	n, err := r.store.PruneAudit(tenant, cutoff)
	if err != nil {
		return n, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), pruneTimeout)
	defer cancel()
	archived, err := r.events.PruneBefore(ctx, tenant, cutoff)
	return n + int(archived), err
}
