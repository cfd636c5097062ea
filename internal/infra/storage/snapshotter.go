package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/MRamiBalles/PetGuild/internal/platform/clock"
	"github.com/MRamiBalles/PetGuild/internal/platform/logger"
	"github.com/MRamiBalles/PetGuild/internal/platform/metrics"
	"github.com/MRamiBalles/PetGuild/internal/store"
)

// Snapshotter periodically writes every tenant document to a DocumentRepository.
type Snapshotter struct {
	store   *store.Store
	docs    DocumentRepository
	clock   clock.Clock
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewSnapshotter(st *store.Store, docs DocumentRepository, clk clock.Clock, log *logger.Logger, m *metrics.Metrics) *Snapshotter {
	return &Snapshotter{store: st, docs: docs, clock: clk, logger: log, metrics: m}
}

// SaveTenant persists one tenant's current document.
func (s *Snapshotter) SaveTenant(ctx context.Context, tenant string) error {
	data, err := s.store.Snapshot(tenant)
	if err != nil {
		s.metrics.SnapshotsTotal.WithLabelValues("error").Inc()
		return err
	}
	err = s.docs.Upsert(ctx, TenantDocument{Tenant: tenant, Document: data, UpdatedAt: s.clock.Now()})
	if err != nil {
		s.metrics.SnapshotsTotal.WithLabelValues("error").Inc()
		return err
	}
	s.metrics.SnapshotsTotal.WithLabelValues("ok").Inc()
	return nil
}

// SaveAll persists every tenant. A failing tenant does not stop the others;
// the failures are returned joined.
func (s *Snapshotter) SaveAll(ctx context.Context) (int, error) {
	var (
		saved int
		errs  []error
	)
	for _, tenant := range s.store.Tenants() {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := s.SaveTenant(ctx, tenant); err != nil {
			s.logger.Error("tenant snapshot failed", zap.String("tenant", tenant), zap.Error(err))
			errs = append(errs, fmt.Errorf("tenant %s: %w", tenant, err))
			continue
		}
		saved++
	}
	return saved, errors.Join(errs...)
}

// Run saves all tenants every interval until ctx is done.
func (s *Snapshotter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("snapshotter started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("snapshotter stopped")
			return
		case <-ticker.C:
			start := time.Now()
			saved, err := s.SaveAll(ctx)
			if err != nil && ctx.Err() == nil {
				s.logger.Warn("snapshot pass incomplete", zap.Int("saved", saved), zap.Error(err))
				continue
			}
			s.logger.Debug("snapshot pass complete", zap.Int("saved", saved), zap.Duration("took", time.Since(start)))
		}
	}
}
