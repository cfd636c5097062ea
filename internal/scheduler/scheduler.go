// Package scheduler drives the background passes: pet decay, passive
// accrual and audit retention.
//
// A pass is not a tick. Every pass hands the current time to the engine and
// the ledger, which derive state from elapsed time, so a delayed or skipped
// pass only changes rounding, never the trajectory.
package scheduler

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MRamiBalles/PetGuild/internal/domain/pet"
	"github.com/MRamiBalles/PetGuild/internal/ledger"
	"github.com/MRamiBalles/PetGuild/internal/platform/clock"
	"github.com/MRamiBalles/PetGuild/internal/platform/logger"
	"github.com/MRamiBalles/PetGuild/internal/platform/metrics"
)

// Job names, used as metric labels.
const (
	JobLifecycle = "lifecycle"
	JobEconomy   = "economy"
	JobRetention = "retention"
)

// Config holds pass intervals and fan-out width.
type Config struct {
	LifecycleInterval time.Duration
	EconomyInterval   time.Duration
	RetentionInterval time.Duration
	RetentionWindow   time.Duration
	Workers           int
}

// DefaultConfig returns the reference cadence.
func DefaultConfig() Config {
	return Config{
		LifecycleInterval: 5 * time.Minute,
		EconomyInterval:   time.Minute,
		RetentionInterval: time.Hour,
		RetentionWindow:   7 * 24 * time.Hour,
		Workers:           runtime.NumCPU(),
	}
}

// TenantSource enumerates provisioned tenants.
type TenantSource interface {
	Tenants() []string
}

// Lifecycle re-evaluates pets.
type Lifecycle interface {
	PetIDs(tenant string) ([]string, error)
	DecayPass(tenant, petID string, now time.Time) (pet.DecayOutcome, error)
}

// Economy pays passive income.
type Economy interface {
	PassiveAccrual(tenant string, now time.Time) (ledger.AccrualReport, error)
}

// Retention drops stale audit entries.
type Retention interface {
	PruneAudit(tenant string, cutoff time.Time) (int, error)
}

// PassReport summarises one pass.
type PassReport struct {
	Job      string
	Tenants  int
	Entities int
	Failures int
	Evolved  int
	Died     int
	Tokens   int64
	Pruned   int
	Took     time.Duration
}

// Scheduler owns the background loops.
type Scheduler struct {
	cfg       Config
	tenants   TenantSource
	lifecycle Lifecycle
	economy   Economy
	retention Retention
	clock     clock.Clock
	logger    *logger.Logger
	metrics   *metrics.Metrics

	stopChan chan struct{}
	stopOnce sync.Once
}

// New creates a scheduler. Zero intervals fall back to DefaultConfig values.
func New(cfg Config, tenants TenantSource, lc Lifecycle, econ Economy, ret Retention, clk clock.Clock, log *logger.Logger, m *metrics.Metrics) *Scheduler {
	def := DefaultConfig()
	if cfg.LifecycleInterval <= 0 {
		cfg.LifecycleInterval = def.LifecycleInterval
	}
	if cfg.EconomyInterval <= 0 {
		cfg.EconomyInterval = def.EconomyInterval
	}
	if cfg.RetentionInterval <= 0 {
		cfg.RetentionInterval = def.RetentionInterval
	}
	if cfg.RetentionWindow <= 0 {
		cfg.RetentionWindow = def.RetentionWindow
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	return &Scheduler{
		cfg:       cfg,
		tenants:   tenants,
		lifecycle: lc,
		economy:   econ,
		retention: ret,
		clock:     clk,
		logger:    log,
		metrics:   m,
		stopChan:  make(chan struct{}),
	}
}

// Start runs the three loops until ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started",
		zap.Duration("lifecycle", s.cfg.LifecycleInterval),
		zap.Duration("economy", s.cfg.EconomyInterval),
		zap.Duration("retention", s.cfg.RetentionInterval),
		zap.Int("workers", s.cfg.Workers))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.loop(gctx, JobLifecycle, s.cfg.LifecycleInterval, s.RunLifecycle) })
	g.Go(func() error { return s.loop(gctx, JobEconomy, s.cfg.EconomyInterval, s.RunEconomy) })
	g.Go(func() error { return s.loop(gctx, JobRetention, s.cfg.RetentionInterval, s.RunRetention) })
	err := g.Wait()

	s.logger.Info("scheduler stopped")
	return err
}

// Stop ends every loop. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

func (s *Scheduler) loop(ctx context.Context, job string, every time.Duration, run func(context.Context, time.Time) PassReport) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("scheduler loop stopped by context", zap.String("job", job))
			return nil
		case <-s.stopChan:
			s.logger.Debug("scheduler loop stopped", zap.String("job", job))
			return nil
		case <-ticker.C:
			run(ctx, s.clock.Now())
		}
	}
}

// RunLifecycle decays every pet of every tenant at now.
// Pets are evaluated in parallel; a failing pet is logged and counted.
func (s *Scheduler) RunLifecycle(ctx context.Context, now time.Time) PassReport {
	start := time.Now()
	rep := PassReport{Job: JobLifecycle}

	type target struct{ tenant, petID string }
	var targets []target
	for _, t := range s.tenants.Tenants() {
		rep.Tenants++
		ids, err := s.lifecycle.PetIDs(t)
		if err != nil {
			rep.Failures++
			s.logger.Error("list pets failed", zap.String("tenant", t), zap.Error(err))
			continue
		}
		for _, id := range ids {
			targets = append(targets, target{t, id})
		}
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for _, tg := range targets {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			var outcome pet.DecayOutcome
			err := guard(func() error {
				var err error
				outcome, err = s.lifecycle.DecayPass(tg.tenant, tg.petID, now)
				return err
			})

			mu.Lock()
			defer mu.Unlock()
			rep.Entities++
			if err != nil {
				rep.Failures++
				s.logger.Error("decay pass failed",
					zap.String("tenant", tg.tenant), zap.String("pet_id", tg.petID), zap.Error(err))
				return nil
			}
			if outcome.Evolved {
				rep.Evolved++
			}
			if outcome.Died {
				rep.Died++
			}
			return nil
		})
	}
	_ = g.Wait()

	return s.finish(rep, start,
		zap.Int("evolved", rep.Evolved),
		zap.Int("died", rep.Died))
}

// RunEconomy pays passive accrual in every tenant at now.
func (s *Scheduler) RunEconomy(ctx context.Context, now time.Time) PassReport {
	start := time.Now()
	rep := PassReport{Job: JobEconomy}

	s.eachTenant(ctx, &rep, func(tenant string, mu *sync.Mutex) error {
		var res ledger.AccrualReport
		err := guard(func() error {
			var err error
			res, err = s.economy.PassiveAccrual(tenant, now)
			return err
		})
		mu.Lock()
		rep.Entities += res.Accounts
		rep.Tokens += res.Tokens
		mu.Unlock()
		return err
	})

	return s.finish(rep, start, zap.Int64("tokens", rep.Tokens))
}

// RunRetention drops audit entries older than the retention window.
func (s *Scheduler) RunRetention(ctx context.Context, now time.Time) PassReport {
	start := time.Now()
	rep := PassReport{Job: JobRetention}
	cutoff := now.Add(-s.cfg.RetentionWindow)

	s.eachTenant(ctx, &rep, func(tenant string, mu *sync.Mutex) error {
		var n int
		err := guard(func() error {
			var err error
			n, err = s.retention.PruneAudit(tenant, cutoff)
			return err
		})
		mu.Lock()
		rep.Entities++
		rep.Pruned += n
		mu.Unlock()
		return err
	})

	return s.finish(rep, start, zap.Int("pruned", rep.Pruned), zap.Time("cutoff", cutoff))
}

// eachTenant runs fn once per tenant with bounded parallelism.
func (s *Scheduler) eachTenant(ctx context.Context, rep *PassReport, fn func(tenant string, mu *sync.Mutex) error) {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for _, t := range s.tenants.Tenants() {
		if gctx.Err() != nil {
			break
		}
		rep.Tenants++
		g.Go(func() error {
			if err := fn(t, &mu); err != nil {
				mu.Lock()
				rep.Failures++
				mu.Unlock()
				s.logger.Error(rep.Job+" pass failed", zap.String("tenant", t), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Scheduler) finish(rep PassReport, start time.Time, extra ...zap.Field) PassReport {
	rep.Took = time.Since(start)
	s.metrics.ObservePass(rep.Job, rep.Entities, rep.Failures, rep.Took)

	fields := append([]zap.Field{
		zap.String("job", rep.Job),
		zap.Int("tenants", rep.Tenants),
		zap.Int("entities", rep.Entities),
		zap.Int("failures", rep.Failures),
		zap.Duration("took", rep.Took),
	}, extra...)
	if rep.Failures > 0 {
		s.logger.Warn("scheduler pass completed with failures", fields...)
	} else {
		s.logger.Info("scheduler pass completed", fields...)
	}
	return rep
}

// guard turns a panic in one entity's evaluation into an error so the
// rest of the pass still runs.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
