// Package main is the entry point for the PetGuild server.
// It only handles dependency injection and server lifecycle.
// NO business logic belongs here.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MRamiBalles/PetGuild/internal/engine"
	"github.com/MRamiBalles/PetGuild/internal/events"
	"github.com/MRamiBalles/PetGuild/internal/infra/cache"
	"github.com/MRamiBalles/PetGuild/internal/infra/storage"
	"github.com/MRamiBalles/PetGuild/internal/ledger"
	"github.com/MRamiBalles/PetGuild/internal/network"
	"github.com/MRamiBalles/PetGuild/internal/platform/clock"
	"github.com/MRamiBalles/PetGuild/internal/platform/config"
	"github.com/MRamiBalles/PetGuild/internal/platform/logger"
	"github.com/MRamiBalles/PetGuild/internal/platform/metrics"
	"github.com/MRamiBalles/PetGuild/internal/scheduler"
	"github.com/MRamiBalles/PetGuild/internal/store"
)

const finalSnapshotTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", config.Path(), "path to the YAML config file (default from CONFIG_PATH)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pet-server: %v\n", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err := run(cfg, appLogger); err != nil {
		appLogger.Error("server exited with error", zap.Error(err))
		_ = appLogger.Sync()
		os.Exit(1)
	}
	_ = appLogger.Sync()
}

func run(cfg *config.Config, appLogger *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	clk := clock.Real{}
	st := store.New()

	var (
		eventOpts   []events.Option
		eventRepo   *storage.SQLiteEventRepository
		docRepo     *storage.SQLiteDocumentRepository
		snapshotter *storage.Snapshotter
	)
	if cfg.Storage.Enabled {
		appLogger.Info("opening sqlite database", zap.String("path", cfg.Storage.Path))
		db, err := storage.InitSQLite(cfg.Storage.Path)
		if err != nil {
			return err
		}
		defer db.Close()
		eventRepo = storage.NewSQLiteEventRepository(db)
		docRepo = storage.NewSQLiteDocumentRepository(db)
		eventOpts = append(eventOpts, events.WithPersister(eventRepo))
		snapshotter = storage.NewSnapshotter(st, docRepo, clk, appLogger, m)
	}

	eventLog := events.NewEventLog(clk, appLogger, m, eventOpts...)
	if cfg.Storage.Enabled {
		rec := storage.NewReconstructor(docRepo, eventRepo, appLogger)
		if err := rec.Restore(ctx, st, eventLog, events.DefaultCapacity); err != nil {
			return err
		}
	}
	for _, tenant := range cfg.Tenants {
		created, err := st.Provision(tenant)
		if err != nil {
			return fmt.Errorf("provision %q: %w", tenant, err)
		}
		if created {
			appLogger.Info("tenant provisioned", zap.String("tenant", tenant))
		}
	}

	led := ledger.New(st, clk, appLogger, m, ledger.Config{
		AccrualRate: cfg.Economy.AccrualRate,
		BonusMin:    cfg.Economy.BonusMin,
		BonusMax:    cfg.Economy.BonusMax,
	})
	eng := engine.NewEngine(st, led, eventLog, clk, appLogger, m, engine.Config{
		AdoptionCost:    cfg.Economy.AdoptionCost,
		FoodCost:        cfg.Economy.FoodCost,
		EvolutionReward: cfg.Economy.EvolutionReward,
	})

	hub := network.NewHub(appLogger, m, network.HubOptions{
		SendBuffer:      cfg.Hub.SendBuffer,
		BroadcastBuffer: cfg.Hub.BroadcastBuffer,
	})
	eventLog.Subscribe(hub)

	if cfg.Cache.Enabled {
		client, err := cache.Dial(ctx, cfg.Cache.Addr, cfg.Cache.Password, cfg.Cache.DB)
		if err != nil {
			// The cache only serves readers outside the server; run without it.
			appLogger.Warn("pet cache disabled", zap.String("addr", cfg.Cache.Addr), zap.Error(err))
		} else {
			defer client.Close()
			eventLog.Subscribe(cache.NewPetCache(client, cfg.Cache.TTL, appLogger, m))
		}
	}

	var retention scheduler.Retention = st
	if eventRepo != nil {
		retention = storage.NewRetention(st, eventRepo)
	}
	sched := scheduler.New(scheduler.Config{
		LifecycleInterval: cfg.Scheduler.LifecycleInterval,
		EconomyInterval:   cfg.Scheduler.EconomyInterval,
		RetentionInterval: cfg.Scheduler.RetentionInterval,
		RetentionWindow:   cfg.Scheduler.RetentionWindow,
		Workers:           cfg.Scheduler.Workers,
	}, st, eng, led, retention, clk, appLogger, m)

	dispatcher := network.NewDispatcher(eng, led, st, clk, appLogger)
	apiOpts := network.APIOptions{ActionsPerMinute: cfg.Hub.ActionsPerMinute}
	if cfg.Metrics.Enabled {
		apiOpts.MetricsPath = cfg.Metrics.Path
	}
	api := network.NewAPI(eng, led, st, eventLog, dispatcher, hub, m, appLogger, apiOpts)

	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: network.Chain(api.Routes(),
			network.RequestID,
			network.Recovery(appLogger),
			network.Logging(appLogger),
			network.RateLimit(cfg.Server.RequestsPerSecond, cfg.Server.RequestBurst),
		),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error { return sched.Start(gctx) })
	if snapshotter != nil {
		g.Go(func() error {
			snapshotter.Run(gctx, cfg.Storage.SnapshotInterval)
			return nil
		})
	}
	g.Go(func() error {
		appLogger.Info("http server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	sched.Stop()
	eventLog.Flush()

	if snapshotter != nil {
		snapCtx, cancel := context.WithTimeout(context.Background(), finalSnapshotTimeout)
		defer cancel()
		saved, snapErr := snapshotter.SaveAll(snapCtx)
		appLogger.Info("final snapshot written", zap.Int("tenants", saved))
		err = errors.Join(err, snapErr)
	}
	return err
}
