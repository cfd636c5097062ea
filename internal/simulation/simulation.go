// Package simulation plays scripted care routines against an in-process
// engine on a fake clock, driving the same scheduler passes the server runs,
// and checks where each pet ends up.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MRamiBalles/PetGuild/internal/domain/pet"
	"github.com/MRamiBalles/PetGuild/internal/engine"
	"github.com/MRamiBalles/PetGuild/internal/events"
	"github.com/MRamiBalles/PetGuild/internal/ledger"
	"github.com/MRamiBalles/PetGuild/internal/platform/clock"
	"github.com/MRamiBalles/PetGuild/internal/platform/logger"
	"github.com/MRamiBalles/PetGuild/internal/platform/metrics"
	"github.com/MRamiBalles/PetGuild/internal/scheduler"
	"github.com/MRamiBalles/PetGuild/internal/store"
)

const (
	tenant = "simulation"
	owner  = "caretaker"
)

// Epoch is the simulated adoption time.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Care is a caretaker's routine. A zero interval means never.
type Care struct {
	FeedEvery time.Duration
	PlayEvery time.Duration
}

// Scenario describes one scripted run.
type Scenario struct {
	Name    string
	Species pet.Species
	Grant   int64
	Days    int
	Step    time.Duration // lifecycle pass cadence
	Care    Care
	Expect  func(Result) error
}

// Result is where a run ended.
type Result struct {
	Pet        pet.Pet
	Balance    int64
	Evolutions int
	Died       bool
	DiedAfter  time.Duration
	Feeds      int
	Plays      int
	Events     map[events.EventType]int
	AdoptErr   error
}

// Report is the verdict of one scenario.
type Report struct {
	Scenario string
	Passed   bool
	Detail   string
	Result   Result
	Took     time.Duration
}

// Runner executes scenarios.
type Runner struct {
	logger *logger.Logger
}

func NewRunner(log *logger.Logger) *Runner {
	return &Runner{logger: log}
}

// RunAll runs every scenario in order and stops early if ctx is done.
func (r *Runner) RunAll(ctx context.Context, scenarios []Scenario) []Report {
	reports := make([]Report, 0, len(scenarios))
	for _, sc := range scenarios {
		if ctx.Err() != nil {
			break
		}
		reports = append(reports, r.Run(ctx, sc))
	}
	return reports
}

// Run executes one scenario on a fresh store.
func (r *Runner) Run(ctx context.Context, sc Scenario) Report {
	start := time.Now()
	res, err := r.simulate(ctx, sc)
	rep := Report{Scenario: sc.Name, Result: res}
	switch {
	case err != nil:
		rep.Detail = err.Error()
	case sc.Expect != nil:
		if err := sc.Expect(res); err != nil {
			rep.Detail = err.Error()
		} else {
			rep.Passed = true
		}
	default:
		rep.Passed = true
	}
	rep.Took = time.Since(start)

	r.logger.Info("scenario finished",
		zap.String("scenario", sc.Name),
		zap.Bool("passed", rep.Passed),
		zap.String("detail", rep.Detail),
		zap.Duration("took", rep.Took))
	return rep
}

func (r *Runner) simulate(ctx context.Context, sc Scenario) (Result, error) {
	res := Result{Events: map[events.EventType]int{}}
	step := sc.Step
	if step <= 0 {
		step = time.Hour
	}

	clk := clock.NewFake(Epoch)
	log := logger.NewNop()
	m := metrics.NewNop()
	st := store.New()
	if _, err := st.Provision(tenant); err != nil {
		return res, err
	}
	el := events.NewEventLog(clk, log, m)
	var mu sync.Mutex
	el.Subscribe(events.SubscriberFunc(func(_ context.Context, e events.Event) error {
		mu.Lock()
		res.Events[e.Type]++
		mu.Unlock()
		return nil
	}))
	led := ledger.New(st, clk, log, m, ledger.DefaultConfig())
	eng := engine.NewEngine(st, led, el, clk, log, m, engine.DefaultConfig())
	sched := scheduler.New(scheduler.Config{Workers: 1}, st, eng, led, st, clk, log, m)

	if sc.Grant > 0 {
		if _, err := led.AddTokens(tenant, owner, sc.Grant, ledger.SourceGrant); err != nil {
			return res, fmt.Errorf("grant: %w", err)
		}
	}
	out, err := eng.Adopt(tenant, owner, sc.Species)
	if err != nil {
		if !store.IsRejection(err) {
			return res, err
		}
		res.AdoptErr = err
		res.Balance, _ = led.Balance(tenant, owner)
		return res, nil
	}
	petID := out.Pet.ID

	lastFed, lastPlayed := Epoch, Epoch
	end := Epoch.Add(time.Duration(sc.Days) * 24 * time.Hour)
	for now := Epoch.Add(step); !now.After(end); now = now.Add(step) {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		clk.Set(now)

		if due(sc.Care.FeedEvery, lastFed, now) {
			if _, err := eng.Feed(tenant, petID, owner); err == nil {
				res.Feeds++
				lastFed = now
			} else if !store.IsRejection(err) {
				return res, err
			}
		}
		if due(sc.Care.PlayEvery, lastPlayed, now) {
			if _, err := eng.Play(tenant, petID, owner); err == nil {
				res.Plays++
				lastPlayed = now
			} else if !store.IsRejection(err) {
				return res, err
			}
		}

		pass := sched.RunLifecycle(ctx, now)
		if pass.Failures > 0 {
			return res, fmt.Errorf("lifecycle pass at %s failed", now.Sub(Epoch))
		}
		res.Evolutions += pass.Evolved
		if pass.Died > 0 && !res.Died {
			res.Died = true
			res.DiedAfter = now.Sub(Epoch)
		}
		sched.RunEconomy(ctx, now)
	}

	if res.Pet, err = eng.Pet(tenant, petID); err != nil {
		return res, err
	}
	res.Balance, err = led.Balance(tenant, owner)
	return res, err
}

func due(every time.Duration, last, now time.Time) bool {
	return every > 0 && now.Sub(last) >= every
}

// DefaultScenarios is the standard regression set.
func DefaultScenarios() []Scenario {
	return []Scenario{
		{
			Name:    "devoted caretaker raises an adult",
			Species: pet.SpeciesDragon,
			Grant:   10000,
			Days:    15,
			Care:    Care{FeedEvery: 4 * time.Hour, PlayEvery: 4 * time.Hour},
			Expect: func(r Result) error {
				if r.Died {
					return fmt.Errorf("pet died after %s", r.DiedAfter)
				}
				if r.Pet.Stage != pet.StageAdult {
					return fmt.Errorf("stage = %s, want adult", r.Pet.Stage)
				}
				if r.Evolutions != 3 || r.Events[events.EventTypePetEvolved] != 3 {
					return fmt.Errorf("evolutions = %d, want 3", r.Evolutions)
				}
				if r.Pet.Health != pet.MaxStat {
					return fmt.Errorf("health = %d, want %d", r.Pet.Health, pet.MaxStat)
				}
				return nil
			},
		},
		{
			Name:    "twice-daily care keeps a pet healthy",
			Species: pet.SpeciesCat,
			Grant:   2000,
			Days:    8,
			Care:    Care{FeedEvery: 12 * time.Hour, PlayEvery: 12 * time.Hour},
			Expect: func(r Result) error {
				if r.Died {
					return fmt.Errorf("pet died after %s", r.DiedAfter)
				}
				if r.Pet.Stage != pet.StageTeen {
					return fmt.Errorf("stage = %s, want teen", r.Pet.Stage)
				}
				return nil
			},
		},
		{
			Name:    "neglected pet dies as a baby",
			Species: pet.SpeciesHamster,
			Grant:   100,
			Days:    7,
			Expect: func(r Result) error {
				if !r.Died {
					return errors.New("pet survived neglect")
				}
				if r.Pet.Stage != pet.StageBaby || r.Evolutions != 0 {
					return fmt.Errorf("stage = %s, want baby", r.Pet.Stage)
				}
				if r.Events[events.EventTypePetDied] != 1 {
					return fmt.Errorf("died events = %d, want 1", r.Events[events.EventTypePetDied])
				}
				return nil
			},
		},
		{
			Name:    "meals without play are not enough",
			Species: pet.SpeciesDog,
			Grant:   5000,
			Days:    7,
			Care:    Care{FeedEvery: 4 * time.Hour},
			Expect: func(r Result) error {
				if !r.Died {
					return errors.New("lonely pet survived")
				}
				if r.Pet.Stage != pet.StageChild {
					return fmt.Errorf("stage = %s, want child", r.Pet.Stage)
				}
				return nil
			},
		},
		{
			Name:    "broke owner cannot adopt",
			Species: pet.SpeciesUnicorn,
			Grant:   50,
			Days:    1,
			Expect: func(r Result) error {
				var rej *store.Rejection
				if !errors.As(r.AdoptErr, &rej) || rej.Reason != store.ReasonInsufficientFunds {
					return fmt.Errorf("adopt error = %v, want insufficient funds", r.AdoptErr)
				}
				if r.Balance != 50 {
					return fmt.Errorf("balance = %d, want 50", r.Balance)
				}
				return nil
			},
		},
	}
}
