package engine

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.jetify.com/typeid/v2"
	"go.uber.org/zap"

	"github.com/MRamiBalles/PetGuild/internal/domain/pet"
	"github.com/MRamiBalles/PetGuild/internal/events"
	"github.com/MRamiBalles/PetGuild/internal/ledger"
	"github.com/MRamiBalles/PetGuild/internal/platform/clock"
	"github.com/MRamiBalles/PetGuild/internal/platform/logger"
	"github.com/MRamiBalles/PetGuild/internal/platform/metrics"
	"github.com/MRamiBalles/PetGuild/internal/store"
)

// Debit purposes.
const (
	PurposeAdoption = "adoption"
	PurposeFood     = "pet_food"
	PurposePetItem  = "pet_item"
)

// PetIDPrefix is the TypeID prefix of every pet identifier.
const PetIDPrefix = "pet"

// Config holds the lifecycle economy.
type Config struct {
	AdoptionCost    int64
	FoodCost        int64
	EvolutionReward int64
}

// DefaultConfig matches the reference economy.
func DefaultConfig() Config {
	return Config{AdoptionCost: 100, FoodCost: 50, EvolutionReward: 25}
}

// Outcome is the result of a successful interactive operation.
type Outcome struct {
	Pet     pet.Pet `json:"pet"`
	Message string  `json:"message"`
	LevelUp bool    `json:"level_up"`
	Balance int64   `json:"balance"`
}

// Engine runs the pet lifecycle for every tenant.
type Engine struct {
	store   *store.Store
	ledger  *ledger.Ledger
	events  *events.EventLog
	clock   clock.Clock
	logger  *logger.Logger
	metrics *metrics.Metrics
	cfg     Config
	newID   func() (string, error)
}

// NewEngine wires the lifecycle engine to its collaborators.
func NewEngine(st *store.Store, led *ledger.Ledger, el *events.EventLog, clk clock.Clock, log *logger.Logger, m *metrics.Metrics, cfg Config) *Engine {
	return &Engine{
		store:   st,
		ledger:  led,
		events:  el,
		clock:   clk,
		logger:  log,
		metrics: m,
		cfg:     cfg,
		newID: func() (string, error) {
			tid, err := typeid.Generate(PetIDPrefix)
			if err != nil {
				return "", err
			}
			return tid.String(), nil
		},
	}
}

// Pet reads one pet.
func (e *Engine) Pet(tenant, petID string) (pet.Pet, error) {
	return e.loadPet(tenant, petID)
}

// PetIDs lists every pet id of a tenant, dead or alive.
func (e *Engine) PetIDs(tenant string) ([]string, error) {
	return e.store.Keys(tenant, store.FieldPets)
}

// PetsOf lists an owner's pets, oldest first.
func (e *Engine) PetsOf(tenant, owner string) ([]pet.Pet, error) {
	all, err := e.allPets(tenant)
	if err != nil {
		return nil, err
	}
	var mine []pet.Pet
	for _, p := range all {
		if p.OwnerID == owner {
			mine = append(mine, p)
		}
	}
	sort.SliceStable(mine, func(i, j int) bool { return mine[i].CreatedAt.Before(mine[j].CreatedAt) })
	return mine, nil
}

// FindByName resolves one of the owner's pets by name, ignoring case.
// Living pets win over dead ones with the same name.
func (e *Engine) FindByName(tenant, owner, name string) (pet.Pet, error) {
	pets, err := e.PetsOf(tenant, owner)
	if err != nil {
		return pet.Pet{}, err
	}
	name = strings.TrimSpace(name)
	var found *pet.Pet
	for i := range pets {
		if !strings.EqualFold(pets[i].Name, name) {
			continue
		}
		if found == nil || (!found.Alive() && pets[i].Alive()) {
			found = &pets[i]
		}
	}
	if found == nil {
		return pet.Pet{}, store.Reject(store.ReasonNotFound, "You don't have a pet named %q.", name)
	}
	return *found, nil
}

// Leaderboard ranks living pets by level, then experience.
func (e *Engine) Leaderboard(tenant string, limit int) ([]pet.Pet, error) {
	all, err := e.allPets(tenant)
	if err != nil {
		return nil, err
	}
	alive := all[:0]
	for _, p := range all {
		if p.Alive() {
			alive = append(alive, p)
		}
	}
	sort.SliceStable(alive, func(i, j int) bool {
		if alive[i].Level != alive[j].Level {
			return alive[i].Level > alive[j].Level
		}
		return alive[i].Experience > alive[j].Experience
	})
	if limit > 0 && len(alive) > limit {
		alive = alive[:limit]
	}
	return alive, nil
}

func petPath(petID string) string {
	return store.Path(store.FieldPets, petID)
}

func (e *Engine) loadPet(tenant, petID string) (pet.Pet, error) {
	if !store.ValidSegment(petID) {
		return pet.Pet{}, store.Reject(store.ReasonNotFound, "Pet not found.")
	}
	p, ok, err := store.GetAs[pet.Pet](e.store, tenant, petPath(petID))
	if err != nil {
		return pet.Pet{}, err
	}
	if !ok {
		return pet.Pet{}, store.Reject(store.ReasonNotFound, "Pet not found.")
	}
	return p, nil
}

func (e *Engine) savePet(tenant string, p pet.Pet) error {
	return e.store.Set(tenant, petPath(p.ID), p)
}

func (e *Engine) allPets(tenant string) ([]pet.Pet, error) {
	ids, err := e.store.Keys(tenant, store.FieldPets)
	if err != nil {
		return nil, err
	}
	pets := make([]pet.Pet, 0, len(ids))
	for _, id := range ids {
		p, ok, err := store.GetAs[pet.Pet](e.store, tenant, petPath(id))
		if err != nil {
			return nil, err
		}
		if ok {
			pets = append(pets, p)
		}
	}
	return pets, nil
}

func (e *Engine) alivePetsOf(tenant, owner string) ([]pet.Pet, error) {
	all, err := e.allPets(tenant)
	if err != nil {
		return nil, err
	}
	var alive []pet.Pet
	for _, p := range all {
		if p.OwnerID == owner && p.Alive() {
			alive = append(alive, p)
		}
	}
	return alive, nil
}

// ownedAlive is the common guard of owner-only interactions.
func ownedAlive(p pet.Pet, requester string) error {
	if p.OwnerID != requester {
		return store.Reject(store.ReasonNotOwner, "This is not your pet!")
	}
	if !p.Alive() {
		return store.Reject(store.ReasonDeceased, "%s has passed away.", p.Name)
	}
	return nil
}

func (e *Engine) publish(pending []events.Event) {
	for _, ev := range pending {
		e.events.Append(ev)
	}
}

// observe records the operation outcome and passes err through.
func (e *Engine) observe(op, tenant string, err error) error {
	if err == nil {
		e.metrics.ObserveOperation(op, "")
		return nil
	}
	if reason, ok := store.ReasonOf(err); ok {
		e.metrics.ObserveOperation(op, string(reason))
		return err
	}
	e.metrics.ObserveFailure(op)
	if errors.Is(err, store.ErrInvariant) {
		e.logger.Error("invariant violation", zap.String("op", op), zap.String("tenant", tenant), zap.Error(err))
	}
	return fmt.Errorf("%s: %w", op, err)
}
