package engine

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/MRamiBalles/PetGuild/internal/domain/pet"
	"github.com/MRamiBalles/PetGuild/internal/events"
	"github.com/MRamiBalles/PetGuild/internal/ledger"
	"github.com/MRamiBalles/PetGuild/internal/store"
)

// errSkip aborts a withPet callback without writing and without failing.
var errSkip = errors.New("engine: skip")

// withPet runs fn on the pet under its entity lock and writes the result
// back when fn returns nil. The saved pet is copied to out.
func (e *Engine) withPet(tenant, petID string, fn func(*pet.Pet) error, out *pet.Pet) error {
	unlock := e.store.Locks().Lock(store.PetKey(tenant, petID))
	defer unlock()

	p, err := e.loadPet(tenant, petID)
	if err != nil {
		return err
	}
	if err := fn(&p); err != nil {
		return err
	}
	if err := e.savePet(tenant, p); err != nil {
		return err
	}
	if out != nil {
		*out = p.Clone()
	}
	return nil
}

// DecayPass re-derives one pet's state at now. Only the pet lock is held
// while the pet changes; the evolution reward is credited after release.
// Deceased pets are left untouched. A missing pet is an invariant violation:
// pets are never removed, so only a bad internal id can miss.
func (e *Engine) DecayPass(tenant, petID string, now time.Time) (pet.DecayOutcome, error) {
	var outcome pet.DecayOutcome
	var after pet.Pet
	err := e.withPet(tenant, petID, func(p *pet.Pet) error {
		if !p.Alive() {
			return errSkip
		}
		outcome = p.Decay(now)
		return nil
	}, &after)
	switch {
	case errors.Is(err, errSkip):
		return pet.DecayOutcome{}, nil
	case store.IsRejection(err):
		return outcome, fmt.Errorf("%w: decay of unknown pet %s/%s", store.ErrInvariant, tenant, petID)
	case err != nil:
		return outcome, err
	}

	var pending []events.Event
	var rewardErr error
	if outcome.Evolved {
		if _, rewardErr = e.ledger.AddTokens(tenant, after.OwnerID, e.cfg.EvolutionReward, ledger.SourceEvolution); rewardErr != nil {
			e.logger.Error("evolution reward failed",
				zap.String("tenant", tenant), zap.String("pet_id", petID), zap.Error(rewardErr))
		}
		pending = append(pending, events.Event{
			Tenant:  tenant,
			Type:    events.EventTypePetEvolved,
			ActorID: after.OwnerID,
			PetID:   after.ID,
			Message: fmt.Sprintf("🎉 %s evolved from %s to %s! +%s tokens",
				after.Name, outcome.PreviousStage.Title(), after.Stage.Title(), e.ledger.FormatTokens(e.cfg.EvolutionReward)),
			Pet: &after,
		})
	}
	if outcome.Died {
		pending = append(pending, events.Event{
			Tenant:  tenant,
			Type:    events.EventTypePetDied,
			ActorID: after.OwnerID,
			PetID:   after.ID,
			Message: fmt.Sprintf("💔 %s has passed away peacefully at %d days old.", after.Name, after.AgeDays),
			Pet:     &after,
		})
	}
	e.publish(pending)
	return outcome, rewardErr
}

// humanizeWait renders a cooldown remainder in whole minutes, rounding up.
func humanizeWait(d time.Duration) string {
	minutes := int((d + time.Minute - 1) / time.Minute)
	if minutes == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", minutes)
}
