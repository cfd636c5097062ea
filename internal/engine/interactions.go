package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MRamiBalles/PetGuild/internal/domain/item"
	"github.com/MRamiBalles/PetGuild/internal/domain/pet"
	"github.com/MRamiBalles/PetGuild/internal/events"
	"github.com/MRamiBalles/PetGuild/internal/ledger"
	"github.com/MRamiBalles/PetGuild/internal/store"
)

// Adopt creates a pet for owner. The living-pet cap check, the adoption
// charge and the pet write happen under the owner's account lock.
func (e *Engine) Adopt(tenant, owner string, species pet.Species) (Outcome, error) {
	if !species.Valid() {
		return Outcome{}, e.observe("adopt", tenant, store.Reject(store.ReasonInvalidInput, "Unknown pet species."))
	}
	now := e.clock.Now()
	var out Outcome
	err := e.ledger.WithAccount(tenant, owner, func(a *ledger.Account) error {
		alive, err := e.alivePetsOf(tenant, owner)
		if err != nil {
			return err
		}
		if len(alive) >= pet.MaxAlivePerOwner {
			return store.Reject(store.ReasonCapacityExceeded,
				"You can only have %d active pets at a time!", pet.MaxAlivePerOwner)
		}
		if err := a.Debit(e.cfg.AdoptionCost, PurposeAdoption); err != nil {
			return err
		}
		id, err := e.newID()
		if err != nil {
			return fmt.Errorf("generate pet id: %w", err)
		}
		p := pet.New(id, owner, species, now)
		if err := e.savePet(tenant, p); err != nil {
			return err
		}
		out = Outcome{
			Pet:     p,
			Balance: a.Balance(),
			Message: fmt.Sprintf("You adopted %s %s for %s tokens!",
				p.Species.Emoji(), p.Name, e.ledger.FormatTokens(e.cfg.AdoptionCost)),
		}
		return nil
	})
	if err != nil {
		return Outcome{}, e.observe("adopt", tenant, err)
	}
	e.publish([]events.Event{{
		Tenant: tenant, Type: events.EventTypePetAdopted, ActorID: owner,
		PetID: out.Pet.ID, Message: out.Message, Pet: &out.Pet,
	}})
	return out, e.observe("adopt", tenant, nil)
}

// Feed spends the food cost and feeds the pet.
// Checks run in order: existence, ownership, death, cooldown, funds.
func (e *Engine) Feed(tenant, petID, requester string) (Outcome, error) {
	now := e.clock.Now()
	var out Outcome
	err := e.ledger.WithAccount(tenant, requester, func(a *ledger.Account) error {
		unlock := e.store.Locks().Lock(store.PetKey(tenant, petID))
		defer unlock()

		p, err := e.loadPet(tenant, petID)
		if err != nil {
			return err
		}
		if err := ownedAlive(p, requester); err != nil {
			return err
		}
		if wait := p.FeedReadyIn(now); wait > 0 {
			return store.Reject(store.ReasonTooSoon,
				"%s is not hungry yet! Try again in %s.", p.Name, humanizeWait(wait))
		}
		if err := a.Debit(e.cfg.FoodCost, PurposeFood); err != nil {
			return err
		}
		p.Feed(now)
		out.LevelUp = p.GrantExperience(pet.FeedExperience)
		if err := e.savePet(tenant, p); err != nil {
			return err
		}
		out.Pet = p
		out.Balance = a.Balance()
		out.Message = fmt.Sprintf("%s enjoyed the meal! +%d hunger, +%d health", p.Name, pet.FeedHunger, pet.FeedHealth)
		return nil
	})
	if err != nil {
		return Outcome{}, e.observe("feed", tenant, err)
	}
	e.publish(e.interactionEvents(tenant, requester, events.EventTypePetFed, out))
	return out, e.observe("feed", tenant, nil)
}

// Play plays with the pet. Playing is free, so only the pet is locked.
func (e *Engine) Play(tenant, petID, requester string) (Outcome, error) {
	now := e.clock.Now()
	var out Outcome
	err := e.withPet(tenant, petID, func(p *pet.Pet) error {
		if err := ownedAlive(*p, requester); err != nil {
			return err
		}
		if wait := p.PlayReadyIn(now); wait > 0 {
			return store.Reject(store.ReasonTooSoon,
				"%s is tired! Let them rest for %s.", p.Name, humanizeWait(wait))
		}
		p.Play(now)
		out.LevelUp = p.GrantExperience(pet.PlayExperience)
		out.Message = fmt.Sprintf("You played with %s! +%d happiness, -%d energy", p.Name, pet.PlayHappiness, pet.PlayEnergyCost)
		return nil
	}, &out.Pet)
	if err != nil {
		return Outcome{}, e.observe("play", tenant, err)
	}
	if out.Balance, err = e.ledger.Balance(tenant, requester); err != nil {
		return Outcome{}, e.observe("play", tenant, err)
	}
	e.publish(e.interactionEvents(tenant, requester, events.EventTypePetPlayed, out))
	return out, e.observe("play", tenant, nil)
}

// BuyItem buys a pet-category shop item for one of the requester's pets
// and applies its happiness bonus.
func (e *Engine) BuyItem(tenant, petID, requester, itemName string) (Outcome, error) {
	it, err := e.ledger.Item(tenant, itemName)
	if err != nil {
		return Outcome{}, e.observe("buy_item", tenant, err)
	}
	if it.Category != item.CategoryPet {
		return Outcome{}, e.observe("buy_item", tenant,
			store.Reject(store.ReasonWrongCategory, "%s is not a pet item.", it.Name))
	}
	now := e.clock.Now()
	var out Outcome
	err = e.ledger.WithAccount(tenant, requester, func(a *ledger.Account) error {
		unlock := e.store.Locks().Lock(store.PetKey(tenant, petID))
		defer unlock()

		p, err := e.loadPet(tenant, petID)
		if err != nil {
			return err
		}
		if err := ownedAlive(p, requester); err != nil {
			return err
		}
		if err := a.Debit(it.Price, PurposePetItem); err != nil {
			return err
		}
		p.Items = append(p.Items, it.Name)
		if bonus := item.HappinessBonus(it.Name); bonus > 0 {
			p.AddHappiness(bonus, now)
		}
		if err := e.savePet(tenant, p); err != nil {
			return err
		}
		out.Pet = p
		out.Balance = a.Balance()
		out.Message = fmt.Sprintf("Bought %s for %s!", it.Name, p.Name)
		return nil
	})
	if err != nil {
		return Outcome{}, e.observe("buy_item", tenant, err)
	}
	e.publish(e.interactionEvents(tenant, requester, events.EventTypeItemBought, out))
	return out, e.observe("buy_item", tenant, nil)
}

// Rename gives a living pet a new name, unique among its owner's pets.
// The owner's account lock serialises concurrent renames by the same owner.
func (e *Engine) Rename(tenant, petID, requester, newName string) (Outcome, error) {
	name, ok := pet.ValidateName(newName)
	if !ok {
		return Outcome{}, e.observe("rename", tenant, store.Reject(store.ReasonInvalidInput,
			"Pet names must be between 1 and %d characters.", pet.MaxNameLength))
	}
	var out Outcome
	err := e.ledger.WithAccount(tenant, requester, func(a *ledger.Account) error {
		siblings, err := e.PetsOf(tenant, requester)
		if err != nil {
			return err
		}
		for _, s := range siblings {
			if s.ID != petID && strings.EqualFold(s.Name, name) {
				return store.Reject(store.ReasonDuplicateName, "You already have a pet named %s.", s.Name)
			}
		}
		out.Balance = a.Balance()
		return e.withPet(tenant, petID, func(p *pet.Pet) error {
			if err := ownedAlive(*p, requester); err != nil {
				return err
			}
			out.Message = fmt.Sprintf("%s is now called %s.", p.Name, name)
			p.Name = name
			return nil
		}, &out.Pet)
	})
	if err != nil {
		return Outcome{}, e.observe("rename", tenant, err)
	}
	e.publish(e.interactionEvents(tenant, requester, events.EventTypePetRenamed, out))
	return out, e.observe("rename", tenant, nil)
}

// GrantExperience adds experience to a living pet. LevelUp is set when the
// level rose, in which case the one-time health bonus was applied.
func (e *Engine) GrantExperience(tenant, petID string, amount int) (Outcome, error) {
	if amount < 0 {
		return Outcome{}, e.observe("grant_experience", tenant,
			store.Reject(store.ReasonInvalidInput, "Experience must not be negative."))
	}
	var out Outcome
	err := e.withPet(tenant, petID, func(p *pet.Pet) error {
		if !p.Alive() {
			return store.Reject(store.ReasonDeceased, "%s has passed away.", p.Name)
		}
		out.LevelUp = p.GrantExperience(amount)
		out.Message = fmt.Sprintf("%s gained %d experience.", p.Name, amount)
		return nil
	}, &out.Pet)
	if err != nil {
		return Outcome{}, e.observe("grant_experience", tenant, err)
	}
	if out.LevelUp {
		e.publish([]events.Event{e.levelUpEvent(tenant, out.Pet.OwnerID, out.Pet)})
	}
	return out, e.observe("grant_experience", tenant, nil)
}

// ActivityResult reports what one chat message earned.
type ActivityResult struct {
	Bonus     int64     `json:"bonus"`
	LeveledUp []pet.Pet `json:"leveled_up,omitempty"`
}

// RecordActivity credits the chat bonus and gives every living pet of the
// account one experience point.
func (e *Engine) RecordActivity(tenant, accountID string) (ActivityResult, error) {
	var res ActivityResult
	bonus, err := e.ledger.RecordActivity(tenant, accountID)
	if err != nil {
		return res, e.observe("activity", tenant, err)
	}
	res.Bonus = bonus

	alive, err := e.alivePetsOf(tenant, accountID)
	if err != nil {
		return res, e.observe("activity", tenant, err)
	}
	var pending []events.Event
	for _, candidate := range alive {
		var leveled bool
		var after pet.Pet
		err := e.withPet(tenant, candidate.ID, func(p *pet.Pet) error {
			if !p.Alive() {
				return errSkip
			}
			leveled = p.GrantExperience(pet.ActivityExperience)
			return nil
		}, &after)
		if errors.Is(err, errSkip) {
			continue
		}
		if err != nil {
			return res, e.observe("activity", tenant, err)
		}
		if leveled {
			res.LeveledUp = append(res.LeveledUp, after)
			pending = append(pending, e.levelUpEvent(tenant, accountID, after))
		}
	}
	e.publish(pending)
	return res, e.observe("activity", tenant, nil)
}

func (e *Engine) interactionEvents(tenant, actor string, typ events.EventType, out Outcome) []events.Event {
	evs := []events.Event{{
		Tenant: tenant, Type: typ, ActorID: actor,
		PetID: out.Pet.ID, Message: out.Message, Pet: &out.Pet,
	}}
	if out.LevelUp {
		evs = append(evs, e.levelUpEvent(tenant, actor, out.Pet))
	}
	return evs
}

func (e *Engine) levelUpEvent(tenant, actor string, p pet.Pet) events.Event {
	return events.Event{
		Tenant:  tenant,
		Type:    events.EventTypeLevelUp,
		ActorID: actor,
		PetID:   p.ID,
		Message: fmt.Sprintf("⬆️ %s reached level %d! +%d health", p.Name, p.Level, pet.LevelUpHealthBonus),
		Pet:     &p,
	}
}
