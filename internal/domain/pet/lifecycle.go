package pet

import "time"

// Interaction tuning.
const (
	FeedCooldown   = time.Hour
	FeedHunger     = 30
	FeedHealth     = 5
	FeedExperience = 5

	PlayCooldown   = 30 * time.Minute
	PlayHappiness  = 25
	PlayEnergyCost = 10
	PlayExperience = 3

	ActivityExperience = 1
)

// Decay tuning. Rates are per elapsed hour since the stat's reference time.
const (
	hungerGrace      = 1.0
	hungerPerHour    = 2.0
	happinessGrace   = 2.0
	happinessPerHour = 1.0
	energyPerHour    = 0.5

	sickThreshold     = 20
	thrivingThreshold = 80
	sickPenalty       = 5
	thrivingBonus     = 2
)

// DecayOutcome reports the one-time transitions a decay pass produced.
type DecayOutcome struct {
	Evolved       bool
	PreviousStage Stage
	Died          bool
}

// Decay re-derives the pet's vitals, age and stage at now.
// Dead pets are left untouched.
func (p *Pet) Decay(now time.Time) DecayOutcome {
	var out DecayOutcome
	if !p.Alive() {
		return out
	}

	p.settle(now)

	// Health drifts once per distinct pass time. It judges the vitals just
	// settled at now, not the ones stored before this pass.
	if now.After(p.LastDecay) {
		switch {
		case p.Hunger < sickThreshold || p.Happiness < sickThreshold:
			p.Health = Clamp(p.Health - sickPenalty)
		case p.Hunger > thrivingThreshold && p.Happiness > thrivingThreshold:
			p.Health = Clamp(p.Health + thrivingBonus)
		}
		p.LastDecay = now
	}

	if age := AgeDays(p.CreatedAt, now); age > p.AgeDays {
		p.AgeDays = age
		if stage := StageForAge(age); stage > p.Stage {
			out.Evolved = true
			out.PreviousStage = p.Stage
			p.Stage = stage
		}
	}

	out.Died = p.Health == 0
	return out
}

// Feed applies a meal at now. Callers check cooldown, ownership and cost first.
func (p *Pet) Feed(now time.Time) {
	p.settle(now)
	p.Hunger = Clamp(p.Hunger + FeedHunger)
	p.Health = Clamp(p.Health + FeedHealth)
	p.LastFed = now
	p.HungerAnchor = p.Hunger
	p.EnergyAnchor = p.Energy
}

// Play applies a play session at now.
func (p *Pet) Play(now time.Time) {
	p.settle(now)
	p.Happiness = Clamp(p.Happiness + PlayHappiness)
	p.Energy = Clamp(p.Energy - PlayEnergyCost)
	p.LastPlayed = now
	p.HappinessAnchor = p.Happiness
	p.EnergyAnchor = p.Energy + p.energyLoss(now)
}

// AddHappiness applies a flat happiness bonus at now.
func (p *Pet) AddHappiness(bonus int, now time.Time) {
	p.settle(now)
	p.Happiness = Clamp(p.Happiness + bonus)
	p.HappinessAnchor = p.Happiness + p.happinessLoss(now)
}

// GrantExperience adds experience and recomputes the level.
// It reports whether a level was gained, in which case the health bonus was applied.
func (p *Pet) GrantExperience(amount int) bool {
	if amount < 0 {
		amount = 0
	}
	p.Experience += amount
	level := LevelFor(p.Experience)
	if level <= p.Level {
		return false
	}
	p.Level = level
	p.Health = Clamp(p.Health + LevelUpHealthBonus)
	return true
}

// FeedReadyIn is the remaining feed cooldown at now; zero when ready.
func (p Pet) FeedReadyIn(now time.Time) time.Duration {
	return remaining(p.LastFed, FeedCooldown, now)
}

// PlayReadyIn is the remaining play cooldown at now; zero when ready.
func (p Pet) PlayReadyIn(now time.Time) time.Duration {
	return remaining(p.LastPlayed, PlayCooldown, now)
}

// AgeDays is the number of whole days between created and now.
func AgeDays(created, now time.Time) int {
	return truncate(hoursBetween(created, now) / 24)
}

func (p *Pet) settle(now time.Time) {
	p.Hunger = Clamp(p.HungerAnchor - p.hungerLoss(now))
	p.Happiness = Clamp(p.HappinessAnchor - p.happinessLoss(now))
	p.Energy = Clamp(p.EnergyAnchor - p.energyLoss(now))
}

func (p Pet) hungerLoss(now time.Time) int {
	h := hoursBetween(p.LastFed, now)
	if h <= hungerGrace {
		return 0
	}
	return truncate(h * hungerPerHour)
}

func (p Pet) happinessLoss(now time.Time) int {
	h := hoursBetween(p.LastPlayed, now)
	if h <= happinessGrace {
		return 0
	}
	return truncate(h * happinessPerHour)
}

func (p Pet) energyLoss(now time.Time) int {
	return truncate(hoursBetween(p.LastFed, now) * energyPerHour)
}

func remaining(since time.Time, cooldown time.Duration, now time.Time) time.Duration {
	elapsed := now.Sub(since)
	if elapsed >= cooldown {
		return 0
	}
	return cooldown - elapsed
}

func hoursBetween(from, to time.Time) float64 {
	h := to.Sub(from).Hours()
	if h < 0 {
		return 0
	}
	return h
}

// truncate drops the fractional part; inputs are never negative.
func truncate(v float64) int {
	return int(v)
}
