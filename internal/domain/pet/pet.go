// Package pet defines the core domain entity for virtual pets.
// This package is PURE and must NOT import any infrastructure packages (network, events, platform).
package pet

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// MaxStat is the saturation bound for every vitality stat.
	MaxStat = 100
	// MaxNameLength is measured in runes.
	MaxNameLength = 20
	// MaxAlivePerOwner caps how many living pets one account may keep.
	MaxAlivePerOwner = 3
	// ExperiencePerLevel is the experience span of one level.
	ExperiencePerLevel = 100
	// LevelUpHealthBonus is applied once per level gained.
	LevelUpHealthBonus = 10
)

// Pet represents the state of one simulated companion.
type Pet struct {
	ID      string  `json:"id"`
	OwnerID string  `json:"owner_id"`
	Species Species `json:"species"`
	Name    string  `json:"name"`

	Level      int `json:"level"`
	Experience int `json:"experience"`

	// Vitals
	Health    int `json:"health"`    // 0-100 (0 = deceased)
	Hunger    int `json:"hunger"`    // 0-100 (0 = starving)
	Happiness int `json:"happiness"` // 0-100
	Energy    int `json:"energy"`    // 0-100

	AgeDays int      `json:"age_days"`
	Stage   Stage    `json:"stage"`
	Items   []string `json:"items"`

	LastFed    time.Time `json:"last_fed"`
	LastPlayed time.Time `json:"last_played"`
	CreatedAt  time.Time `json:"created_at"`

	// Decay anchors: the stat value at its reference time (LastFed or LastPlayed).
	// Current values are re-derived from these so repeated passes never compound.
	HungerAnchor    int       `json:"hunger_anchor"`
	HappinessAnchor int       `json:"happiness_anchor"`
	EnergyAnchor    int       `json:"energy_anchor"`
	LastDecay       time.Time `json:"last_decay"`
}

// New creates a fresh baby pet with full vitals.
func New(id, ownerID string, species Species, now time.Time) Pet {
	return Pet{
		ID:              id,
		OwnerID:         ownerID,
		Species:         species,
		Name:            species.String() + " Pet",
		Level:           1,
		Experience:      0,
		Health:          MaxStat,
		Hunger:          MaxStat,
		Happiness:       MaxStat,
		Energy:          MaxStat,
		AgeDays:         0,
		Stage:           StageBaby,
		Items:           []string{},
		LastFed:         now,
		LastPlayed:      now,
		CreatedAt:       now,
		HungerAnchor:    MaxStat,
		HappinessAnchor: MaxStat,
		EnergyAnchor:    MaxStat,
		LastDecay:       now,
	}
}

// Alive reports whether the pet has not yet died.
func (p Pet) Alive() bool {
	return p.Health > 0
}

// Clone returns a copy that shares no slices with p.
func (p Pet) Clone() Pet {
	c := p
	c.Items = append([]string(nil), p.Items...)
	if c.Items == nil {
		c.Items = []string{}
	}
	return c
}

// Emoji returns the species glyph followed by the stage glyph.
func (p Pet) Emoji() string {
	return p.Species.Emoji() + p.Stage.Emoji()
}

// ValidateName checks a candidate display name.
func ValidateName(name string) (string, bool) {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	if n == 0 || n > MaxNameLength {
		return name, false
	}
	return name, true
}

// Clamp saturates v into [0, MaxStat].
func Clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > MaxStat {
		return MaxStat
	}
	return v
}

// LevelFor derives the level from accumulated experience.
func LevelFor(experience int) int {
	if experience < 0 {
		experience = 0
	}
	return experience/ExperiencePerLevel + 1
}

// Bar renders a 10-segment stat bar such as "█████░░░░░ 50%".
func Bar(value int) string {
	value = Clamp(value)
	filled := (value + 5) / 10
	return strings.Repeat("█", filled) + strings.Repeat("░", 10-filled) + " " + strconv.Itoa(value) + "%"
}
