package pet

import (
	"fmt"
	"strings"
)

// Species is the closed set of adoptable pet kinds.
type Species uint8

const (
	SpeciesUnknown Species = iota
	SpeciesDog
	SpeciesCat
	SpeciesBird
	SpeciesFish
	SpeciesHamster
	SpeciesDragon
	SpeciesPhoenix
	SpeciesUnicorn
)

type speciesInfo struct {
	name  string
	emoji string
}

var speciesTable = [...]speciesInfo{
	SpeciesUnknown: {name: "Unknown", emoji: "🐾"},
	SpeciesDog:     {name: "Dog", emoji: "🐕"},
	SpeciesCat:     {name: "Cat", emoji: "🐱"},
	SpeciesBird:    {name: "Bird", emoji: "🐦"},
	SpeciesFish:    {name: "Fish", emoji: "🐠"},
	SpeciesHamster: {name: "Hamster", emoji: "🐹"},
	SpeciesDragon:  {name: "Dragon", emoji: "🐉"},
	SpeciesPhoenix: {name: "Phoenix", emoji: "🔥"},
	SpeciesUnicorn: {name: "Unicorn", emoji: "🦄"},
}

// AllSpecies lists every adoptable species in catalogue order.
func AllSpecies() []Species {
	out := make([]Species, 0, len(speciesTable)-1)
	for s := SpeciesDog; int(s) < len(speciesTable); s++ {
		out = append(out, s)
	}
	return out
}

// ParseSpecies resolves a species by name, ignoring case.
func ParseSpecies(name string) (Species, bool) {
	name = strings.TrimSpace(name)
	for _, s := range AllSpecies() {
		if strings.EqualFold(speciesTable[s].name, name) {
			return s, true
		}
	}
	return SpeciesUnknown, false
}

func (s Species) Valid() bool {
	return s > SpeciesUnknown && int(s) < len(speciesTable)
}

func (s Species) String() string {
	if int(s) >= len(speciesTable) {
		return speciesTable[SpeciesUnknown].name
	}
	return speciesTable[s].name
}

func (s Species) Emoji() string {
	if int(s) >= len(speciesTable) {
		return speciesTable[SpeciesUnknown].emoji
	}
	return speciesTable[s].emoji
}

func (s Species) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("pet: invalid species %d", s)
	}
	return []byte(s.String()), nil
}

func (s *Species) UnmarshalText(b []byte) error {
	parsed, ok := ParseSpecies(string(b))
	if !ok {
		return fmt.Errorf("pet: unknown species %q", string(b))
	}
	*s = parsed
	return nil
}
