package pet

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestNewPetDefaults(t *testing.T) {
	p := New("pet_1", "u1", SpeciesDragon, epoch)

	assert.Equal(t, "Dragon Pet", p.Name)
	assert.Equal(t, 1, p.Level)
	assert.Equal(t, StageBaby, p.Stage)
	assert.Equal(t, MaxStat, p.Health)
	assert.Equal(t, MaxStat, p.Hunger)
	assert.Equal(t, MaxStat, p.Happiness)
	assert.Equal(t, MaxStat, p.Energy)
	assert.NotNil(t, p.Items)
	assert.True(t, p.Alive())
	assert.Equal(t, "🐉👶", p.Emoji())
}

func TestDecayAfterThreeHours(t *testing.T) {
	// Setup
	p := New("pet_1", "u1", SpeciesDog, epoch)
	now := epoch.Add(3 * time.Hour)

	// Act
	out := p.Decay(now)

	// Assert
	assert.Equal(t, 94, p.Hunger)
	assert.Equal(t, 97, p.Happiness)
	assert.Equal(t, 99, p.Energy)
	assert.Equal(t, MaxStat, p.Health, "thriving bonus saturates at the cap")
	assert.False(t, out.Died)
	assert.False(t, out.Evolved)
}

func TestDecayGracePeriods(t *testing.T) {
	p := New("pet_1", "u1", SpeciesCat, epoch)

	p.Decay(epoch.Add(time.Hour))
	assert.Equal(t, 100, p.Hunger, "no hunger loss within the first hour")

	p.Decay(epoch.Add(2 * time.Hour))
	assert.Equal(t, 96, p.Hunger)
	assert.Equal(t, 100, p.Happiness, "no happiness loss within the first two hours")
}

func TestDecayIsIdempotentForSameInstant(t *testing.T) {
	p := New("pet_1", "u1", SpeciesFish, epoch)
	p.Health = 50
	now := epoch.Add(10 * time.Hour)

	p.Decay(now)
	first := p.Clone()
	p.Decay(now)

	assert.Equal(t, first, p)
}

func TestDecayDoesNotCompound(t *testing.T) {
	a := New("pet_a", "u1", SpeciesBird, epoch)
	b := New("pet_b", "u1", SpeciesBird, epoch)

	for i := 1; i <= 12; i++ {
		a.Decay(epoch.Add(time.Duration(i) * 30 * time.Minute))
	}
	b.Decay(epoch.Add(6 * time.Hour))

	assert.Equal(t, b.Hunger, a.Hunger)
	assert.Equal(t, b.Happiness, a.Happiness)
	assert.Equal(t, b.Energy, a.Energy)
}

func TestDecaySicknessAndDeath(t *testing.T) {
	// Setup: starving pet with little health left
	p := New("pet_1", "u1", SpeciesHamster, epoch)
	p.Health = 3
	now := epoch.Add(45 * time.Hour)

	// Act
	out := p.Decay(now)

	// Assert
	assert.Equal(t, 10, p.Hunger)
	assert.Equal(t, 0, p.Health)
	assert.True(t, out.Died)
	assert.False(t, p.Alive())

	// Deceased pets are frozen
	frozen := p.Clone()
	out = p.Decay(now.Add(48 * time.Hour))
	assert.False(t, out.Died, "death is reported once")
	assert.Equal(t, frozen, p)
}

func TestDecaySicknessPenalty(t *testing.T) {
	p := New("pet_1", "u1", SpeciesHamster, epoch)
	p.Health = 60

	p.Decay(epoch.Add(45 * time.Hour))

	assert.Equal(t, 55, p.Health)
}

func TestHealthJudgesVitalsAfterDecay(t *testing.T) {
	// Setup: stored vitals are all 100, which alone would count as thriving
	p := New("pet_1", "u1", SpeciesHamster, epoch)
	p.Health = 60

	// Act: 41h without food leaves hunger at 100 - 82 = 18
	p.Decay(epoch.Add(41 * time.Hour))

	// Assert: the starving value decides, so health falls instead of rising
	assert.Equal(t, 18, p.Hunger)
	assert.Equal(t, 55, p.Health)
}

func TestEvolution(t *testing.T) {
	p := New("pet_1", "u1", SpeciesUnicorn, epoch)
	now := epoch.Add(3 * 24 * time.Hour)
	p.LastFed = now
	p.LastPlayed = now

	out := p.Decay(now)

	require.True(t, out.Evolved)
	assert.Equal(t, StageBaby, out.PreviousStage)
	assert.Equal(t, StageChild, p.Stage)
	assert.Equal(t, 3, p.AgeDays)

	out = p.Decay(now.Add(time.Hour))
	assert.False(t, out.Evolved, "evolution is reported once per stage")
}

func TestStageNeverRegresses(t *testing.T) {
	p := New("pet_1", "u1", SpeciesCat, epoch)
	p.Stage = StageTeen
	now := epoch.Add(3 * 24 * time.Hour)
	p.LastFed = now
	p.LastPlayed = now

	out := p.Decay(now)

	assert.False(t, out.Evolved)
	assert.Equal(t, StageTeen, p.Stage)
	assert.Equal(t, 3, p.AgeDays)
}

func TestStageForAge(t *testing.T) {
	cases := map[int]Stage{
		0: StageBaby, 2: StageBaby, 3: StageChild, 6: StageChild,
		7: StageTeen, 14: StageAdult, 29: StageAdult, 30: StageElder, 400: StageElder,
	}
	for days, want := range cases {
		assert.Equal(t, want, StageForAge(days), "age %d", days)
	}
}

func TestFeed(t *testing.T) {
	p := New("pet_1", "u1", SpeciesDog, epoch)
	p.HungerAnchor = 50
	p.Health = 80
	now := epoch.Add(2 * time.Hour)

	assert.Zero(t, p.FeedReadyIn(now))
	p.Feed(now)

	assert.Equal(t, 76, p.Hunger)
	assert.Equal(t, 85, p.Health)
	assert.Equal(t, 99, p.Energy)
	assert.Equal(t, now, p.LastFed)
	assert.Equal(t, 30*time.Minute, p.FeedReadyIn(now.Add(30*time.Minute)))

	// Re-deriving at the same instant keeps the fed values.
	p.Decay(now)
	assert.Equal(t, 76, p.Hunger)
	assert.Equal(t, 99, p.Energy)
}

func TestFeedSaturates(t *testing.T) {
	p := New("pet_1", "u1", SpeciesDog, epoch)
	p.Feed(epoch.Add(time.Hour))

	assert.Equal(t, MaxStat, p.Hunger)
	assert.Equal(t, MaxStat, p.Health)
}

func TestPlay(t *testing.T) {
	p := New("pet_1", "u1", SpeciesCat, epoch)
	p.HappinessAnchor = 60
	now := epoch.Add(4 * time.Hour)

	p.Play(now)

	assert.Equal(t, 81, p.Happiness)
	assert.Equal(t, 88, p.Energy)
	assert.Equal(t, now, p.LastPlayed)
	assert.Equal(t, 20*time.Minute, p.PlayReadyIn(now.Add(10*time.Minute)))

	p.Decay(now)
	assert.Equal(t, 81, p.Happiness)
	assert.Equal(t, 88, p.Energy)
}

func TestPlayEnergyFloorsAtZero(t *testing.T) {
	p := New("pet_1", "u1", SpeciesCat, epoch)
	p.EnergyAnchor = 5

	p.Play(epoch)

	assert.Equal(t, 0, p.Energy)
}

func TestAddHappiness(t *testing.T) {
	p := New("pet_1", "u1", SpeciesBird, epoch)
	now := epoch.Add(5 * time.Hour)

	p.AddHappiness(15, now)

	assert.Equal(t, MaxStat, p.Happiness)

	p.HappinessAnchor = 50
	p.AddHappiness(20, now)
	assert.Equal(t, 65, p.Happiness)

	p.Decay(now)
	assert.Equal(t, 65, p.Happiness)
}

func TestGrantExperienceLevelUp(t *testing.T) {
	p := New("pet_1", "u1", SpeciesPhoenix, epoch)
	p.Experience = 97
	p.Health = 70

	leveled := p.GrantExperience(FeedExperience)

	assert.True(t, leveled)
	assert.Equal(t, 102, p.Experience)
	assert.Equal(t, 2, p.Level)
	assert.Equal(t, 80, p.Health)

	leveled = p.GrantExperience(1)
	assert.False(t, leveled)
	assert.Equal(t, 80, p.Health, "bonus applies once per level")
}

func TestGrantExperienceIgnoresNegative(t *testing.T) {
	p := New("pet_1", "u1", SpeciesPhoenix, epoch)
	p.GrantExperience(-50)
	assert.Equal(t, 0, p.Experience)
	assert.Equal(t, 1, p.Level)
}

func TestValidateName(t *testing.T) {
	name, ok := ValidateName("  Rex  ")
	assert.True(t, ok)
	assert.Equal(t, "Rex", name)

	_, ok = ValidateName("   ")
	assert.False(t, ok)

	_, ok = ValidateName(strings.Repeat("a", 21))
	assert.False(t, ok)

	_, ok = ValidateName(strings.Repeat("ñ", 20))
	assert.True(t, ok, "length counts runes")
}

func TestBar(t *testing.T) {
	assert.Equal(t, "█████░░░░░ 50%", Bar(50))
	assert.Equal(t, "░░░░░░░░░░ 0%", Bar(0))
	assert.Equal(t, "██████████ 100%", Bar(140))
}

func TestSpeciesParsing(t *testing.T) {
	s, ok := ParseSpecies("dragon")
	require.True(t, ok)
	assert.Equal(t, SpeciesDragon, s)

	_, ok = ParseSpecies("lizard")
	assert.False(t, ok)

	assert.Len(t, AllSpecies(), 8)
}

func TestPetJSONUsesNames(t *testing.T) {
	p := New("pet_1", "u1", SpeciesDog, epoch)

	raw, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"species":"Dog"`)
	assert.Contains(t, string(raw), `"stage":"baby"`)

	var back Pet
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, SpeciesDog, back.Species)
	assert.Equal(t, StageBaby, back.Stage)
}
