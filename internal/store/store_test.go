package store

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MRamiBalles/PetGuild/internal/domain/account"
	"github.com/MRamiBalles/PetGuild/internal/domain/item"
	"github.com/MRamiBalles/PetGuild/internal/domain/pet"
)

func provisioned(t *testing.T, tenants ...string) *Store {
	t.Helper()
	s := New()
	for _, id := range tenants {
		created, err := s.Provision(id)
		require.NoError(t, err)
		require.True(t, created)
	}
	return s
}

func TestProvisionFromTemplate(t *testing.T) {
	s := provisioned(t, "g1")

	keys, err := s.Keys("g1", FieldShop)
	require.NoError(t, err)
	assert.Len(t, keys, 6)

	food, ok, err := GetAs[item.Item](s, "g1", Path(FieldShop, item.PetFood))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(50), food.Price)
	assert.Equal(t, item.CategoryPet, food.Category)

	counting, ok, err := GetAs[Counting](s, "g1", FieldCounting)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, counting.Number)

	created, err := s.Provision("g1")
	require.NoError(t, err)
	assert.False(t, created, "second provisioning is a no-op")
}

func TestTenantsAreIsolated(t *testing.T) {
	s := provisioned(t, "g1", "g2")

	require.NoError(t, s.Delete("g1", Path(FieldShop, item.VIPRole)))

	_, ok, err := s.Get("g1", Path(FieldShop, item.VIPRole))
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = s.Get("g2", Path(FieldShop, item.VIPRole))
	require.NoError(t, err)
	assert.True(t, ok, "template must not be shared between tenants")

	assert.Equal(t, []string{"g1", "g2"}, s.Tenants())
}

func TestUnknownTenantIsInvariantViolation(t *testing.T) {
	s := New()

	_, _, err := s.Get("ghost", FieldPets)
	assert.ErrorIs(t, err, ErrUnknownTenant)
	assert.ErrorIs(t, err, ErrInvariant)

	err = s.Set("ghost", "config.prefix", "!")
	assert.ErrorIs(t, err, ErrUnknownTenant)
	assert.False(t, s.Provisioned("ghost"))
}

func TestSetCreatesIntermediateMaps(t *testing.T) {
	s := provisioned(t, "g1")

	require.NoError(t, s.Set("g1", "config.welcome.channel", "general"))

	v, ok, err := s.Get("g1", "config.welcome.channel")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "general", v)

	keys, err := s.Keys("g1", "config")
	require.NoError(t, err)
	assert.Equal(t, []string{"welcome"}, keys)
}

func TestCountingNumberPath(t *testing.T) {
	s := provisioned(t, "g1")

	v, ok, err := s.Get("g1", "counting.number")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, v)

	require.NoError(t, s.Set("g1", "counting.number", 5))
	require.NoError(t, s.Set("g1", "counting.last_user", "u1"))

	counting, _, err := GetAs[Counting](s, "g1", FieldCounting)
	require.NoError(t, err)
	assert.Equal(t, 5, counting.Number)
	assert.Equal(t, "u1", counting.LastUser)
}

func TestEntityFieldPaths(t *testing.T) {
	s := provisioned(t, "g1")
	p := pet.New("pet_1", "u1", pet.SpeciesCat, time.Now())
	p.Items = []string{item.PetToy}
	require.NoError(t, s.Set("g1", "pets.pet_1", p))
	require.NoError(t, s.Set("g1", "accounts.u1", account.Balance{Amount: 10}))
	before, _, err := GetAs[pet.Pet](s, "g1", "pets.pet_1")
	require.NoError(t, err)

	hunger, ok, err := s.Get("g1", "pets.pet_1.hunger")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 100, hunger)

	require.NoError(t, s.Set("g1", "pets.pet_1.hunger", 42))
	require.NoError(t, s.Set("g1", "pets.pet_1.species", "dragon"))
	require.NoError(t, s.Set("g1", "accounts.u1.amount", 75))

	after, _, err := GetAs[pet.Pet](s, "g1", "pets.pet_1")
	require.NoError(t, err)
	assert.Equal(t, 42, after.Hunger)
	assert.Equal(t, pet.SpeciesDragon, after.Species)
	assert.Equal(t, 100, after.Health)
	assert.Equal(t, 100, before.Hunger, "earlier reads keep their value")

	items, _, err := s.Get("g1", "pets.pet_1.items")
	require.NoError(t, err)
	items.([]string)[0] = "changed"
	again, _, err := GetAs[pet.Pet](s, "g1", "pets.pet_1")
	require.NoError(t, err)
	assert.Equal(t, []string{item.PetToy}, again.Items)

	bal, _, err := GetAs[account.Balance](s, "g1", "accounts.u1")
	require.NoError(t, err)
	assert.Equal(t, int64(75), bal.Amount)
}

func TestEntityFieldPathErrors(t *testing.T) {
	s := provisioned(t, "g1")
	require.NoError(t, s.Set("g1", "pets.pet_1", pet.New("pet_1", "u1", pet.SpeciesCat, time.Now())))

	_, ok, err := s.Get("g1", "pets.pet_1.missing")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, s.Set("g1", "pets.pet_1.missing", 1), ErrInvariant)
	assert.ErrorIs(t, s.Set("g1", "pets.pet_1.hunger", "lots"), ErrInvariant)
	assert.ErrorIs(t, s.Set("g1", "pets.pet_1.species", "griffin"), ErrInvariant)
	assert.ErrorIs(t, s.Set("g1", "counting.number.digits", 2), ErrInvariant)

	p, _, err := GetAs[pet.Pet](s, "g1", "pets.pet_1")
	require.NoError(t, err)
	assert.Equal(t, 100, p.Hunger)
	assert.Equal(t, pet.SpeciesCat, p.Species)
}

func TestMalformedPath(t *testing.T) {
	s := provisioned(t, "g1")

	_, _, err := s.Get("g1", "pets..x")
	assert.ErrorIs(t, err, ErrInvariant)
	assert.ErrorIs(t, s.Set("g1", "", 1), ErrInvariant)
}

func TestGetAsWrongType(t *testing.T) {
	s := provisioned(t, "g1")
	require.NoError(t, s.Set("g1", "accounts.u1", "not a balance"))

	_, _, err := GetAs[account.Balance](s, "g1", "accounts.u1")
	assert.ErrorIs(t, err, ErrInvariant)
}

func TestGetReturnsDetachedCopies(t *testing.T) {
	s := provisioned(t, "g1")
	p := pet.New("pet_1", "u1", pet.SpeciesCat, time.Now())
	require.NoError(t, s.Set("g1", "pets.pet_1", p))

	got, _, err := GetAs[pet.Pet](s, "g1", "pets.pet_1")
	require.NoError(t, err)
	got.Items = append(got.Items, "Pet Toy")

	again, _, err := GetAs[pet.Pet](s, "g1", "pets.pet_1")
	require.NoError(t, err)
	assert.Empty(t, again.Items)

	whole, _, err := s.Get("g1", FieldPets)
	require.NoError(t, err)
	delete(whole.(map[string]any), "pet_1")
	_, ok, err := s.Get("g1", "pets.pet_1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAppendTrimsOldest(t *testing.T) {
	s := provisioned(t, "g1")
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < MaxCommands+10; i++ {
		require.NoError(t, s.Append("g1", FieldCommands, AuditEntry{
			At:   base.Add(time.Duration(i) * time.Second),
			Text: fmt.Sprintf("cmd-%d", i),
		}))
	}

	list, err := s.Audit("g1", FieldCommands)
	require.NoError(t, err)
	require.Len(t, list, MaxCommands)
	assert.Equal(t, "cmd-10", list[0].Text)
	assert.Equal(t, fmt.Sprintf("cmd-%d", MaxCommands+9), list[len(list)-1].Text)
}

func TestAppendRejectsUnknownList(t *testing.T) {
	s := provisioned(t, "g1")
	err := s.Append("g1", FieldPets, AuditEntry{})
	assert.ErrorIs(t, err, ErrInvariant)
}

func TestPruneAudit(t *testing.T) {
	s := provisioned(t, "g1")
	now := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Append("g1", FieldMessages, AuditEntry{At: now.Add(-8 * 24 * time.Hour), Text: "old"}))
	require.NoError(t, s.Append("g1", FieldMessages, AuditEntry{At: now.Add(-time.Hour), Text: "fresh"}))
	require.NoError(t, s.Append("g1", FieldCommands, AuditEntry{At: now.Add(-30 * 24 * time.Hour), Text: "ancient"}))

	removed, err := s.PruneAudit("g1", now.Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	msgs, err := s.Audit("g1", FieldMessages)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "fresh", msgs[0].Text)
}

func TestSnapshotRestore(t *testing.T) {
	src := provisioned(t, "g1")
	now := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	p := pet.New("pet_1", "u1", pet.SpeciesDragon, now)
	p.Items = []string{item.PetToy}

	require.NoError(t, src.Set("g1", "pets.pet_1", p))
	require.NoError(t, src.Set("g1", "accounts.u1", account.Balance{Amount: 42, LastActivity: now}))
	require.NoError(t, src.Set("g1", "config.prefix", "!"))
	require.NoError(t, src.Append("g1", FieldMessages, AuditEntry{At: now, Actor: "u1", Text: "hi"}))

	data, err := src.Snapshot("g1")
	require.NoError(t, err)

	dst := New()
	require.NoError(t, dst.Restore("g1", data))

	gotPet, ok, err := GetAs[pet.Pet](dst, "g1", "pets.pet_1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, pet.SpeciesDragon, gotPet.Species)
	assert.Equal(t, []string{item.PetToy}, gotPet.Items)
	assert.True(t, now.Equal(gotPet.CreatedAt))

	bal, ok, err := GetAs[account.Balance](dst, "g1", "accounts.u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(42), bal.Amount)

	prefix, ok, err := dst.Get("g1", "config.prefix")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "!", prefix)

	msgs, err := dst.Audit("g1", FieldMessages)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestSnapshotDuringWrites(t *testing.T) {
	s := provisioned(t, "g1")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			assert.NoError(t, s.Set("g1", fmt.Sprintf("config.k%d", i), i))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			_, err := s.Snapshot("g1")
			assert.NoError(t, err)
		}
	}()
	wg.Wait()

	data, err := s.Snapshot("g1")
	require.NoError(t, err)
	dst := New()
	require.NoError(t, dst.Restore("g1", data))
	keys, err := dst.Keys("g1", FieldConfig)
	require.NoError(t, err)
	assert.Len(t, keys, 500)
}

func TestSnapshotRejectsMistypedEntity(t *testing.T) {
	s := provisioned(t, "g1")
	require.NoError(t, s.Set("g1", "pets.bad", 7))

	_, err := s.Snapshot("g1")
	assert.True(t, errors.Is(err, ErrInvariant))
}

func TestKeyLockSerialisesPerKey(t *testing.T) {
	locks := NewKeyLock()
	counter := 0
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock(PetKey("g1", "pet_1"))
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, counter)
	assert.Zero(t, locks.Len(), "idle keys are released")
}

func TestKeyLockIndependentKeys(t *testing.T) {
	locks := NewKeyLock()
	unlockA := locks.Lock(AccountKey("g1", "a"))
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := locks.Lock(AccountKey("g1", "b"))
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
}

func TestRejectionHelpers(t *testing.T) {
	err := fmt.Errorf("feed: %w", Reject(ReasonTooSoon, "wait %d minutes", 30))

	assert.True(t, IsRejection(err))
	reason, ok := ReasonOf(err)
	assert.True(t, ok)
	assert.Equal(t, ReasonTooSoon, reason)
	assert.False(t, IsRejection(ErrInvariant))
}
