package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MRamiBalles/PetGuild/internal/domain/pet"
	"github.com/MRamiBalles/PetGuild/internal/platform/clock"
	"github.com/MRamiBalles/PetGuild/internal/platform/logger"
	"github.com/MRamiBalles/PetGuild/internal/platform/metrics"
)

type recordingPersister struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *recordingPersister) Append(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, e)
	return nil
}

func (r *recordingPersister) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func newLog(opts ...Option) (*EventLog, *clock.Fake) {
	clk := clock.NewFake(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	return NewEventLog(clk, logger.NewNop(), metrics.NewNop(), opts...), clk
}

func TestAppendStampsEvents(t *testing.T) {
	// Setup
	el, clk := newLog()

	// Act
	first := el.Append(Event{Tenant: "g1", Type: EventTypePetFed, ActorID: "u1", PetID: "p1"})
	clk.Advance(time.Minute)
	second := el.Append(Event{Tenant: "g1", Type: EventTypePetPlayed, ActorID: "u1", PetID: "p1"})

	// Assert
	assert.NotEmpty(t, first.ID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, uint64(2), second.Seq)
	assert.Equal(t, clk.Now(), second.Timestamp)
	assert.Equal(t, uint64(2), el.LastSeq())
}

func TestAppendSnapshotsPet(t *testing.T) {
	el, clk := newLog()
	p := pet.New("p1", "u1", pet.SpeciesDog, clk.Now())
	p.Items = []string{"Pet Toy"}

	stored := el.Append(Event{Tenant: "g1", Type: EventTypeItemBought, PetID: p.ID, Pet: &p})
	p.Items[0] = "changed"
	p.Hunger = 1

	require.NotNil(t, stored.Pet)
	assert.Equal(t, []string{"Pet Toy"}, stored.Pet.Items)
	assert.Equal(t, 100, el.Replay()[0].Pet.Hunger)
}

func TestSinceFiltersByTenantAndSeq(t *testing.T) {
	el, _ := newLog()
	el.Append(Event{Tenant: "g1", Type: EventTypePetFed})
	el.Append(Event{Tenant: "g2", Type: EventTypePetFed})
	el.Append(Event{Tenant: "g1", Type: EventTypePetDied})

	g1 := el.Since("g1", 1)
	require.Len(t, g1, 1)
	assert.Equal(t, EventTypePetDied, g1[0].Type)

	assert.Len(t, el.Since("", 0), 3)
	assert.Empty(t, el.Since("g3", 0))
}

func TestByPet(t *testing.T) {
	el, _ := newLog()
	el.Append(Event{Tenant: "g1", Type: EventTypePetAdopted, PetID: "a"})
	el.Append(Event{Tenant: "g1", Type: EventTypePetAdopted, PetID: "b"})
	el.Append(Event{Tenant: "g2", Type: EventTypePetAdopted, PetID: "a"})
	el.Append(Event{Tenant: "g1", Type: EventTypePetFed, PetID: "a"})

	history := el.ByPet("g1", "a")
	require.Len(t, history, 2)
	assert.Equal(t, EventTypePetAdopted, history[0].Type)
	assert.Equal(t, EventTypePetFed, history[1].Type)
}

func TestCapacityDropsOldest(t *testing.T) {
	el, _ := newLog(WithCapacity(3))
	for i := 0; i < 5; i++ {
		el.Append(Event{Tenant: "g1", Type: EventTypePetFed})
	}

	kept := el.Replay()
	require.Len(t, kept, 3)
	assert.Equal(t, uint64(3), kept[0].Seq)
	assert.Equal(t, uint64(5), kept[2].Seq)
}

func TestPersisterReceivesEvents(t *testing.T) {
	p := &recordingPersister{}
	el, _ := newLog(WithPersister(p))

	for i := 0; i < 10; i++ {
		el.Append(Event{Tenant: "g1", Type: EventTypePetFed})
	}
	el.Flush()

	assert.Equal(t, 10, p.count())
}

func TestPersisterFailureDoesNotLoseEvent(t *testing.T) {
	p := &recordingPersister{err: errors.New("disk full")}
	el, _ := newLog(WithPersister(p))

	el.Append(Event{Tenant: "g1", Type: EventTypePetFed})
	el.Flush()

	assert.Len(t, el.Replay(), 1)
	assert.Equal(t, 0, p.count())
}

func TestSubscribersAreNotifiedInOrder(t *testing.T) {
	el, _ := newLog()
	var got []uint64
	el.Subscribe(SubscriberFunc(func(_ context.Context, e Event) error {
		got = append(got, e.Seq)
		return nil
	}))
	el.Subscribe(SubscriberFunc(func(context.Context, Event) error {
		return errors.New("offline")
	}))

	el.Append(Event{Tenant: "g1", Type: EventTypePetFed})
	el.Append(Event{Tenant: "g1", Type: EventTypePetPlayed})

	assert.Equal(t, []uint64{1, 2}, got)
	assert.Len(t, el.Replay(), 2)
}

func TestRestoreContinuesSequence(t *testing.T) {
	el, _ := newLog()
	el.Restore([]Event{
		{ID: "a", Seq: 7, Tenant: "g1", Type: EventTypePetAdopted},
		{ID: "b", Seq: 9, Tenant: "g1", Type: EventTypePetFed},
	})

	next := el.Append(Event{Tenant: "g1", Type: EventTypePetPlayed})

	assert.Equal(t, uint64(10), next.Seq)
	assert.Len(t, el.Since("g1", 8), 2)
}
