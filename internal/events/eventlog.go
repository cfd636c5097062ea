// Package events records lifecycle notifications.
// The log is bounded and append-only; delivery to persisters and subscribers
// never feeds back into the state change that produced the event.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MRamiBalles/PetGuild/internal/domain/pet"
	"github.com/MRamiBalles/PetGuild/internal/platform/clock"
	"github.com/MRamiBalles/PetGuild/internal/platform/logger"
	"github.com/MRamiBalles/PetGuild/internal/platform/metrics"
)

// EventType defines the category of a lifecycle event.
type EventType string

const (
	EventTypePetAdopted   EventType = "PET_ADOPTED"
	EventTypePetFed       EventType = "PET_FED"
	EventTypePetPlayed    EventType = "PET_PLAYED"
	EventTypePetRenamed   EventType = "PET_RENAMED"
	EventTypeItemBought   EventType = "ITEM_BOUGHT"
	EventTypeLevelUp      EventType = "LEVEL_UP"
	EventTypePetEvolved   EventType = "PET_EVOLVED"
	EventTypePetDied      EventType = "PET_DIED"
	EventTypeShopPurchase EventType = "SHOP_PURCHASE"
)

// DefaultCapacity bounds the in-memory log.
const DefaultCapacity = 10000

// Event is an immutable record of something that happened to a pet or account.
type Event struct {
	ID        string    `json:"id"`
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Tenant    string    `json:"tenant"`
	Type      EventType `json:"type"`
	ActorID   string    `json:"actor_id"`
	PetID     string    `json:"pet_id,omitempty"`
	Message   string    `json:"message"`
	// Pet is the pet's state right after the change, when one applies.
	Pet *pet.Pet `json:"pet,omitempty"`
}

// EventPersister defines how an event is durably stored.
type EventPersister interface {
	Append(ctx context.Context, event Event) error
}

// Subscriber receives every appended event. Errors are logged and dropped.
type Subscriber interface {
	Notify(ctx context.Context, event Event) error
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(ctx context.Context, event Event) error

func (f SubscriberFunc) Notify(ctx context.Context, event Event) error { return f(ctx, event) }

// Option configures an EventLog.
type Option func(*EventLog)

// WithPersister writes every event through to p asynchronously.
func WithPersister(p EventPersister) Option {
	return func(el *EventLog) { el.persister = p }
}

// WithCapacity bounds how many events stay in memory.
func WithCapacity(n int) Option {
	return func(el *EventLog) {
		if n > 0 {
			el.capacity = n
		}
	}
}

// EventLog is the in-memory, bounded log of lifecycle events.
type EventLog struct {
	mu          sync.RWMutex
	events      []Event
	capacity    int
	seq         uint64
	persister   EventPersister
	subscribers []Subscriber

	clock   clock.Clock
	logger  *logger.Logger
	metrics *metrics.Metrics
	pending sync.WaitGroup
}

// NewEventLog creates an empty log.
func NewEventLog(clk clock.Clock, log *logger.Logger, m *metrics.Metrics, opts ...Option) *EventLog {
	el := &EventLog{
		events:   make([]Event, 0),
		capacity: DefaultCapacity,
		clock:    clk,
		logger:   log,
		metrics:  m,
	}
	for _, opt := range opts {
		opt(el)
	}
	return el
}

// Subscribe registers s for all future events.
func (el *EventLog) Subscribe(s Subscriber) {
	el.mu.Lock()
	el.subscribers = append(el.subscribers, s)
	el.mu.Unlock()
}

// Append stamps the event with an id, sequence number and time, stores it,
// then hands it to the persister and subscribers.
func (el *EventLog) Append(event Event) Event {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = el.clock.Now()
	}
	if event.Pet != nil {
		snap := event.Pet.Clone()
		event.Pet = &snap
	}

	el.mu.Lock()
	el.seq++
	event.Seq = el.seq
	el.events = append(el.events, event)
	if over := len(el.events) - el.capacity; over > 0 {
		el.events = append([]Event(nil), el.events[over:]...)
	}
	subs := append([]Subscriber(nil), el.subscribers...)
	el.mu.Unlock()

	el.metrics.EventsPublished.WithLabelValues(string(event.Type)).Inc()
	el.logger.Event(string(event.Type), event.ActorID,
		zap.String("tenant", event.Tenant),
		zap.String("pet_id", event.PetID),
		zap.Uint64("seq", event.Seq))

	if el.persister != nil {
		el.pending.Add(1)
		go func(e Event) {
			defer el.pending.Done()
			if err := el.persister.Append(context.Background(), e); err != nil {
				el.metrics.EventPersistErrs.Inc()
				el.logger.Error("event persist failed", zap.String("event_id", e.ID), zap.Error(err))
			}
		}(event)
	}

	for _, s := range subs {
		if err := s.Notify(context.Background(), event); err != nil {
			el.logger.Warn("event delivery failed",
				zap.String("event_id", event.ID),
				zap.String("type", string(event.Type)),
				zap.Error(err))
		}
	}
	return event
}

// Since returns the tenant's events with a sequence number above seq, oldest first.
// An empty tenant matches every tenant.
func (el *EventLog) Since(tenant string, seq uint64) []Event {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []Event
	for _, e := range el.events {
		if e.Seq <= seq {
			continue
		}
		if tenant != "" && e.Tenant != tenant {
			continue
		}
		result = append(result, e)
	}
	return result
}

// ByPet returns the retained history of one pet.
func (el *EventLog) ByPet(tenant, petID string) []Event {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []Event
	for _, e := range el.events {
		if e.Tenant == tenant && e.PetID == petID {
			result = append(result, e)
		}
	}
	return result
}

// Replay returns a copy of every retained event.
func (el *EventLog) Replay() []Event {
	el.mu.RLock()
	defer el.mu.RUnlock()
	return append([]Event(nil), el.events...)
}

// LastSeq is the sequence number of the newest event.
func (el *EventLog) LastSeq() uint64 {
	el.mu.RLock()
	defer el.mu.RUnlock()
	return el.seq
}

// Restore seeds the log with archived events, keeping sequence numbers.
// It must run before any Append.
func (el *EventLog) Restore(archived []Event) {
	el.mu.Lock()
	defer el.mu.Unlock()
	for _, e := range archived {
		el.events = append(el.events, e)
		if e.Seq > el.seq {
			el.seq = e.Seq
		}
	}
	if over := len(el.events) - el.capacity; over > 0 {
		el.events = append([]Event(nil), el.events[over:]...)
	}
}

// Flush waits for in-flight persistence.
func (el *EventLog) Flush() {
	el.pending.Wait()
}
