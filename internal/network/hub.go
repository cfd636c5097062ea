package network

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/MRamiBalles/PetGuild/internal/events"
	"github.com/MRamiBalles/PetGuild/internal/platform/logger"
	"github.com/MRamiBalles/PetGuild/internal/platform/metrics"
)

// ErrHubBusy is returned by Notify when the broadcast queue is full.
var ErrHubBusy = errors.New("network: broadcast queue full")

// HubOptions sizes the hub's queues.
type HubOptions struct {
	SendBuffer      int
	BroadcastBuffer int
}

// Hub maintains the set of active clients per tenant and fans lifecycle
// events out to the clients of the event's tenant.
type Hub struct {
	tenants    map[string]map[*Client]bool
	broadcast  chan events.Event
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	sendBuffer int
	logger     *logger.Logger
	metrics    *metrics.Metrics
}

// NewHub initializes a new WebSocket Hub.
func NewHub(log *logger.Logger, m *metrics.Metrics, opts HubOptions) *Hub {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	if opts.BroadcastBuffer <= 0 {
		opts.BroadcastBuffer = 1024
	}
	return &Hub{
		tenants:    make(map[string]map[*Client]bool),
		broadcast:  make(chan events.Event, opts.BroadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		sendBuffer: opts.SendBuffer,
		logger:     log,
		metrics:    m,
	}
}

// Run starts the Hub's main loop to handle client connections and broadcasts.
// Clients still connected when ctx ends are closed.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("websocket hub shutting down")
			h.mu.Lock()
			for _, clients := range h.tenants {
				for c := range clients {
					h.drop(c)
				}
			}
			h.mu.Unlock()
			return
		case c := <-h.register:
			h.mu.Lock()
			if h.tenants[c.tenant] == nil {
				h.tenants[c.tenant] = make(map[*Client]bool)
			}
			h.tenants[c.tenant][c] = true
			h.mu.Unlock()
			h.metrics.WSConnections.Inc()
			h.logger.Info("websocket client connected",
				zap.String("tenant", c.tenant), zap.String("account", c.account))
		case c := <-h.unregister:
			h.mu.Lock()
			h.drop(c)
			h.mu.Unlock()
		case ev := <-h.broadcast:
			h.deliver(ev)
		}
	}
}

// Register adds c to its tenant's audience. It reports false once the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes c. Safe after the hub has stopped.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Notify queues an event for broadcast. It never blocks the caller.
func (h *Hub) Notify(_ context.Context, ev events.Event) error {
	select {
	case h.broadcast <- ev:
		return nil
	default:
		return ErrHubBusy
	}
}

// ClientCount reports the connected clients of a tenant.
func (h *Hub) ClientCount(tenant string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.tenants[tenant])
}

func (h *Hub) deliver(ev events.Event) {
	payload, err := json.Marshal(struct {
		Type  string       `json:"type"`
		Event events.Event `json:"event"`
	}{ReplyEvent, ev})
	if err != nil {
		h.logger.Error("failed to serialize event for broadcast", zap.String("event_id", ev.ID), zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.tenants[ev.Tenant] {
		select {
		case c.send <- payload:
			h.metrics.WSMessages.WithLabelValues("out").Inc()
		default:
			h.logger.Warn("dropping slow websocket client",
				zap.String("tenant", c.tenant), zap.String("account", c.account))
			h.drop(c)
		}
	}
}

// drop must be called with mu held.
func (h *Hub) drop(c *Client) {
	clients := h.tenants[c.tenant]
	if _, ok := clients[c]; !ok {
		return
	}
	delete(clients, c)
	if len(clients) == 0 {
		delete(h.tenants, c.tenant)
	}
	c.close()
	h.metrics.WSConnections.Dec()
	h.logger.Info("websocket client disconnected",
		zap.String("tenant", c.tenant), zap.String("account", c.account))
}
