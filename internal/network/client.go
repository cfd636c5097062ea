package network

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 1024
)

// Client is one player's websocket connection, bound to a tenant and account.
type Client struct {
	hub        *Hub
	dispatcher *Dispatcher
	conn       *websocket.Conn
	send       chan []byte
	done       chan struct{} // closed once the hub drops the client
	closeOnce  sync.Once
	tenant     string
	account    string
	limiter    *rate.Limiter
}

// NewClient creates a client. actionsPerMinute bounds the player's action rate;
// zero disables the limit.
func NewClient(hub *Hub, d *Dispatcher, conn *websocket.Conn, tenant, account string, actionsPerMinute int) *Client {
	limit := rate.Inf
	burst := 1
	if actionsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(actionsPerMinute))
		burst = max(1, actionsPerMinute/6)
	}
	return &Client{
		hub:        hub,
		dispatcher: d,
		conn:       conn,
		send:       make(chan []byte, hub.sendBuffer),
		done:       make(chan struct{}),
		tenant:     tenant,
		account:    account,
		limiter:    rate.NewLimiter(limit, burst),
	}
}

// ReadPump pumps actions from the websocket connection to the dispatcher.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read failed", zap.String("tenant", c.tenant), zap.Error(err))
			}
			break
		}
		c.hub.metrics.WSMessages.WithLabelValues("in").Inc()

		var action PlayerAction
		if err := json.Unmarshal(message, &action); err != nil {
			c.reply(Reply{Type: ReplyError, Message: "Malformed action."})
			continue
		}
		c.reply(c.handle(action))
	}
}

func (c *Client) handle(action PlayerAction) Reply {
	if !c.limiter.Allow() {
		c.hub.logger.Warn("rate limit exceeded",
			zap.String("tenant", c.tenant), zap.String("account", c.account), zap.String("action", action.Type))
		return Reply{Type: ReplyRejected, Action: action.Type, RequestID: action.RequestID,
			Reason: ReasonRateLimited, Message: "Slow down! Try again in a moment."}
	}
	return c.dispatcher.Dispatch(c.tenant, c.account, action)
}

// reply queues a direct answer. It reports false when the queue is full or the
// hub has already dropped the client.
func (c *Client) reply(r Reply) bool {
	payload, err := json.Marshal(r)
	if err != nil {
		c.hub.logger.Error("failed to serialize reply", zap.Error(err))
		return false
	}
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		c.hub.metrics.WSMessages.WithLabelValues("out").Inc()
		return true
	default:
		return false
	}
}

// close marks the client as dropped. The write pump then closes the connection.
func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// WritePump pumps messages from the hub to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current websocket message.
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
