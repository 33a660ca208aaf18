package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"github.com/oggyb/shaadimantra/internal/chat"
)

// Envelope is one fan-out request. It is what crosses the bridge between
// instances, so it carries already encoded frames.
type Envelope struct {
	ConnectionID uint64          `json:"connection_id"`
	Exclude      string          `json:"exclude,omitempty"`
	Data         json.RawMessage `json:"data"`
}

// Bridge carries envelopes to every instance, this one included.
type Bridge interface {
	Publish(ctx context.Context, env Envelope) error
	Listen(ctx context.Context, deliver func(Envelope)) error
}

// ChatService is the part of chat.Service that clients drive.
type ChatService interface {
	Authorize(ctx context.Context, userID, connectionID uint64) error
	Send(ctx context.Context, senderID, connectionID uint64, text string, opts chat.SendOptions) (*chat.Message, error)
	MarkDelivered(ctx context.Context, recipientID, connectionID uint64, messageID, origin string) error
	MarkRead(ctx context.Context, readerID, connectionID uint64, origin string) (int, error)
}

// Hub tracks the clients of this instance. All client bookkeeping happens
// on the Run goroutine.
type Hub struct {
	chat   ChatService
	bridge Bridge
	log    *slog.Logger

	clients map[string]*Client

	register   chan *Client
	unregister chan *Client
	deliver    chan Envelope
	done       chan struct{}

	online atomic.Int64
}

// NewHub builds a hub. With a nil bridge fan-out stays in-process.
func NewHub(svc ChatService, bridge Bridge, log *slog.Logger) *Hub {
	return &Hub{
		chat:       svc,
		bridge:     bridge,
		log:        log.With("component", "realtime"),
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		deliver:    make(chan Envelope, 256),
		done:       make(chan struct{}),
	}
}

// Run is the hub loop. It returns when ctx is cancelled, after closing
// every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	if h.bridge != nil {
		go func() {
			if err := h.bridge.Listen(ctx, h.Deliver); err != nil && ctx.Err() == nil {
				h.log.Error("bridge stopped", "err", err)
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			for id, c := range h.clients {
				h.drop(id, c)
			}
			return

		case c := <-h.register:
			h.clients[c.id] = c
			h.online.Add(1)
			h.log.Debug("client connected", "client_id", c.id, "user_id", c.userID)

		case c := <-h.unregister:
			if cur, ok := h.clients[c.id]; ok && cur == c {
				h.drop(c.id, c)
				h.log.Debug("client disconnected", "client_id", c.id, "user_id", c.userID)
			}

		case env := <-h.deliver:
			for id, c := range h.clients {
				if id == env.Exclude || !c.IsSubscribed(env.ConnectionID) {
					continue
				}
				select {
				case c.send <- env.Data:
				default:
					h.log.Warn("client too slow, disconnecting", "client_id", id)
					h.drop(id, c)
				}
			}
		}
	}
}

func (h *Hub) drop(id string, c *Client) {
	delete(h.clients, id)
	close(c.done)
	h.online.Add(-1)
}

// Online is the number of clients currently registered.
func (h *Hub) Online() int { return int(h.online.Load()) }

// Publish fans evt out to every subscriber of connectionID except the
// client named by exclude.
func (h *Hub) Publish(ctx context.Context, connectionID uint64, evt *Event, exclude string) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	env := Envelope{ConnectionID: connectionID, Exclude: exclude, Data: data}
	if h.bridge != nil {
		return h.bridge.Publish(ctx, env)
	}
	h.Deliver(env)
	return nil
}

// Deliver hands env to local clients. It is the bridge's callback.
func (h *Hub) Deliver(env Envelope) {
	select {
	case h.deliver <- env:
	case <-h.done:
	}
}

func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
