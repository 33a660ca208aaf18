package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/oggyb/shaadimantra/internal/chat"
	svcErr "github.com/oggyb/shaadimantra/internal/errors"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 30 * time.Second
	maxFrameSize   = 16 << 10
	sendBufferSize = 256
)

// Client is one websocket connection. A user may hold several.
type Client struct {
	id     string
	userID uint64
	hub    *Hub
	conn   *websocket.Conn
	log    *slog.Logger

	mu   sync.RWMutex
	subs map[uint64]struct{}

	send chan []byte
	done chan struct{}
}

func newClient(hub *Hub, conn *websocket.Conn, userID uint64) *Client {
	id := uuid.NewString()
	return &Client{
		id:     id,
		userID: userID,
		hub:    hub,
		conn:   conn,
		log:    hub.log.With("client_id", id, "user_id", userID),
		subs:   make(map[uint64]struct{}),
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
	}
}

func (c *Client) ID() string { return c.id }

func (c *Client) IsSubscribed(connectionID uint64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subs[connectionID]
	return ok
}

func (c *Client) subscribe(connectionID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[connectionID] = struct{}{}
}

func (c *Client) unsubscribe(connectionID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs, connectionID)
}

// readPump handles frames until the socket fails or ctx ends.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.remove(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Info("read failed", "err", err)
			}
			return
		}
		if ctx.Err() != nil {
			return
		}

		var evt Event
		if err := json.Unmarshal(frame, &evt); err != nil {
			c.reply(EventError, 0, ErrorPayload{Code: "INVALID_FRAME", Message: "frame is not a JSON event"})
			continue
		}
		c.handle(ctx, &evt)
	}
}

// writePump is the only writer of the socket.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Info("write failed", "err", err)
				return
			}

		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handle(ctx context.Context, evt *Event) {
	switch evt.Type {
	case EventPing:
		c.reply(EventPong, 0, nil)

	case EventSubscribe:
		if err := c.hub.chat.Authorize(ctx, c.userID, evt.ConnectionID); err != nil {
			c.fail(evt.ConnectionID, err)
			return
		}
		c.subscribe(evt.ConnectionID)

	case EventUnsubscribe:
		c.unsubscribe(evt.ConnectionID)

	case EventSend:
		var p SendPayload
		if err := json.Unmarshal(evt.Payload, &p); err != nil {
			c.fail(evt.ConnectionID, svcErr.InvalidOperation("invalid message.send payload"))
			return
		}
		msg, err := c.hub.chat.Send(ctx, c.userID, evt.ConnectionID, p.Text, chat.SendOptions{ClientID: c.id, MessageID: p.ID})
		if err != nil {
			c.fail(evt.ConnectionID, err)
			return
		}
		// The fan-out skips this client, so it gets the stored copy here.
		c.reply(EventMessageNew, evt.ConnectionID, msg)

	case EventAck:
		var p AckPayload
		if err := json.Unmarshal(evt.Payload, &p); err != nil || p.MessageID == "" {
			c.fail(evt.ConnectionID, svcErr.InvalidOperation("message_id is required"))
			return
		}
		if err := c.hub.chat.MarkDelivered(ctx, c.userID, evt.ConnectionID, p.MessageID, c.id); err != nil {
			c.fail(evt.ConnectionID, err)
		}

	case EventRead:
		if _, err := c.hub.chat.MarkRead(ctx, c.userID, evt.ConnectionID, c.id); err != nil {
			c.fail(evt.ConnectionID, err)
		}

	default:
		c.reply(EventError, evt.ConnectionID, ErrorPayload{Code: "UNKNOWN_EVENT", Message: "unknown event type: " + evt.Type})
	}
}

func (c *Client) fail(connectionID uint64, err error) {
	_, msg := svcErr.HTTPStatus(c.log, err)
	c.reply(EventError, connectionID, ErrorPayload{Code: string(svcErr.KindOf(err)), Message: msg})
}

// reply queues a frame for this client only. A full buffer drops it;
// the hub disconnects clients that stay behind.
func (c *Client) reply(eventType string, connectionID uint64, payload any) {
	evt, err := NewEvent(eventType, connectionID, payload)
	if err != nil {
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	case <-c.done:
	default:
	}
}
