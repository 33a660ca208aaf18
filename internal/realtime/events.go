// Package realtime pushes chat activity to connected websocket clients.
package realtime

import (
	"encoding/json"
	"time"

	"github.com/oggyb/shaadimantra/internal/chat"
)

// Client -> server
const (
	EventSubscribe   = "connection.subscribe"
	EventUnsubscribe = "connection.unsubscribe"
	EventSend        = "message.send"
	EventAck         = "message.ack"
	EventRead        = "message.read"
	EventPing        = "ping"
)

// Server -> client
const (
	EventMessageNew    = "message.new"
	EventMessageStatus = "message.status"
	EventError         = "error"
	EventPong          = "pong"
)

// Event is the envelope of every frame in both directions.
type Event struct {
	Type         string          `json:"type"`
	ConnectionID uint64          `json:"connection_id,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Timestamp    int64           `json:"ts,omitempty"`
}

type SendPayload struct {
	// ID is optional; a client that sets it can retry without duplicates.
	ID   string `json:"id,omitempty"`
	Text string `json:"text"`
}

type AckPayload struct {
	MessageID string `json:"message_id"`
}

type StatusPayload struct {
	IDs    []string    `json:"ids"`
	Status chat.Status `json:"status"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewEvent builds a server event stamped with the current time.
func NewEvent(eventType string, connectionID uint64, payload any) (*Event, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	return &Event{
		Type:         eventType,
		ConnectionID: connectionID,
		Payload:      raw,
		Timestamp:    time.Now().UnixMilli(),
	}, nil
}
