// Package events publishes domain events (matches, messages) to whatever
// sink the deployment configured: NATS, Kafka, or the log.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/oggyb/shaadimantra/internal/config"
)

const (
	TypeMatchCreated    = "match.created"
	TypeConnectionEnded = "connection.unmatched"
	TypeMessageCreated  = "message.created"
	TypeProfileApproved = "profile.approved"
)

// Event is the envelope every sink receives.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Key        string    `json:"key"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

// New builds an event. key decides partitioning (Kafka) and subject suffix (NATS).
func New(eventType string, key uint64, payload any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		Key:        fmt.Sprintf("%d", key),
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

func (e Event) encode() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher delivers events. Callers treat failures as best-effort:
// an event that could not be published never undoes the state change.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// MatchCreated is the payload of TypeMatchCreated.
type MatchCreated struct {
	ConnectionID uint64   `json:"connection_id"`
	UserIDs      []uint64 `json:"user_ids"`
	Reactivated  bool     `json:"reactivated"`
}

// MessageCreated is the payload of TypeMessageCreated.
type MessageCreated struct {
	ConnectionID uint64 `json:"connection_id"`
	MessageID    string `json:"message_id"`
	SenderID     uint64 `json:"sender_id"`
	RecipientID  uint64 `json:"recipient_id"`
}

// ConnectionEnded is the payload of TypeConnectionEnded.
type ConnectionEnded struct {
	ConnectionID uint64 `json:"connection_id"`
	By           uint64 `json:"by"`
}

// ProfileApproved is the payload of TypeProfileApproved.
type ProfileApproved struct {
	ProfileID uint64 `json:"profile_id"`
	By        uint64 `json:"by"`
}

// NewFromConfig picks the sink named by cfg.Events.Sink.
func NewFromConfig(cfg *config.Config, log *slog.Logger) (Publisher, error) {
	switch cfg.Events.Sink {
	case "nats":
		return DialNATS(cfg.Events.NATSServers, cfg.Events.SubjectPrefix, log)
	case "kafka":
		return DialKafka(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic, log)
	case "", "log":
		return NewLogPublisher(log), nil
	}
	return nil, fmt.Errorf("unknown events sink %q", cfg.Events.Sink)
}

// LogPublisher writes events to the structured log. Default for development.
type LogPublisher struct {
	log *slog.Logger
}

func NewLogPublisher(log *slog.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(ctx context.Context, e Event) error {
	p.log.InfoContext(ctx, "event", "id", e.ID, "type", e.Type, "key", e.Key, "payload", e.Payload)
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// Emit publishes e and logs failures instead of returning them.
func Emit(ctx context.Context, p Publisher, log *slog.Logger, e Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, e); err != nil {
		log.WarnContext(ctx, "event publish failed", "type", e.Type, "key", e.Key, "err", err)
	}
}
