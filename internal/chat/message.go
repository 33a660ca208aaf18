// Package chat owns the per-connection message threads: appending,
// history paging, delivery/read status and migration of legacy rows.
package chat

import (
	"context"
	"fmt"
	"time"

	svcErr "github.com/oggyb/shaadimantra/internal/errors"
	"github.com/oggyb/shaadimantra/internal/utils/pagination"
)

// ErrDuplicateMessage is returned by stores when a message id is already taken in the thread.
var ErrDuplicateMessage = svcErr.Conflict("message already sent")

// Status is the delivery state of a message.
type Status string

const (
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
)

var transitions = map[Status][]Status{
	StatusSending:   {StatusSent, StatusFailed},
	StatusSent:      {StatusDelivered, StatusRead, StatusFailed},
	StatusDelivered: {StatusRead},
}

// CanTransitionTo reports whether s may move to next.
// Status only moves forward: sending, sent, delivered, read. failed is
// reachable from sending or sent and is terminal.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

var allStatuses = []Status{StatusSending, StatusSent, StatusDelivered, StatusRead, StatusFailed}

// Sources lists, as stored values, every status that may move to next.
// Stores use it to select the rows an update is allowed to touch.
func Sources(next Status) []string {
	var out []string
	for _, s := range allStatuses {
		if s.CanTransitionTo(next) {
			out = append(out, string(s))
		}
	}
	return out
}

// ParseStatus validates a wire value.
func ParseStatus(v string) (Status, error) {
	switch s := Status(v); s {
	case StatusSending, StatusSent, StatusDelivered, StatusRead, StatusFailed:
		return s, nil
	}
	return "", fmt.Errorf("unknown message status %q", v)
}

// Message is one entry of a connection's thread.
type Message struct {
	ID           string    `json:"id"`
	ConnectionID uint64    `json:"connection_id"`
	SenderID     uint64    `json:"sender_id"`
	Text         string    `json:"text"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"timestamp"`
	Seq          uint64    `json:"seq"`
}

// Cursor returns the position of m in its thread.
func (m Message) Cursor() pagination.Cursor {
	return pagination.At(m.CreatedAt, m.Seq)
}

// NewMessage is what a store needs to append.
type NewMessage struct {
	ID       string
	SenderID uint64
	Text     string
	// Now is the sender's clock. The stored timestamp is never earlier than
	// the thread's last message, so ordering by time stays consistent.
	Now time.Time
}

// MigrationResult describes one connection's legacy migration.
type MigrationResult struct {
	ConnectionID  uint64
	Migrated      int
	Skipped       int
	LastMessageAt *time.Time
}

// ThreadStore persists threads. Implementations exist for SQL (gorm) and MongoDB.
//
// Guarantees every implementation provides:
//   - Append assigns a strictly increasing Seq per connection and a CreatedAt
//     no earlier than the previous message.
//   - List returns messages ordered by (CreatedAt, Seq) strictly after the cursor.
//   - MigrateLegacy is idempotent: ids already in the thread are skipped and
//     legacy rows are removed once copied.
type ThreadStore interface {
	Append(ctx context.Context, connectionID uint64, msg NewMessage) (*Message, error)
	List(ctx context.Context, connectionID uint64, after pagination.Cursor, limit int) ([]Message, error)
	MarkRead(ctx context.Context, connectionID, readerID uint64) ([]string, error)
	MarkDelivered(ctx context.Context, connectionID uint64, messageID string, recipientID uint64) (*Message, error)
	MigrateLegacy(ctx context.Context, connectionID uint64) (*MigrationResult, error)
	PendingLegacy(ctx context.Context, limit int) ([]uint64, error)
}

// Truncate normalizes a timestamp to what every store can represent.
func Truncate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// NormalizeLegacyStatus maps a legacy status column onto Status, defaulting to sent.
func NormalizeLegacyStatus(v string) Status {
	s, err := ParseStatus(v)
	if err != nil {
		return StatusSent
	}
	return s
}
