package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	svcErr "github.com/oggyb/shaadimantra/internal/errors"
	"github.com/oggyb/shaadimantra/internal/events"
	"github.com/oggyb/shaadimantra/internal/utils/pagination"
)

// Membership is who takes part in a connection and whether it is open.
type Membership struct {
	ConnectionID uint64
	UserIDs      [2]uint64
	Active       bool
}

// Has reports whether userID is a participant.
func (m *Membership) Has(userID uint64) bool {
	return m.UserIDs[0] == userID || m.UserIDs[1] == userID
}

// Other returns the participant that is not userID.
func (m *Membership) Other(userID uint64) uint64 {
	if m.UserIDs[0] == userID {
		return m.UserIDs[1]
	}
	return m.UserIDs[0]
}

// MembershipResolver looks connections up. The matching registry implements it.
type MembershipResolver interface {
	Membership(ctx context.Context, connectionID uint64) (*Membership, error)
}

// Notifier pushes thread changes to live clients. origin identifies the
// client that caused the change so it is not echoed back; empty means none.
type Notifier interface {
	MessageCreated(ctx context.Context, msg Message, origin string)
	StatusChanged(ctx context.Context, connectionID uint64, ids []string, status Status, origin string)
}

// Service enforces participation rules on top of a ThreadStore.
type Service struct {
	store    ThreadStore
	members  MembershipResolver
	notifier Notifier
	events   events.Publisher
	log      *slog.Logger
	now      func() time.Time
	maxLen   int
	pageSize int
}

// Config holds chat limits.
type Config struct {
	MaxMessageSize int
	PageSize       int
}

func NewService(store ThreadStore, members MembershipResolver, pub events.Publisher, log *slog.Logger, cfg Config) *Service {
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 2000
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	return &Service{
		store:    store,
		members:  members,
		events:   pub,
		log:      log,
		now:      time.Now,
		maxLen:   cfg.MaxMessageSize,
		pageSize: cfg.PageSize,
	}
}

// SetNotifier attaches the realtime layer. It is set after construction
// because the realtime hub itself depends on the service.
func (s *Service) SetNotifier(n Notifier) { s.notifier = n }

// SendOptions carries transport details of a send.
type SendOptions struct {
	// ClientID is the realtime client the message came from, excluded from fan-out.
	ClientID string
	// MessageID lets a client pick the id so retries are deduplicated.
	MessageID string
}

// Send appends text from senderID to the connection's thread.
func (s *Service) Send(ctx context.Context, senderID, connectionID uint64, text string, opts SendOptions) (*Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, svcErr.InvalidOperation("message text is required")
	}
	if utf8.RuneCountInString(text) > s.maxLen {
		return nil, svcErr.InvalidOperation("message is too long")
	}

	m, err := s.membership(ctx, senderID, connectionID)
	if err != nil {
		return nil, err
	}
	if !m.Active {
		return nil, svcErr.ErrConnectionClosed
	}

	id := opts.MessageID
	if id == "" {
		id = uuid.NewString()
	} else if _, err := uuid.Parse(id); err != nil {
		return nil, svcErr.InvalidOperation("message id must be a uuid")
	}

	msg, err := s.store.Append(ctx, connectionID, NewMessage{ID: id, SenderID: senderID, Text: text, Now: s.now()})
	if errors.Is(err, ErrDuplicateMessage) {
		return nil, ErrDuplicateMessage
	}
	if err != nil {
		return nil, svcErr.Internal(err)
	}

	if s.notifier != nil {
		s.notifier.MessageCreated(ctx, *msg, opts.ClientID)
	}
	events.Emit(ctx, s.events, s.log, events.New(events.TypeMessageCreated, connectionID, events.MessageCreated{
		ConnectionID: connectionID,
		MessageID:    msg.ID,
		SenderID:     senderID,
		RecipientID:  m.Other(senderID),
	}))
	return msg, nil
}

// HistoryPage is one page of a thread, oldest first.
type HistoryPage struct {
	Messages []Message
	Next     string
}

// History returns messages after page.Token in append order. It stays
// readable after an unmatch so members keep their conversation.
func (s *Service) History(ctx context.Context, readerID, connectionID uint64, page pagination.Page) (*HistoryPage, error) {
	if _, err := s.membership(ctx, readerID, connectionID); err != nil {
		return nil, err
	}

	cursor, err := pagination.Decode(page.Token)
	if err != nil {
		return nil, svcErr.InvalidOperation("invalid pagination token")
	}
	limit := page.Limit
	if limit <= 0 {
		limit = s.pageSize
	}
	limit = pagination.Limit(limit)

	msgs, err := s.store.List(ctx, connectionID, cursor, limit+1)
	if err != nil {
		return nil, svcErr.Internal(err)
	}

	out := &HistoryPage{Messages: msgs}
	if len(msgs) > limit {
		out.Messages = msgs[:limit]
		out.Next, _ = pagination.Encode(msgs[limit-1].Cursor())
	}
	return out, nil
}

// MarkRead marks everything the other participant sent as read.
func (s *Service) MarkRead(ctx context.Context, readerID, connectionID uint64, origin string) (int, error) {
	if _, err := s.membership(ctx, readerID, connectionID); err != nil {
		return 0, err
	}
	ids, err := s.store.MarkRead(ctx, connectionID, readerID)
	if err != nil {
		return 0, svcErr.Internal(err)
	}
	if len(ids) > 0 && s.notifier != nil {
		s.notifier.StatusChanged(ctx, connectionID, ids, StatusRead, origin)
	}
	return len(ids), nil
}

// MarkDelivered acknowledges receipt of one message by recipientID.
// Acknowledging twice, or after the message was read, changes nothing.
func (s *Service) MarkDelivered(ctx context.Context, recipientID, connectionID uint64, messageID, origin string) error {
	if _, err := s.membership(ctx, recipientID, connectionID); err != nil {
		return err
	}
	msg, err := s.store.MarkDelivered(ctx, connectionID, messageID, recipientID)
	if err != nil {
		return svcErr.Internal(err)
	}
	if msg != nil && s.notifier != nil {
		s.notifier.StatusChanged(ctx, connectionID, []string{msg.ID}, StatusDelivered, origin)
	}
	return nil
}

// Authorize checks that userID may follow the connection's thread.
func (s *Service) Authorize(ctx context.Context, userID, connectionID uint64) error {
	_, err := s.membership(ctx, userID, connectionID)
	return err
}

// MigrateLegacy moves one connection's legacy rows into its thread.
func (s *Service) MigrateLegacy(ctx context.Context, connectionID uint64) (*MigrationResult, error) {
	res, err := s.store.MigrateLegacy(ctx, connectionID)
	if err != nil {
		return nil, svcErr.Internal(err)
	}
	if res.Migrated > 0 || res.Skipped > 0 {
		s.log.InfoContext(ctx, "legacy chat migrated",
			"connection_id", connectionID, "migrated", res.Migrated, "skipped", res.Skipped)
	}
	return res, nil
}

// MigrateAll migrates every connection with legacy rows, batch at a time,
// until none remain or ctx is cancelled. Each connection commits on its
// own, so an interrupted run can simply be started again.
func (s *Service) MigrateAll(ctx context.Context, batch int) (int, error) {
	if batch <= 0 {
		batch = 100
	}
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		ids, err := s.store.PendingLegacy(ctx, batch)
		if err != nil {
			return total, svcErr.Internal(err)
		}
		if len(ids) == 0 {
			return total, nil
		}
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return total, err
			}
			res, err := s.MigrateLegacy(ctx, id)
			if err != nil {
				return total, err
			}
			total += res.Migrated
		}
	}
}

func (s *Service) membership(ctx context.Context, userID, connectionID uint64) (*Membership, error) {
	m, err := s.members.Membership(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if !m.Has(userID) {
		return nil, svcErr.ErrNotParticipant
	}
	return m, nil
}
