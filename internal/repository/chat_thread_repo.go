package repository

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/shaadimantra/internal/chat"
	"github.com/oggyb/shaadimantra/internal/db"
	"github.com/oggyb/shaadimantra/internal/utils/pagination"
)

// ChatThreadRepository is the relational chat.ThreadStore.
//
// A thread is one chat_threads header row plus its chat_messages. Every write
// starts by bumping chat_threads.next_seq, which row-locks the header, so
// writers on the same connection are serialized without explicit locks.
type ChatThreadRepository struct {
	db *gorm.DB
}

var _ chat.ThreadStore = (*ChatThreadRepository)(nil)

func NewChatThreadRepository(database *gorm.DB) *ChatThreadRepository {
	return &ChatThreadRepository{db: database}
}

// reserve creates the thread header if needed, takes n sequence numbers and
// returns the header as it is after the reservation.
func reserve(tx *gorm.DB, connectionID uint64, n int) (*db.ChatThread, error) {
	err := tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&db.ChatThread{ConnectionID: connectionID}).Error
	if err != nil {
		return nil, errors.Wrap(err, "ensure thread")
	}

	err = tx.Model(&db.ChatThread{}).
		Where("connection_id = ?", connectionID).
		UpdateColumn("next_seq", gorm.Expr("next_seq + ?", n)).Error
	if err != nil {
		return nil, errors.Wrap(err, "reserve seq")
	}

	var thread db.ChatThread
	if err := tx.Take(&thread, "connection_id = ?", connectionID).Error; err != nil {
		return nil, errors.Wrap(err, "load thread")
	}
	return &thread, nil
}

func (r *ChatThreadRepository) Append(ctx context.Context, connectionID uint64, msg chat.NewMessage) (*chat.Message, error) {
	var out *chat.Message
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		thread, err := reserve(tx, connectionID, 1)
		if err != nil {
			return err
		}

		createdAt := chat.Truncate(msg.Now)
		if thread.LastMessageAt != nil && thread.LastMessageAt.After(createdAt) {
			createdAt = chat.Truncate(*thread.LastMessageAt)
		}

		row := db.ChatMessage{
			ID:           msg.ID,
			ConnectionID: connectionID,
			Seq:          thread.NextSeq,
			SenderID:     msg.SenderID,
			Text:         msg.Text,
			Status:       string(chat.StatusSent),
			CreatedAt:    createdAt,
		}
		if err := tx.Create(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return chat.ErrDuplicateMessage
			}
			return errors.Wrap(err, "insert message")
		}

		err = tx.Model(&db.ChatThread{}).
			Where("connection_id = ?", connectionID).
			UpdateColumn("last_message_at", createdAt).Error
		if err != nil {
			return errors.Wrap(err, "bump last_message_at")
		}

		m := toMessage(row)
		out = &m
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "chatRepo.Append")
	}
	return out, nil
}

func (r *ChatThreadRepository) List(ctx context.Context, connectionID uint64, after pagination.Cursor, limit int) ([]chat.Message, error) {
	query := r.db.WithContext(ctx).Where("connection_id = ?", connectionID)
	if !after.IsZero() {
		ts := after.Time()
		query = query.Where("(created_at > ? OR (created_at = ? AND seq > ?))", ts, ts, after.ID)
	}

	var rows []db.ChatMessage
	if err := query.Order("created_at ASC, seq ASC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "chatRepo.List")
	}

	out := make([]chat.Message, 0, len(rows))
	for _, row := range rows {
		out = append(out, toMessage(row))
	}
	return out, nil
}

// MarkRead moves every sent or delivered message not written by readerID to read.
// Returns the ids that changed.
func (r *ChatThreadRepository) MarkRead(ctx context.Context, connectionID, readerID uint64) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		unread := chat.Sources(chat.StatusRead)
		err := tx.Model(&db.ChatMessage{}).
			Where("connection_id = ? AND sender_id <> ? AND status IN ?", connectionID, readerID, unread).
			Order("created_at ASC, seq ASC").
			Pluck("id", &ids).Error
		if err != nil || len(ids) == 0 {
			return err
		}
		return tx.Model(&db.ChatMessage{}).
			Where("connection_id = ? AND id IN ? AND status IN ?", connectionID, ids, unread).
			Update("status", string(chat.StatusRead)).Error
	})
	if err != nil {
		return nil, errors.Wrap(err, "chatRepo.MarkRead")
	}
	return ids, nil
}

// MarkDelivered moves one sent message addressed to recipientID to delivered.
// Returns nil when nothing changed (unknown id, own message, already past sent).
func (r *ChatThreadRepository) MarkDelivered(ctx context.Context, connectionID uint64, messageID string, recipientID uint64) (*chat.Message, error) {
	res := r.db.WithContext(ctx).
		Model(&db.ChatMessage{}).
		Where("id = ? AND connection_id = ? AND sender_id <> ? AND status IN ?",
			messageID, connectionID, recipientID, chat.Sources(chat.StatusDelivered)).
		Update("status", string(chat.StatusDelivered))
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "chatRepo.MarkDelivered")
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}

	var row db.ChatMessage
	if err := r.db.WithContext(ctx).Take(&row, "connection_id = ? AND id = ?", connectionID, messageID).Error; err != nil {
		return nil, errors.Wrap(err, "chatRepo.MarkDelivered: reload")
	}
	m := toMessage(row)
	return &m, nil
}

// MigrateLegacy copies the connection's rows from the legacy messages table
// into its thread and then deletes them.
//
// Behavior:
//   - Legacy ids become message ids; ids already in this thread are skipped.
//     Message ids are unique per connection, so an id used by another
//     thread does not stop the row from moving.
//   - Original created_at values are kept (millisecond precision).
//   - last_message_at ends at the maximum timestamp observed.
//   - Everything happens in one transaction, so an interrupted run leaves
//     the connection either untouched or fully migrated.
func (r *ChatThreadRepository) MigrateLegacy(ctx context.Context, connectionID uint64) (*chat.MigrationResult, error) {
	result := &chat.MigrationResult{ConnectionID: connectionID}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var legacy []db.LegacyMessage
		err := tx.Where("connection_id = ?", connectionID).
			Order("created_at ASC, id ASC").
			Find(&legacy).Error
		if err != nil {
			return errors.Wrap(err, "load legacy")
		}
		if len(legacy) == 0 {
			return nil
		}

		ids := make([]string, 0, len(legacy))
		for _, l := range legacy {
			ids = append(ids, l.ID)
		}

		var existing []string
		err = tx.Model(&db.ChatMessage{}).
			Where("connection_id = ? AND id IN ?", connectionID, ids).
			Pluck("id", &existing).Error
		if err != nil {
			return errors.Wrap(err, "load existing")
		}
		seen := make(map[string]struct{}, len(existing))
		for _, id := range existing {
			seen[id] = struct{}{}
		}

		var fresh []db.LegacyMessage
		for _, l := range legacy {
			if _, dup := seen[l.ID]; dup {
				result.Skipped++
				continue
			}
			seen[l.ID] = struct{}{}
			fresh = append(fresh, l)
		}

		thread, err := reserve(tx, connectionID, len(fresh))
		if err != nil {
			return err
		}

		latest := thread.LastMessageAt
		seq := thread.NextSeq - uint64(len(fresh))
		rows := make([]db.ChatMessage, 0, len(fresh))
		for _, l := range fresh {
			seq++
			createdAt := chat.Truncate(l.CreatedAt)
			rows = append(rows, db.ChatMessage{
				ID:           l.ID,
				ConnectionID: connectionID,
				Seq:          seq,
				SenderID:     l.SenderID,
				Text:         l.Text,
				Status:       string(chat.NormalizeLegacyStatus(l.Status)),
				CreatedAt:    createdAt,
			})
			if latest == nil || createdAt.After(*latest) {
				t := createdAt
				latest = &t
			}
		}
		if len(rows) > 0 {
			if err := tx.CreateInBatches(rows, 200).Error; err != nil {
				return errors.Wrap(err, "insert migrated")
			}
		}

		if latest != nil {
			err := tx.Model(&db.ChatThread{}).
				Where("connection_id = ?", connectionID).
				UpdateColumn("last_message_at", *latest).Error
			if err != nil {
				return errors.Wrap(err, "set last_message_at")
			}
		}

		if err := tx.Where("connection_id = ? AND id IN ?", connectionID, ids).Delete(&db.LegacyMessage{}).Error; err != nil {
			return errors.Wrap(err, "delete legacy")
		}

		result.Migrated = len(rows)
		result.LastMessageAt = latest
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "chatRepo.MigrateLegacy")
	}
	return result, nil
}

// PendingLegacy lists connections that still have legacy rows.
func (r *ChatThreadRepository) PendingLegacy(ctx context.Context, limit int) ([]uint64, error) {
	var ids []uint64
	err := r.db.WithContext(ctx).
		Model(&db.LegacyMessage{}).
		Distinct("connection_id").
		Order("connection_id ASC").
		Limit(limit).
		Pluck("connection_id", &ids).Error
	return ids, errors.Wrap(err, "chatRepo.PendingLegacy")
}

func toMessage(row db.ChatMessage) chat.Message {
	return chat.Message{
		ID:           row.ID,
		ConnectionID: row.ConnectionID,
		SenderID:     row.SenderID,
		Text:         row.Text,
		Status:       chat.Status(row.Status),
		CreatedAt:    row.CreatedAt.UTC(),
		Seq:          row.Seq,
	}
}

// InsertLegacy writes rows in the legacy layout. Used by the seed command
// and tests to stage data for migration.
func (r *ChatThreadRepository) InsertLegacy(ctx context.Context, rows []db.LegacyMessage) error {
	for i := range rows {
		rows[i].CreatedAt = rows[i].CreatedAt.UTC().Truncate(time.Millisecond)
	}
	return errors.Wrap(r.db.WithContext(ctx).Create(&rows).Error, "chatRepo.InsertLegacy")
}
