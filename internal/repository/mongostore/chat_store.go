// Package mongostore keeps chat threads as one MongoDB document per connection.
package mongostore

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/oggyb/shaadimantra/internal/chat"
	"github.com/oggyb/shaadimantra/internal/utils/pagination"
)

const (
	collThreads = "chat_threads"
	collLegacy  = "messages"
)

// threadDoc is one connection's thread. messages is kept sorted by
// (created_at, seq) by every $push.
type threadDoc struct {
	ConnectionID  int64        `bson:"_id"`
	NextSeq       int64        `bson:"next_seq"`
	LastMessageAt *time.Time   `bson:"last_message_at,omitempty"`
	Messages      []messageDoc `bson:"messages,omitempty"`
}

type messageDoc struct {
	ID        string    `bson:"id"`
	Seq       int64     `bson:"seq"`
	SenderID  int64     `bson:"sender_id"`
	Text      string    `bson:"text"`
	Status    string    `bson:"status"`
	CreatedAt time.Time `bson:"created_at"`
}

type legacyDoc struct {
	ID           string    `bson:"_id"`
	ConnectionID int64     `bson:"connection_id"`
	SenderID     int64     `bson:"sender_id"`
	Text         string    `bson:"text"`
	Status       string    `bson:"status"`
	CreatedAt    time.Time `bson:"created_at"`
}

// ChatThreadStore is the MongoDB chat.ThreadStore.
//
// Messages are only ever added by a single update that is conditional on
// next_seq still holding the value the writer read, and that moves next_seq
// and last_message_at forward together with the $push. A writer that loses
// the race reads the header again. Message n+1 therefore becomes visible
// only after message n has, which is what cursor readers depend on.
// Migration uses the same path without a multi-document transaction: a run
// interrupted between copy and delete is finished by the next run.
type ChatThreadStore struct {
	threads *mongo.Collection
	legacy  *mongo.Collection
}

var _ chat.ThreadStore = (*ChatThreadStore)(nil)

func NewChatThreadStore(database *mongo.Database) *ChatThreadStore {
	return &ChatThreadStore{
		threads: database.Collection(collThreads),
		legacy:  database.Collection(collLegacy),
	}
}

// Connect opens a client and verifies it with a ping.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetServerSelectionTimeout(5*time.Second))
	if err != nil {
		return nil, errors.Wrap(err, "mongo connect")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "mongo ping")
	}
	return client, nil
}

// EnsureIndexes creates the index migration scans rely on.
func (s *ChatThreadStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.legacy.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "connection_id", Value: 1}, {Key: "created_at", Value: 1}},
	})
	return errors.Wrap(err, "mongostore.EnsureIndexes")
}

// maxCommitAttempts bounds how often a writer retries after losing the
// next_seq race to another writer on the same thread.
const maxCommitAttempts = 32

// ensure creates the thread header if it does not exist yet.
func (s *ChatThreadStore) ensure(ctx context.Context, connectionID uint64) error {
	_, err := s.threads.UpdateOne(ctx,
		bson.M{"_id": int64(connectionID)},
		bson.M{"$setOnInsert": bson.M{"next_seq": int64(0)}},
		options.Update().SetUpsert(true),
	)
	if mongo.IsDuplicateKeyError(err) {
		// a concurrent writer created it first
		return nil
	}
	return err
}

// commit adds the messages build returns. build sees the header loaded with
// projection and numbers its messages from head.NextSeq+1. It is called
// again with a fresh header whenever another writer got in first.
func (s *ChatThreadStore) commit(ctx context.Context, connectionID uint64, projection bson.M, build func(head *threadDoc) ([]messageDoc, error)) ([]messageDoc, *time.Time, error) {
	if err := s.ensure(ctx, connectionID); err != nil {
		return nil, nil, errors.Wrap(err, "ensure thread")
	}

	for attempt := 0; attempt < maxCommitAttempts; attempt++ {
		var head threadDoc
		err := s.threads.FindOne(ctx, bson.M{"_id": int64(connectionID)},
			options.FindOne().SetProjection(projection)).Decode(&head)
		if err != nil {
			return nil, nil, errors.Wrap(err, "load thread")
		}

		docs, err := build(&head)
		if err != nil || len(docs) == 0 {
			return nil, head.LastMessageAt, err
		}

		var latest time.Time
		if head.LastMessageAt != nil {
			latest = *head.LastMessageAt
		}
		ids := make([]string, 0, len(docs))
		for _, d := range docs {
			ids = append(ids, d.ID)
			if d.CreatedAt.After(latest) {
				latest = d.CreatedAt
			}
		}

		res, err := s.threads.UpdateOne(ctx,
			bson.M{"_id": int64(connectionID), "next_seq": head.NextSeq, "messages.id": bson.M{"$nin": ids}},
			bson.M{
				"$push": bson.M{"messages": bson.M{
					"$each": docs,
					"$sort": bson.D{{Key: "created_at", Value: 1}, {Key: "seq", Value: 1}},
				}},
				"$set": bson.M{
					"next_seq":        head.NextSeq + int64(len(docs)),
					"last_message_at": latest,
				},
			},
		)
		if err != nil {
			return nil, nil, errors.Wrap(err, "push")
		}
		if res.MatchedCount == 1 {
			return docs, &latest, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
	}
	return nil, nil, errors.Errorf("thread %d busy: gave up after %d attempts", connectionID, maxCommitAttempts)
}

func (s *ChatThreadStore) Append(ctx context.Context, connectionID uint64, msg chat.NewMessage) (*chat.Message, error) {
	projection := bson.M{
		"next_seq":        1,
		"last_message_at": 1,
		"messages":        bson.M{"$elemMatch": bson.M{"id": msg.ID}},
	}
	docs, _, err := s.commit(ctx, connectionID, projection, func(head *threadDoc) ([]messageDoc, error) {
		if len(head.Messages) > 0 {
			return nil, chat.ErrDuplicateMessage
		}
		createdAt := chat.Truncate(msg.Now)
		if head.LastMessageAt != nil && head.LastMessageAt.After(createdAt) {
			createdAt = chat.Truncate(*head.LastMessageAt)
		}
		return []messageDoc{{
			ID:        msg.ID,
			Seq:       head.NextSeq + 1,
			SenderID:  int64(msg.SenderID),
			Text:      msg.Text,
			Status:    string(chat.StatusSent),
			CreatedAt: createdAt,
		}}, nil
	})
	if errors.Is(err, chat.ErrDuplicateMessage) {
		return nil, chat.ErrDuplicateMessage
	}
	if err != nil {
		return nil, errors.Wrap(err, "mongostore.Append")
	}

	m := toMessage(connectionID, docs[0])
	return &m, nil
}

func (s *ChatThreadStore) List(ctx context.Context, connectionID uint64, after pagination.Cursor, limit int) ([]chat.Message, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"_id": int64(connectionID)}}},
		{{Key: "$unwind", Value: "$messages"}},
		{{Key: "$replaceRoot", Value: bson.M{"newRoot": "$messages"}}},
	}
	if !after.IsZero() {
		ts := after.Time()
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: bson.M{"$or": bson.A{
			bson.M{"created_at": bson.M{"$gt": ts}},
			bson.M{"created_at": ts, "seq": bson.M{"$gt": int64(after.ID)}},
		}}}})
	}
	pipeline = append(pipeline,
		bson.D{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: 1}, {Key: "seq", Value: 1}}}},
		bson.D{{Key: "$limit", Value: int64(limit)}},
	)

	cur, err := s.threads.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, errors.Wrap(err, "mongostore.List")
	}
	var docs []messageDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "mongostore.List: decode")
	}

	out := make([]chat.Message, 0, len(docs))
	for _, d := range docs {
		out = append(out, toMessage(connectionID, d))
	}
	return out, nil
}

func (s *ChatThreadStore) MarkRead(ctx context.Context, connectionID, readerID uint64) ([]string, error) {
	var head threadDoc
	err := s.threads.FindOne(ctx, bson.M{"_id": int64(connectionID)}).Decode(&head)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "mongostore.MarkRead: load")
	}

	var ids []string
	for _, m := range head.Messages {
		if m.SenderID != int64(readerID) && chat.Status(m.Status).CanTransitionTo(chat.StatusRead) {
			ids = append(ids, m.ID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	_, err = s.threads.UpdateOne(ctx,
		bson.M{"_id": int64(connectionID)},
		bson.M{"$set": bson.M{"messages.$[m].status": string(chat.StatusRead)}},
		options.Update().SetArrayFilters(options.ArrayFilters{Filters: []interface{}{
			bson.M{"m.id": bson.M{"$in": ids}, "m.status": bson.M{"$in": chat.Sources(chat.StatusRead)}},
		}}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "mongostore.MarkRead")
	}
	return ids, nil
}

func (s *ChatThreadStore) MarkDelivered(ctx context.Context, connectionID uint64, messageID string, recipientID uint64) (*chat.Message, error) {
	match := bson.M{
		"id":        messageID,
		"sender_id": bson.M{"$ne": int64(recipientID)},
		"status":    bson.M{"$in": chat.Sources(chat.StatusDelivered)},
	}
	var head threadDoc
	err := s.threads.FindOneAndUpdate(ctx,
		bson.M{"_id": int64(connectionID), "messages": bson.M{"$elemMatch": match}},
		bson.M{"$set": bson.M{"messages.$.status": string(chat.StatusDelivered)}},
		options.FindOneAndUpdate().
			SetReturnDocument(options.After).
			SetProjection(bson.M{"messages": bson.M{"$elemMatch": bson.M{"id": messageID}}}),
	).Decode(&head)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "mongostore.MarkDelivered")
	}
	if len(head.Messages) == 0 {
		return nil, nil
	}
	m := toMessage(connectionID, head.Messages[0])
	return &m, nil
}

func (s *ChatThreadStore) MigrateLegacy(ctx context.Context, connectionID uint64) (*chat.MigrationResult, error) {
	result := &chat.MigrationResult{ConnectionID: connectionID}

	cur, err := s.legacy.Find(ctx,
		bson.M{"connection_id": int64(connectionID)},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "mongostore.MigrateLegacy: find")
	}
	var legacy []legacyDoc
	if err := cur.All(ctx, &legacy); err != nil {
		return nil, errors.Wrap(err, "mongostore.MigrateLegacy: decode")
	}
	if len(legacy) == 0 {
		return result, nil
	}

	ids := make([]string, 0, len(legacy))
	for _, l := range legacy {
		ids = append(ids, l.ID)
	}

	projection := bson.M{"next_seq": 1, "last_message_at": 1, "messages.id": 1}
	docs, latest, err := s.commit(ctx, connectionID, projection, func(head *threadDoc) ([]messageDoc, error) {
		seen := make(map[string]struct{}, len(head.Messages))
		for _, m := range head.Messages {
			seen[m.ID] = struct{}{}
		}

		result.Skipped = 0
		seq := head.NextSeq
		var docs []messageDoc
		for _, l := range legacy {
			if _, dup := seen[l.ID]; dup {
				result.Skipped++
				continue
			}
			seen[l.ID] = struct{}{}
			seq++
			docs = append(docs, messageDoc{
				ID:        l.ID,
				Seq:       seq,
				SenderID:  l.SenderID,
				Text:      l.Text,
				Status:    string(chat.NormalizeLegacyStatus(l.Status)),
				CreatedAt: chat.Truncate(l.CreatedAt),
			})
		}
		return docs, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "mongostore.MigrateLegacy")
	}
	result.Migrated = len(docs)
	result.LastMessageAt = latest

	if _, err := s.legacy.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}}); err != nil {
		return nil, errors.Wrap(err, "mongostore.MigrateLegacy: delete legacy")
	}
	return result, nil
}

func (s *ChatThreadStore) PendingLegacy(ctx context.Context, limit int) ([]uint64, error) {
	raw, err := s.legacy.Distinct(ctx, "connection_id", bson.M{})
	if err != nil {
		return nil, errors.Wrap(err, "mongostore.PendingLegacy")
	}
	ids := make([]uint64, 0, len(raw))
	for _, v := range raw {
		switch n := v.(type) {
		case int64:
			ids = append(ids, uint64(n))
		case int32:
			ids = append(ids, uint64(n))
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func toMessage(connectionID uint64, d messageDoc) chat.Message {
	return chat.Message{
		ID:           d.ID,
		ConnectionID: connectionID,
		SenderID:     uint64(d.SenderID),
		Text:         d.Text,
		Status:       chat.Status(d.Status),
		CreatedAt:    d.CreatedAt.UTC(),
		Seq:          uint64(d.Seq),
	}
}
