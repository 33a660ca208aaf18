package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/shaadimantra/internal/chat"
	"github.com/oggyb/shaadimantra/internal/db"
	"github.com/oggyb/shaadimantra/internal/repository"
	"github.com/oggyb/shaadimantra/internal/testutil"
	"github.com/oggyb/shaadimantra/internal/utils/pagination"
)

func TestAppend_KeepsOrderWhenClockGoesBack(t *testing.T) {
	ctx := context.Background()
	store := repository.NewChatThreadRepository(testutil.NewDB(t))
	now := time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)

	m1, err := store.Append(ctx, 1, chat.NewMessage{ID: "m1", SenderID: 10, Text: "hi", Now: now})
	require.NoError(t, err)
	// a skewed clock must not place m2 before m1
	m2, err := store.Append(ctx, 1, chat.NewMessage{ID: "m2", SenderID: 20, Text: "hello", Now: now.Add(-time.Minute)})
	require.NoError(t, err)
	m3, err := store.Append(ctx, 1, chat.NewMessage{ID: "m3", SenderID: 10, Text: "how are you", Now: now.Add(time.Second)})
	require.NoError(t, err)

	assert.Equal(t, []uint64{1, 2, 3}, []uint64{m1.Seq, m2.Seq, m3.Seq})
	assert.True(t, m2.CreatedAt.Equal(m1.CreatedAt))
	assert.Equal(t, chat.StatusSent, m1.Status)

	all, err := store.List(ctx, 1, pagination.Cursor{}, 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "m1", all[0].ID)
	assert.Equal(t, "m2", all[1].ID)
	assert.Equal(t, "m3", all[2].ID)

	after, err := store.List(ctx, 1, all[0].Cursor(), 10)
	require.NoError(t, err)
	require.Len(t, after, 2)
	assert.Equal(t, "m2", after[0].ID)
}

func TestMarkReadAndDelivered(t *testing.T) {
	ctx := context.Background()
	store := repository.NewChatThreadRepository(testutil.NewDB(t))
	now := time.Now()

	_, err := store.Append(ctx, 1, chat.NewMessage{ID: "a", SenderID: 10, Text: "1", Now: now})
	require.NoError(t, err)
	_, err = store.Append(ctx, 1, chat.NewMessage{ID: "b", SenderID: 10, Text: "2", Now: now})
	require.NoError(t, err)
	_, err = store.Append(ctx, 1, chat.NewMessage{ID: "c", SenderID: 20, Text: "3", Now: now})
	require.NoError(t, err)

	// the sender cannot deliver to themself
	m, err := store.MarkDelivered(ctx, 1, "a", 10)
	require.NoError(t, err)
	assert.Nil(t, m)

	m, err = store.MarkDelivered(ctx, 1, "a", 20)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, chat.StatusDelivered, m.Status)

	ids, err := store.MarkRead(ctx, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	all, err := store.List(ctx, 1, pagination.Cursor{}, 10)
	require.NoError(t, err)
	assert.Equal(t, chat.StatusRead, all[0].Status)
	assert.Equal(t, chat.StatusRead, all[1].Status)
	assert.Equal(t, chat.StatusSent, all[2].Status)

	// read never goes back to delivered
	m, err = store.MarkDelivered(ctx, 1, "b", 20)
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestMigrateLegacy_Idempotent(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.NewDB(t)
	store := repository.NewChatThreadRepository(gdb)
	base := time.Date(2025, 1, 2, 3, 4, 5, 678_900_000, time.UTC)

	// m0 is already in the thread from a previous partial run
	_, err := store.Append(ctx, 5, chat.NewMessage{ID: "m0", SenderID: 1, Text: "dup", Now: base})
	require.NoError(t, err)

	require.NoError(t, store.InsertLegacy(ctx, []db.LegacyMessage{
		{ID: "m0", ConnectionID: 5, SenderID: 1, Text: "dup", Status: "sent", CreatedAt: base},
		{ID: "m1", ConnectionID: 5, SenderID: 2, Text: "older", Status: "read", CreatedAt: base.Add(-time.Hour)},
		{ID: "m2", ConnectionID: 5, SenderID: 1, Text: "newest", Status: "", CreatedAt: base.Add(time.Hour)},
		{ID: "x1", ConnectionID: 6, SenderID: 3, Text: "other", Status: "sent", CreatedAt: base},
	}))

	pending, err := store.PendingLegacy(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint64{5, 6}, pending)

	res, err := store.MigrateLegacy(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Migrated)
	assert.Equal(t, 1, res.Skipped)
	require.NotNil(t, res.LastMessageAt)
	assert.True(t, res.LastMessageAt.Equal(base.Add(time.Hour).Truncate(time.Millisecond)))
	lastAt := *res.LastMessageAt

	msgs, err := store.List(ctx, 5, pagination.Cursor{}, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.True(t, msgs[0].CreatedAt.Equal(base.Add(-time.Hour).Truncate(time.Millisecond)))
	assert.Equal(t, chat.StatusRead, msgs[0].Status)
	assert.Equal(t, "m2", msgs[2].ID)
	assert.Equal(t, chat.StatusSent, msgs[2].Status)

	// second run is a no-op
	res, err = store.MigrateLegacy(ctx, 5)
	require.NoError(t, err)
	assert.Zero(t, res.Migrated)

	var left int64
	require.NoError(t, gdb.Model(&db.LegacyMessage{}).Where("connection_id = ?", 5).Count(&left).Error)
	assert.Zero(t, left)

	pending, err = store.PendingLegacy(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint64{6}, pending)

	// new appends continue after migrated history
	m, err := store.Append(ctx, 5, chat.NewMessage{ID: "m3", SenderID: 2, Text: "new", Now: base})
	require.NoError(t, err)
	assert.Equal(t, uint64(4), m.Seq)
	assert.False(t, m.CreatedAt.Before(lastAt))
}

func TestMigrateLegacy_IDTakenByAnotherThread(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.NewDB(t)
	store := repository.NewChatThreadRepository(gdb)
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

	_, err := store.Append(ctx, 1, chat.NewMessage{ID: "shared-id", SenderID: 10, Text: "on one", Now: now})
	require.NoError(t, err)
	require.NoError(t, store.InsertLegacy(ctx, []db.LegacyMessage{
		{ID: "shared-id", ConnectionID: 2, SenderID: 20, Text: "on two", Status: "sent", CreatedAt: now},
	}))

	res, err := store.MigrateLegacy(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Migrated)
	assert.Zero(t, res.Skipped)

	two, err := store.List(ctx, 2, pagination.Cursor{}, 10)
	require.NoError(t, err)
	require.Len(t, two, 1)
	assert.Equal(t, "on two", two[0].Text)

	one, err := store.List(ctx, 1, pagination.Cursor{}, 10)
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "on one", one[0].Text)

	// the same id still dedupes within a thread
	_, err = store.Append(ctx, 2, chat.NewMessage{ID: "shared-id", SenderID: 20, Text: "again", Now: now})
	assert.ErrorIs(t, err, chat.ErrDuplicateMessage)

	// acks stay inside their own thread
	got, err := store.MarkDelivered(ctx, 2, "shared-id", 10)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, uint64(2), got.ConnectionID)
	assert.Equal(t, "on two", got.Text)
}
