package chat_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/shaadimantra/internal/chat"
	"github.com/oggyb/shaadimantra/internal/db"
	svcErr "github.com/oggyb/shaadimantra/internal/errors"
	"github.com/oggyb/shaadimantra/internal/events"
	"github.com/oggyb/shaadimantra/internal/logger"
	"github.com/oggyb/shaadimantra/internal/matching"
	"github.com/oggyb/shaadimantra/internal/repository"
	"github.com/oggyb/shaadimantra/internal/testutil"
	"github.com/oggyb/shaadimantra/internal/utils/pagination"
)

type notification struct {
	kind   string
	ids    []string
	status chat.Status
	origin string
}

type fakeNotifier struct {
	mu   sync.Mutex
	seen []notification
}

func (n *fakeNotifier) MessageCreated(_ context.Context, msg chat.Message, origin string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seen = append(n.seen, notification{kind: "new", ids: []string{msg.ID}, status: msg.Status, origin: origin})
}

func (n *fakeNotifier) StatusChanged(_ context.Context, _ uint64, ids []string, status chat.Status, origin string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seen = append(n.seen, notification{kind: "status", ids: ids, status: status, origin: origin})
}

type env struct {
	matching *matching.Service
	chat     *chat.Service
	notifier *fakeNotifier
	store    *repository.ChatThreadRepository
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gdb := testutil.NewDB(t)
	testutil.SeedProfiles(t, gdb, 1, 2, 3)

	log := logger.Discard()
	pub := events.NewLogPublisher(log)
	ms := matching.NewService(gdb, nil, pub, log, matching.Config{DailyLikeCap: 10, MinCompleteness: 40, AllowRediscovery: true})
	store := repository.NewChatThreadRepository(gdb)
	cs := chat.NewService(store, ms.Registry(), pub, log, chat.Config{MaxMessageSize: 20, PageSize: 2})
	n := &fakeNotifier{}
	cs.SetNotifier(n)
	return &env{matching: ms, chat: cs, notifier: n, store: store}
}

func (e *env) match(t *testing.T, a, b uint64) uint64 {
	t.Helper()
	ctx := context.Background()
	_, err := e.matching.Swipe(ctx, a, b, matching.ActionLike, matching.Metadata{})
	require.NoError(t, err)
	res, err := e.matching.Swipe(ctx, b, a, matching.ActionLike, matching.Metadata{})
	require.NoError(t, err)
	require.True(t, res.IsMatch)
	return res.ConnectionID
}

// 1 likes 2, 2 likes 1, 1 says "hi", 2 reads it.
func TestScenario_MatchChatRead(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	first, err := e.matching.Swipe(ctx, 1, 2, matching.ActionLike, matching.Metadata{})
	require.NoError(t, err)
	assert.False(t, first.IsMatch)

	second, err := e.matching.Swipe(ctx, 2, 1, matching.ActionLike, matching.Metadata{})
	require.NoError(t, err)
	require.True(t, second.IsMatch)

	conn, err := e.matching.Registry().Get(ctx, 1, second.ConnectionID)
	require.NoError(t, err)
	assert.Equal(t, db.ConnectionActive, conn.Status)

	msg, err := e.chat.Send(ctx, 1, conn.ID, "hi", chat.SendOptions{ClientID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, chat.StatusSent, msg.Status)

	page, err := e.chat.History(ctx, 2, conn.ID, pagination.Page{})
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "hi", page.Messages[0].Text)

	// the sender reading changes nothing
	n, err := e.chat.MarkRead(ctx, 1, conn.ID, "")
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = e.chat.MarkRead(ctx, 2, conn.ID, "c2")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	page, err = e.chat.History(ctx, 1, conn.ID, pagination.Page{})
	require.NoError(t, err)
	assert.Equal(t, chat.StatusRead, page.Messages[0].Status)

	require.Len(t, e.notifier.seen, 2)
	assert.Equal(t, notification{kind: "new", ids: []string{msg.ID}, status: chat.StatusSent, origin: "c1"}, e.notifier.seen[0])
	assert.Equal(t, notification{kind: "status", ids: []string{msg.ID}, status: chat.StatusRead, origin: "c2"}, e.notifier.seen[1])
}

func TestSend_Rules(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	connID := e.match(t, 1, 2)

	_, err := e.chat.Send(ctx, 3, connID, "hello", chat.SendOptions{})
	assert.ErrorIs(t, err, svcErr.ErrNotParticipant)

	_, err = e.chat.Send(ctx, 1, connID, "   ", chat.SendOptions{})
	assert.Equal(t, svcErr.KindInvalidOperation, svcErr.KindOf(err))

	_, err = e.chat.Send(ctx, 1, connID, "this message is far too long", chat.SendOptions{})
	assert.Equal(t, svcErr.KindInvalidOperation, svcErr.KindOf(err))

	_, err = e.chat.Send(ctx, 1, 9999, "hello", chat.SendOptions{})
	assert.ErrorIs(t, err, svcErr.ErrConnectionMissing)

	id := uuid.NewString()
	_, err = e.chat.Send(ctx, 1, connID, "once", chat.SendOptions{MessageID: id})
	require.NoError(t, err)
	_, err = e.chat.Send(ctx, 1, connID, "once", chat.SendOptions{MessageID: id})
	assert.ErrorIs(t, err, chat.ErrDuplicateMessage)

	_, err = e.matching.Unmatch(ctx, 2, matching.UnmatchTarget{ConnectionID: connID})
	require.NoError(t, err)
	_, err = e.chat.Send(ctx, 1, connID, "still there?", chat.SendOptions{})
	assert.ErrorIs(t, err, svcErr.ErrConnectionClosed)

	// history survives the unmatch
	page, err := e.chat.History(ctx, 1, connID, pagination.Page{})
	require.NoError(t, err)
	assert.Len(t, page.Messages, 1)
}

func TestHistory_OrderAndPaging(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	connID := e.match(t, 1, 2)

	for _, text := range []string{"m1", "m2", "m3"} {
		_, err := e.chat.Send(ctx, 1, connID, text, chat.SendOptions{})
		require.NoError(t, err)
	}

	// page size is 2
	page, err := e.chat.History(ctx, 2, connID, pagination.Page{})
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	require.NotEmpty(t, page.Next)
	assert.Equal(t, "m1", page.Messages[0].Text)
	assert.Equal(t, "m2", page.Messages[1].Text)

	rest, err := e.chat.History(ctx, 2, connID, pagination.Page{Token: page.Next})
	require.NoError(t, err)
	require.Len(t, rest.Messages, 1)
	assert.Equal(t, "m3", rest.Messages[0].Text)
	assert.Empty(t, rest.Next)

	_, err = e.chat.History(ctx, 2, connID, pagination.Page{Token: "%%"})
	assert.Equal(t, svcErr.KindInvalidOperation, svcErr.KindOf(err))
}

func TestMarkDelivered(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	connID := e.match(t, 1, 2)

	msg, err := e.chat.Send(ctx, 1, connID, "ping", chat.SendOptions{})
	require.NoError(t, err)

	require.NoError(t, e.chat.MarkDelivered(ctx, 2, connID, msg.ID, "c2"))
	// second ack is a no-op
	require.NoError(t, e.chat.MarkDelivered(ctx, 2, connID, msg.ID, "c2"))

	require.Len(t, e.notifier.seen, 2)
	assert.Equal(t, chat.StatusDelivered, e.notifier.seen[1].status)

	err = e.chat.MarkDelivered(ctx, 3, connID, msg.ID, "")
	assert.ErrorIs(t, err, svcErr.ErrNotParticipant)
}

func TestMigrateAll(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	connID := e.match(t, 1, 2)
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, e.store.InsertLegacy(ctx, []db.LegacyMessage{
		{ID: "l1", ConnectionID: connID, SenderID: 1, Text: "old one", Status: "read", CreatedAt: base},
		{ID: "l2", ConnectionID: connID, SenderID: 2, Text: "old two", Status: "sent", CreatedAt: base.Add(time.Minute)},
	}))

	n, err := e.chat.MigrateAll(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = e.chat.MigrateAll(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, n)

	page, err := e.chat.History(ctx, 1, connID, pagination.Page{Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "l1", page.Messages[0].ID)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = e.chat.MigrateAll(cancelled, 10)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, chat.StatusSending.CanTransitionTo(chat.StatusSent))
	assert.True(t, chat.StatusSending.CanTransitionTo(chat.StatusFailed))
	assert.True(t, chat.StatusSent.CanTransitionTo(chat.StatusFailed))
	assert.True(t, chat.StatusSent.CanTransitionTo(chat.StatusRead))
	assert.True(t, chat.StatusDelivered.CanTransitionTo(chat.StatusRead))
	assert.False(t, chat.StatusDelivered.CanTransitionTo(chat.StatusFailed))
	assert.False(t, chat.StatusRead.CanTransitionTo(chat.StatusDelivered))
	assert.False(t, chat.StatusFailed.CanTransitionTo(chat.StatusSent))

	assert.Equal(t, []string{"sent", "delivered"}, chat.Sources(chat.StatusRead))
	assert.Equal(t, []string{"sent"}, chat.Sources(chat.StatusDelivered))
	assert.Empty(t, chat.Sources(chat.StatusSending))

	_, err := chat.ParseStatus("lost")
	assert.Error(t, err)
	assert.Equal(t, chat.StatusSent, chat.NormalizeLegacyStatus(""))
	assert.Equal(t, chat.StatusRead, chat.NormalizeLegacyStatus("read"))
}
