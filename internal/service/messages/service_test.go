package messages_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/oggyb/shaadimantra/internal/auth"
	"github.com/oggyb/shaadimantra/internal/chat"
	"github.com/oggyb/shaadimantra/internal/matching"
	"github.com/oggyb/shaadimantra/internal/service/messages"
	"github.com/oggyb/shaadimantra/internal/service/servicetest"
	"github.com/oggyb/shaadimantra/internal/testutil"
)

func method(name string) string { return "/" + messages.ServiceName + "/" + name }

func TestThreadOverGRPC(t *testing.T) {
	env := servicetest.New(t)
	testutil.SeedProfiles(t, env.App.DB, 1, 2, 3)
	conn := env.Dial(t, messages.NewRegistrar(env.App))

	ctx := context.Background()
	_, err := env.App.Matching.Swipe(ctx, 1, 2, matching.ActionLike, matching.Metadata{})
	require.NoError(t, err)
	res, err := env.App.Matching.Swipe(ctx, 2, 1, matching.ActionLike, matching.Metadata{})
	require.NoError(t, err)

	alice, bob := env.As(t, 1, auth.RoleMember), env.As(t, 2, auth.RoleMember)

	id := uuid.NewString()
	var sent chat.Message
	require.NoError(t, conn.Invoke(alice, method("SendMessage"),
		&messages.SendMessageRequest{ConnectionID: res.ConnectionID, Text: "  namaste  ", MessageID: id}, &sent))
	assert.Equal(t, id, sent.ID)
	assert.Equal(t, "namaste", sent.Text)
	assert.Equal(t, chat.StatusSent, sent.Status)

	// a retry with the same id is not stored twice
	err = conn.Invoke(alice, method("SendMessage"),
		&messages.SendMessageRequest{ConnectionID: res.ConnectionID, Text: "namaste", MessageID: id}, &sent)
	assert.Equal(t, codes.AlreadyExists, status.Code(err))

	require.NoError(t, conn.Invoke(bob, method("SendMessage"),
		&messages.SendMessageRequest{ConnectionID: res.ConnectionID, Text: "hello"}, &sent))

	require.NoError(t, conn.Invoke(bob, method("MarkDelivered"),
		&messages.MarkDeliveredRequest{ConnectionID: res.ConnectionID, MessageID: id}, &emptypb.Empty{}))

	var read messages.MarkReadResponse
	require.NoError(t, conn.Invoke(alice, method("MarkRead"),
		&messages.MarkReadRequest{ConnectionID: res.ConnectionID}, &read))
	assert.Equal(t, 1, read.Updated)

	var page messages.GetMessagesResponse
	require.NoError(t, conn.Invoke(bob, method("GetMessages"),
		&messages.GetMessagesRequest{ConnectionID: res.ConnectionID, Limit: 1}, &page))
	require.Len(t, page.Messages, 1)
	assert.Equal(t, id, page.Messages[0].ID)
	assert.Equal(t, chat.StatusDelivered, page.Messages[0].Status)
	require.NotEmpty(t, page.NextPaginationToken)

	require.NoError(t, conn.Invoke(bob, method("GetMessages"),
		&messages.GetMessagesRequest{ConnectionID: res.ConnectionID, PaginationToken: page.NextPaginationToken}, &page))
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "hello", page.Messages[0].Text)
	assert.Equal(t, chat.StatusRead, page.Messages[0].Status)
	assert.Empty(t, page.NextPaginationToken)

	err = conn.Invoke(env.As(t, 3, auth.RoleMember), method("GetMessages"),
		&messages.GetMessagesRequest{ConnectionID: res.ConnectionID}, &page)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	err = conn.Invoke(alice, method("SendMessage"),
		&messages.SendMessageRequest{ConnectionID: res.ConnectionID, Text: "x", MessageID: "not-a-uuid"}, &sent)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}
