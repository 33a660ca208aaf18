package connection_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/shaadimantra/internal/auth"
	"github.com/oggyb/shaadimantra/internal/db"
	svcErr "github.com/oggyb/shaadimantra/internal/errors"
	"github.com/oggyb/shaadimantra/internal/matching"
	"github.com/oggyb/shaadimantra/internal/service/connection"
	"github.com/oggyb/shaadimantra/internal/service/servicetest"
	"github.com/oggyb/shaadimantra/internal/testutil"
)

func matched(t *testing.T, env *servicetest.Env, a, b uint64) uint64 {
	t.Helper()
	ctx := context.Background()
	_, err := env.App.Matching.Swipe(ctx, a, b, matching.ActionLike, matching.Metadata{})
	require.NoError(t, err)
	res, err := env.App.Matching.Swipe(ctx, b, a, matching.ActionLike, matching.Metadata{})
	require.NoError(t, err)
	require.True(t, res.IsMatch)
	return res.ConnectionID
}

func TestListGetAndBlock(t *testing.T) {
	env := servicetest.New(t)
	testutil.SeedProfiles(t, env.App.DB, 1, 2, 3, 4)
	svc := connection.NewConnectionService(env.App)

	id := matched(t, env, 1, 2)
	matched(t, env, 3, 4)

	ctx := servicetest.Principal(1, auth.RoleMember)
	list, err := svc.ListConnections(ctx, &connection.ListConnectionsRequest{})
	require.NoError(t, err)
	require.Len(t, list.Connections, 1)
	assert.Equal(t, id, list.Connections[0].ID)
	assert.Equal(t, uint64(2), list.Connections[0].OtherUserID)

	_, err = svc.GetConnection(servicetest.Principal(3, auth.RoleMember), &connection.GetConnectionRequest{ConnectionID: id})
	assert.Equal(t, svcErr.KindForbidden, svcErr.KindOf(err))

	got, err := svc.UpdateStatus(ctx, &connection.UpdateStatusRequest{ConnectionID: id, Status: db.ConnectionBlocked})
	require.NoError(t, err)
	assert.Equal(t, db.ConnectionBlocked, got.Status)

	// only the blocker may release a block
	_, err = svc.UpdateStatus(servicetest.Principal(2, auth.RoleMember),
		&connection.UpdateStatusRequest{ConnectionID: id, Status: db.ConnectionUnmatched})
	assert.Error(t, err)

	blocked, err := svc.ListConnections(ctx, &connection.ListConnectionsRequest{Status: db.ConnectionBlocked})
	require.NoError(t, err)
	assert.Len(t, blocked.Connections, 1)
}

func TestUnmatch_ByTarget(t *testing.T) {
	env := servicetest.New(t)
	testutil.SeedProfiles(t, env.App.DB, 1, 2)
	svc := connection.NewConnectionService(env.App)
	id := matched(t, env, 1, 2)

	res, err := svc.Unmatch(servicetest.Principal(2, auth.RoleMember), &connection.UnmatchRequest{TargetUserID: 1})
	require.NoError(t, err)
	assert.Equal(t, id, res.ConnectionID)
	assert.True(t, res.StatusChanged)
	assert.Equal(t, int64(2), res.SwipesRemoved)

	got, err := svc.GetConnection(servicetest.Principal(1, auth.RoleMember), &connection.GetConnectionRequest{ConnectionID: id})
	require.NoError(t, err)
	assert.Equal(t, db.ConnectionUnmatched, got.Status)

	// rediscovery is on, so the pair can match again
	assert.Equal(t, id, matched(t, env, 1, 2))
}

func TestUpdateStatus_RefreshesLikerCount(t *testing.T) {
	env := servicetest.New(t)
	testutil.SeedProfiles(t, env.App.DB, 1, 2)
	svc := connection.NewConnectionService(env.App)
	id := matched(t, env, 1, 2)
	bg := context.Background()

	n, err := env.App.Matching.CountLikers(bg, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.True(t, env.Redis.Exists(env.App.RedisCache.KeyForLikerCount(2)))

	_, err = svc.UpdateStatus(servicetest.Principal(2, auth.RoleMember),
		&connection.UpdateStatusRequest{ConnectionID: id, Status: db.ConnectionUnmatched})
	require.NoError(t, err)
	assert.False(t, env.Redis.Exists(env.App.RedisCache.KeyForLikerCount(2)))

	n, err = env.App.Matching.CountLikers(bg, 2)
	require.NoError(t, err)
	assert.Zero(t, n)
}
