package stats_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/shaadimantra/internal/auth"
	"github.com/oggyb/shaadimantra/internal/db"
	svcErr "github.com/oggyb/shaadimantra/internal/errors"
	"github.com/oggyb/shaadimantra/internal/events"
	"github.com/oggyb/shaadimantra/internal/logger"
	"github.com/oggyb/shaadimantra/internal/matching"
	"github.com/oggyb/shaadimantra/internal/stats"
	"github.com/oggyb/shaadimantra/internal/testutil"
	"github.com/oggyb/shaadimantra/internal/utils/pagination"
)

var admin = auth.Principal{UserID: 99, Role: auth.RoleAdmin}

func TestForUser_CachedAndInvalidated(t *testing.T) {
	gdb := testutil.NewDB(t)
	testutil.SeedProfiles(t, gdb, 1, 2, 4)
	rc, mr := testutil.NewRedis(t)
	log := logger.Discard()
	ctx := context.Background()

	ms := matching.NewService(gdb, rc, events.NewLogPublisher(log), log, matching.Config{DailyLikeCap: 5, AllowRediscovery: true})
	svc := stats.NewService(gdb, ms, rc, log, 0)

	_, err := ms.Swipe(ctx, 1, 2, matching.ActionLike, matching.Metadata{})
	require.NoError(t, err)
	_, err = ms.Swipe(ctx, 2, 1, matching.ActionSuperLike, matching.Metadata{})
	require.NoError(t, err)

	got, err := svc.ForUser(ctx, admin, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.LikesGiven)
	assert.Equal(t, int64(1), got.LikesReceived)
	assert.Equal(t, int64(1), got.Matches)
	assert.Equal(t, int64(1), got.ActiveConnections)
	assert.Equal(t, 1, got.LikesToday)
	assert.Equal(t, 5, got.DailyCap)
	assert.True(t, mr.Exists(rc.KeyForUserStats(1)))

	// a new like by user 1 drops the cached entry
	_, err = ms.Swipe(ctx, 1, 4, matching.ActionLike, matching.Metadata{})
	require.NoError(t, err)
	assert.False(t, mr.Exists(rc.KeyForUserStats(1)))

	got, err = svc.ForUser(ctx, admin, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.LikesGiven)
	assert.Equal(t, 2, got.LikesToday)

	// blocking the match drops the entry and the active count follows
	conns, _, err := ms.Registry().List(ctx, 1, "", pagination.Page{})
	require.NoError(t, err)
	require.Len(t, conns, 1)
	_, err = ms.UpdateStatus(ctx, 2, conns[0].ID, db.ConnectionBlocked)
	require.NoError(t, err)
	assert.False(t, mr.Exists(rc.KeyForUserStats(1)))

	got, err = svc.ForUser(ctx, admin, 1)
	require.NoError(t, err)
	assert.Zero(t, got.ActiveConnections)
}

func TestForUser_Rules(t *testing.T) {
	gdb := testutil.NewDB(t)
	testutil.SeedProfiles(t, gdb, 1)
	log := logger.Discard()
	ms := matching.NewService(gdb, nil, events.NewLogPublisher(log), log, matching.Config{DailyLikeCap: 5})
	svc := stats.NewService(gdb, ms, nil, log, 0)
	ctx := context.Background()

	_, err := svc.ForUser(ctx, auth.Principal{UserID: 1, Role: auth.RoleMember}, 1)
	assert.Equal(t, svcErr.KindForbidden, svcErr.KindOf(err))

	_, err = svc.ForUser(ctx, admin, 777)
	assert.Equal(t, svcErr.KindNotFound, svcErr.KindOf(err))

	got, err := svc.ForUser(ctx, admin, 1)
	require.NoError(t, err)
	assert.Zero(t, got.Matches)

	counts, err := svc.Overview(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts["approved"])
	assert.Equal(t, int64(0), counts["pending"])
}
