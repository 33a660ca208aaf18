package admin_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/oggyb/shaadimantra/internal/auth"
	"github.com/oggyb/shaadimantra/internal/db"
	"github.com/oggyb/shaadimantra/internal/matching"
	"github.com/oggyb/shaadimantra/internal/profile"
	"github.com/oggyb/shaadimantra/internal/repository"
	"github.com/oggyb/shaadimantra/internal/service/admin"
	"github.com/oggyb/shaadimantra/internal/service/profiles"
	"github.com/oggyb/shaadimantra/internal/service/servicetest"
	"github.com/oggyb/shaadimantra/internal/stats"
	"github.com/oggyb/shaadimantra/internal/testutil"
)

func method(name string) string { return "/" + admin.ServiceName + "/" + name }

func TestMembersAreRefused(t *testing.T) {
	env := servicetest.New(t)
	conn := env.Dial(t, admin.NewRegistrar(env.App))
	member := env.As(t, 1, auth.RoleMember)

	var inv admin.Invitation
	err := conn.Invoke(member, method("CreateInvitation"), &admin.CreateInvitationRequest{Email: "a@example.com"}, &inv)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	var overview admin.OverviewResponse
	err = conn.Invoke(member, method("GetOverview"), &emptypb.Empty{}, &overview)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	var migrated admin.MigrateChatResponse
	err = conn.Invoke(member, method("MigrateChat"), &admin.MigrateChatRequest{}, &migrated)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}

// TestInviteReviewAndStats runs the moderation path: invite, register with
// the code, approve, then read the member's stats.
func TestInviteReviewAndStats(t *testing.T) {
	env := servicetest.New(t)
	testutil.SeedProfiles(t, env.App.DB, 1)
	conn := env.Dial(t, admin.NewRegistrar(env.App), profiles.NewRegistrar(env.App))
	root := env.As(t, 900, auth.RoleAdmin)

	var inv admin.Invitation
	require.NoError(t, conn.Invoke(root, method("CreateInvitation"),
		&admin.CreateInvitationRequest{Email: "kavya@example.com"}, &inv))
	require.Len(t, inv.Code, 12)

	dob := time.Date(1997, 8, 2, 0, 0, 0, 0, time.UTC)
	var created profiles.Profile
	require.NoError(t, conn.Invoke(context.Background(), "/"+profiles.ServiceName+"/CreateProfile", &profile.CreateInput{
		Email:          "kavya@example.com",
		FullName:       "Kavya Rao",
		Gender:         "female",
		DateOfBirth:    &dob,
		InvitationCode: inv.Code,
	}, &created))

	var queue profiles.ProfileList
	require.NoError(t, conn.Invoke(root, method("ListPending"), &admin.ListPendingRequest{}, &queue))
	require.Len(t, queue.Profiles, 1)
	assert.Equal(t, created.ID, queue.Profiles[0].ID)

	var reviewed profiles.Profile
	err := conn.Invoke(root, method("ReviewProfile"), &admin.ReviewProfileRequest{ProfileID: created.ID}, &reviewed)
	assert.Equal(t, codes.InvalidArgument, status.Code(err), "rejection without a note")

	require.NoError(t, conn.Invoke(root, method("ReviewProfile"),
		&admin.ReviewProfileRequest{ProfileID: created.ID, Approve: true}, &reviewed))
	assert.Equal(t, db.ProfileApproved, reviewed.Status)

	// user 1 may now like the approved profile
	_, err = env.App.Matching.Swipe(context.Background(), 1, created.ID, matching.ActionLike, matching.Metadata{})
	require.NoError(t, err)

	var st stats.UserStats
	require.NoError(t, conn.Invoke(root, method("GetUserStats"), &admin.GetUserStatsRequest{UserID: 1}, &st))
	assert.Equal(t, int64(1), st.LikesGiven)
	assert.Equal(t, 1, st.LikesToday)

	err = conn.Invoke(root, method("GetUserStats"), &admin.GetUserStatsRequest{UserID: 4040}, &st)
	assert.Equal(t, codes.NotFound, status.Code(err))

	var overview admin.OverviewResponse
	require.NoError(t, conn.Invoke(root, method("GetOverview"), &emptypb.Empty{}, &overview))
	assert.Equal(t, int64(2), overview.Profiles[db.ProfileApproved])
	assert.Equal(t, int64(0), overview.Profiles[db.ProfilePending])
}

func TestMigrateChat(t *testing.T) {
	env := servicetest.New(t)
	conn := env.Dial(t, admin.NewRegistrar(env.App))
	store := repository.NewChatThreadRepository(env.App.DB)

	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.InsertLegacy(context.Background(), []db.LegacyMessage{
		{ID: "legacy-1", ConnectionID: 7, SenderID: 1, Text: "hi", Status: "read", CreatedAt: base},
		{ID: "legacy-2", ConnectionID: 7, SenderID: 2, Text: "hello", Status: "", CreatedAt: base.Add(time.Minute)},
		{ID: "legacy-3", ConnectionID: 8, SenderID: 3, Text: "hey", Status: "delivered", CreatedAt: base},
	}))

	var out admin.MigrateChatResponse
	require.NoError(t, conn.Invoke(env.As(t, 900, auth.RoleAdmin), method("MigrateChat"),
		&admin.MigrateChatRequest{Batch: 1}, &out))
	assert.Equal(t, 3, out.Migrated)

	var left int64
	require.NoError(t, env.App.DB.Model(&db.LegacyMessage{}).Count(&left).Error)
	assert.Zero(t, left)

	// nothing left: a second run is a no-op
	require.NoError(t, conn.Invoke(env.As(t, 900, auth.RoleAdmin), method("MigrateChat"),
		&admin.MigrateChatRequest{}, &out))
	assert.Zero(t, out.Migrated)
}
