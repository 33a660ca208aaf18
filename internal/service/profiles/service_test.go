package profiles_test

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
	"github.com/oggyb/shaadimantra/internal/profile"
	"github.com/oggyb/shaadimantra/internal/service/profiles"
	"github.com/oggyb/shaadimantra/internal/service/servicetest"
	"github.com/oggyb/shaadimantra/internal/testutil"
)

func method(name string) string { return "/" + profiles.ServiceName + "/" + name }

func TestRegisterAndEditOverGRPC(t *testing.T) {
	env := servicetest.New(t)
	conn := env.Dial(t, profiles.NewRegistrar(env.App))

	dob := time.Date(1996, 3, 14, 0, 0, 0, 0, time.UTC)
	var created profiles.Profile
	// registration needs no token
	require.NoError(t, conn.Invoke(context.Background(), method("CreateProfile"), &profile.CreateInput{
		Email:       "Meera@Example.com",
		FullName:    "Meera Iyer",
		Gender:      "female",
		DateOfBirth: &dob,
		City:        "Chennai",
	}, &created))
	require.NotZero(t, created.ID)
	assert.Equal(t, "meera@example.com", created.Email)
	assert.Equal(t, "pending", created.Status)
	assert.Positive(t, created.Age)

	err := conn.Invoke(context.Background(), method("CreateProfile"), &profile.CreateInput{Email: "bad"}, &created)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	owner := env.As(t, created.ID, auth.RoleMember)
	stranger := env.As(t, created.ID+1, auth.RoleMember)

	var got profiles.Profile
	err = conn.Invoke(stranger, method("GetProfile"), &profiles.GetProfileRequest{ProfileID: created.ID}, &got)
	assert.Equal(t, codes.NotFound, status.Code(err))

	about := "Loves carnatic music"
	require.NoError(t, conn.Invoke(owner, method("UpdateProfile"), &profile.UpdateInput{About: &about}, &got))
	assert.Equal(t, about, got.About)
	assert.Greater(t, got.Completeness, created.Completeness)

	require.NoError(t, conn.Invoke(owner, method("AddImage"),
		&profiles.AddImageRequest{URL: "https://img.example.com/meera.jpg"}, &got))
	require.Len(t, got.Images, 1)

	err = conn.Invoke(owner, method("AddImage"), &profiles.AddImageRequest{URL: "not a url"}, &got)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	require.NoError(t, conn.Invoke(owner, method("RemoveImage"),
		&profiles.RemoveImageRequest{ImageID: got.Images[0].ID}, &got))
	assert.Empty(t, got.Images)

	require.NoError(t, conn.Invoke(owner, method("Deactivate"), &emptypb.Empty{}, &emptypb.Empty{}))
	err = conn.Invoke(owner, method("GetProfile"), &profiles.GetProfileRequest{ProfileID: created.ID}, &got)
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestDiscoverHidesPrivateFields(t *testing.T) {
	env := servicetest.New(t)
	testutil.SeedProfiles(t, env.App.DB, 1, 2, 4)
	svc := profiles.NewProfileService(env.App)

	feed, err := svc.Discover(servicetest.Principal(1, auth.RoleMember), &profiles.DiscoverRequest{})
	require.NoError(t, err)
	require.Len(t, feed.Profiles, 2)
	for _, p := range feed.Profiles {
		assert.Equal(t, "female", p.Gender)
		assert.Empty(t, p.Email)
		assert.Empty(t, p.Status)
	}

	self, err := svc.GetProfile(servicetest.Principal(1, auth.RoleMember), &profiles.GetProfileRequest{ProfileID: 1})
	require.NoError(t, err)
	assert.Equal(t, "user1@example.com", self.Email)
}
