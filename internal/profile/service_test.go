package profile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/shaadimantra/internal/auth"
	"github.com/oggyb/shaadimantra/internal/db"
	svcErr "github.com/oggyb/shaadimantra/internal/errors"
	"github.com/oggyb/shaadimantra/internal/events"
	"github.com/oggyb/shaadimantra/internal/logger"
	"github.com/oggyb/shaadimantra/internal/testutil"
	"github.com/oggyb/shaadimantra/internal/utils/pagination"
)

var (
	today = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	admin = auth.Principal{UserID: 900, Role: auth.RoleAdmin}
)

func newService(t *testing.T, cfg Config) *Service {
	t.Helper()
	log := logger.Discard()
	s := NewService(testutil.NewDB(t), events.NewLogPublisher(log), log, cfg)
	s.now = func() time.Time { return today }
	return s
}

func born(year int) *time.Time {
	t := time.Date(year, 6, 1, 0, 0, 0, 0, time.UTC)
	return &t
}

func input(email, gender string) CreateInput {
	return CreateInput{Email: email, FullName: "Asha Rao", Gender: gender, DateOfBirth: born(1995)}
}

func TestCreate(t *testing.T) {
	s := newService(t, Config{})
	ctx := context.Background()

	p, err := s.Create(ctx, input("  Asha@Example.com ", "female"))
	require.NoError(t, err)
	assert.Equal(t, "asha@example.com", p.Email)
	assert.Equal(t, db.ProfilePending, p.Status)
	assert.Equal(t, 25, p.Completeness)

	_, err = s.Create(ctx, input("asha@example.com", "female"))
	assert.ErrorIs(t, err, ErrEmailTaken)

	young := input("kid@example.com", "male")
	young.DateOfBirth = born(2010)
	_, err = s.Create(ctx, young)
	assert.ErrorIs(t, err, ErrTooYoung)

	bad := input("not-an-email", "other")
	_, err = s.Create(ctx, bad)
	assert.Equal(t, svcErr.KindInvalidOperation, svcErr.KindOf(err))
}

func TestCreate_Invitation(t *testing.T) {
	s := newService(t, Config{RequireInvitation: true, InvitationTTL: time.Hour})
	ctx := context.Background()

	_, err := s.Invite(ctx, auth.Principal{UserID: 1, Role: auth.RoleMember}, "ravi@example.com")
	assert.Equal(t, svcErr.KindForbidden, svcErr.KindOf(err))

	inv, err := s.Invite(ctx, admin, "Ravi@example.com")
	require.NoError(t, err)
	require.Len(t, inv.Code, 12)

	in := input("ravi@example.com", "male")
	_, err = s.Create(ctx, in)
	assert.Equal(t, svcErr.KindInvalidOperation, svcErr.KindOf(err))

	in.InvitationCode = "WRONGCODE000"
	_, err = s.Create(ctx, in)
	assert.ErrorIs(t, err, ErrInvitationInvalid)

	in.InvitationCode = inv.Code
	p, err := s.Create(ctx, in)
	require.NoError(t, err)
	require.NotNil(t, p.InvitationID)
	assert.Equal(t, inv.ID, *p.InvitationID)

	// a redeemed code cannot be reused
	other := input("ravi@example.com", "male")
	other.InvitationCode = inv.Code
	_, err = s.Create(ctx, other)
	assert.ErrorIs(t, err, ErrInvitationInvalid)

	s.now = func() time.Time { return today.Add(2 * time.Hour) }
	late, err := s.Invite(ctx, admin, "late@example.com")
	require.NoError(t, err)
	s.now = func() time.Time { return today.Add(4 * time.Hour) }
	in = input("late@example.com", "female")
	in.InvitationCode = late.Code
	_, err = s.Create(ctx, in)
	assert.ErrorIs(t, err, ErrInvitationInvalid)
}

func TestUpdateAndGallery(t *testing.T) {
	s := newService(t, Config{MaxImages: 2})
	ctx := context.Background()

	p, err := s.Create(ctx, input("meera@example.com", "female"))
	require.NoError(t, err)

	_, err = s.Update(ctx, p.ID+1, p.ID, UpdateInput{})
	assert.ErrorIs(t, err, ErrNotOwner)

	city, job := "Jaipur", "Architect"
	p, err = s.Update(ctx, p.ID, p.ID, UpdateInput{City: &city, Profession: &job})
	require.NoError(t, err)
	assert.Equal(t, "Jaipur", p.City)
	assert.Equal(t, 40, p.Completeness)

	_, err = s.AddImage(ctx, p.ID, p.ID, "not a url")
	assert.Equal(t, svcErr.KindInvalidOperation, svcErr.KindOf(err))

	p, err = s.AddImage(ctx, p.ID, p.ID, "https://img.example.com/1.jpg")
	require.NoError(t, err)
	assert.Equal(t, 55, p.Completeness)
	p, err = s.AddImage(ctx, p.ID, p.ID, "https://img.example.com/2.jpg")
	require.NoError(t, err)
	_, err = s.AddImage(ctx, p.ID, p.ID, "https://img.example.com/3.jpg")
	assert.ErrorIs(t, err, ErrGalleryFull)

	require.Len(t, p.Images, 2)
	assert.Equal(t, 1, p.Images[1].Position)

	for _, img := range append([]db.ProfileImage(nil), p.Images...) {
		p, err = s.RemoveImage(ctx, p.ID, p.ID, img.ID)
		require.NoError(t, err)
	}
	assert.Equal(t, 40, p.Completeness)

	_, err = s.RemoveImage(ctx, p.ID, p.ID, 12345)
	assert.Equal(t, svcErr.KindNotFound, svcErr.KindOf(err))
}

func TestReviewAndVisibility(t *testing.T) {
	s := newService(t, Config{})
	ctx := context.Background()

	p, err := s.Create(ctx, input("nisha@example.com", "female"))
	require.NoError(t, err)
	member := auth.Principal{UserID: p.ID + 100, Role: auth.RoleMember}

	_, err = s.Get(ctx, member, p.ID)
	assert.ErrorIs(t, err, ErrProfileMissing)
	_, err = s.Get(ctx, auth.Principal{UserID: p.ID}, p.ID)
	assert.NoError(t, err)

	queue, err := s.Pending(ctx, admin, pagination.Page{})
	require.NoError(t, err)
	require.Len(t, queue.Profiles, 1)

	_, err = s.Review(ctx, admin, p.ID, false, "")
	assert.Equal(t, svcErr.KindInvalidOperation, svcErr.KindOf(err))
	_, err = s.Review(ctx, member, p.ID, true, "")
	assert.Equal(t, svcErr.KindForbidden, svcErr.KindOf(err))

	approved, err := s.Review(ctx, admin, p.ID, true, "")
	require.NoError(t, err)
	assert.Equal(t, db.ProfileApproved, approved.Status)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, admin.UserID, *approved.ApprovedBy)

	_, err = s.Get(ctx, member, p.ID)
	assert.NoError(t, err)

	_, err = s.Review(ctx, admin, 4242, true, "")
	assert.ErrorIs(t, err, ErrProfileMissing)

	require.NoError(t, s.Deactivate(ctx, p.ID, p.ID))
	_, err = s.Get(ctx, member, p.ID)
	assert.ErrorIs(t, err, ErrProfileMissing)
	assert.ErrorIs(t, s.Deactivate(ctx, p.ID, p.ID), ErrProfileMissing)
}

func TestDiscover(t *testing.T) {
	s := newService(t, Config{})
	ctx := context.Background()
	// odd ids male, even ids female
	testutil.SeedProfiles(t, s.db, 1, 2, 3, 4, 6)

	require.NoError(t, s.db.Create(&db.Swipe{ActorID: 1, TargetID: 2, Action: "pass"}).Error)
	require.NoError(t, s.db.Create(&db.Connection{UserLowID: 1, UserHighID: 4, Status: db.ConnectionBlocked}).Error)

	page, err := s.Discover(ctx, 1, pagination.Page{})
	require.NoError(t, err)
	require.Len(t, page.Profiles, 1)
	assert.Equal(t, uint64(6), page.Profiles[0].ID)

	page, err = s.Discover(ctx, 2, pagination.Page{Limit: 1})
	require.NoError(t, err)
	require.Len(t, page.Profiles, 1)
	assert.Equal(t, uint64(1), page.Profiles[0].ID)
	require.NotEmpty(t, page.Next)

	page, err = s.Discover(ctx, 2, pagination.Page{Token: page.Next, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page.Profiles, 1)
	assert.Equal(t, uint64(3), page.Profiles[0].ID)

	_, err = s.Discover(ctx, 2, pagination.Page{Token: "%%"})
	assert.Equal(t, svcErr.KindInvalidOperation, svcErr.KindOf(err))

	var viewer db.Profile
	require.NoError(t, s.db.First(&viewer, 2).Error)
	require.NotNil(t, viewer.LastActiveAt)
}

func TestDiscover_UnmatchedPairReturnsWhenRediscoveryAllowed(t *testing.T) {
	seed := func(t *testing.T, allow bool) *Service {
		s := newService(t, Config{AllowRediscovery: allow})
		testutil.SeedProfiles(t, s.db, 1, 2, 4)
		require.NoError(t, s.db.Create(&db.Connection{UserLowID: 1, UserHighID: 2, Status: db.ConnectionUnmatched}).Error)
		require.NoError(t, s.db.Create(&db.Connection{UserLowID: 1, UserHighID: 4, Status: db.ConnectionBlocked}).Error)
		return s
	}

	t.Run("disabled", func(t *testing.T) {
		page, err := seed(t, false).Discover(context.Background(), 1, pagination.Page{})
		require.NoError(t, err)
		assert.Empty(t, page.Profiles)
	})

	t.Run("enabled", func(t *testing.T) {
		page, err := seed(t, true).Discover(context.Background(), 1, pagination.Page{})
		require.NoError(t, err)
		// blocked stays hidden either way
		require.Len(t, page.Profiles, 1)
		assert.Equal(t, uint64(2), page.Profiles[0].ID)
	})
}

func TestCompleteness(t *testing.T) {
	full := &db.Profile{
		FullName: "A", Gender: "male", DateOfBirth: born(1990), City: "Pune", Country: "India",
		Religion: "Hindu", Community: "Maratha", MotherTongue: "Marathi", Education: "MBA",
		Profession: "Banker", HeightCm: 175, About: "hello", Images: []db.ProfileImage{{URL: "u"}},
	}
	assert.Equal(t, 100, Completeness(full))
	assert.Equal(t, 0, Completeness(&db.Profile{}))
	assert.Equal(t, 29, Age(time.Date(1995, 6, 1, 0, 0, 0, 0, time.UTC), today))
}
