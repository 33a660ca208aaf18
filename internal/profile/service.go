package profile

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/oggyb/shaadimantra/internal/auth"
	"github.com/oggyb/shaadimantra/internal/db"
	svcErr "github.com/oggyb/shaadimantra/internal/errors"
	"github.com/oggyb/shaadimantra/internal/events"
	"github.com/oggyb/shaadimantra/internal/repository"
	"github.com/oggyb/shaadimantra/internal/utils/pagination"
	"github.com/oggyb/shaadimantra/internal/utils/validate"
)

var (
	ErrProfileMissing    = svcErr.NotFound("profile not found")
	ErrEmailTaken        = svcErr.Conflict("email already registered")
	ErrNotOwner          = svcErr.Forbidden("you can only change your own profile")
	ErrInvitationInvalid = svcErr.InvalidOperation("invitation code is invalid or expired")
	ErrTooYoung          = svcErr.InvalidOperation("members must be at least 18 years old")
	ErrGalleryFull       = svcErr.InvalidOperation("image limit reached")
)

type Service struct {
	db          *gorm.DB
	profiles    *repository.ProfileRepository
	invitations *repository.InvitationRepository
	events      events.Publisher
	log         *slog.Logger
	cfg         Config
	now         func() time.Time
}

func NewService(gdb *gorm.DB, pub events.Publisher, log *slog.Logger, cfg Config) *Service {
	if cfg.MaxImages <= 0 {
		cfg.MaxImages = 6
	}
	if cfg.InvitationTTL <= 0 {
		cfg.InvitationTTL = 7 * 24 * time.Hour
	}
	return &Service{
		db:          gdb,
		profiles:    repository.NewProfileRepository(gdb),
		invitations: repository.NewInvitationRepository(gdb),
		events:      pub,
		log:         log.With("component", "profile"),
		cfg:         cfg,
		now:         time.Now,
	}
}

// Create registers a profile in pending state.
//
// With RequireInvitation set, or whenever a code is supplied, the code must
// match an open invitation for the same email; the invitation is redeemed
// in the same transaction as the insert.
func (s *Service) Create(ctx context.Context, in CreateInput) (*db.Profile, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.FullName = strings.TrimSpace(in.FullName)
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if Age(in.DateOfBirth.UTC(), now) < minAge {
		return nil, ErrTooYoung
	}

	dob := in.DateOfBirth.UTC()
	p := &db.Profile{
		Email:        in.Email,
		FullName:     in.FullName,
		Gender:       in.Gender,
		DateOfBirth:  &dob,
		City:         strings.TrimSpace(in.City),
		State:        strings.TrimSpace(in.State),
		Country:      strings.TrimSpace(in.Country),
		Religion:     strings.TrimSpace(in.Religion),
		Community:    strings.TrimSpace(in.Community),
		MotherTongue: strings.TrimSpace(in.MotherTongue),
		Education:    strings.TrimSpace(in.Education),
		Profession:   strings.TrimSpace(in.Profession),
		HeightCm:     in.HeightCm,
		About:        strings.TrimSpace(in.About),
		Status:       db.ProfilePending,
	}
	p.Completeness = Completeness(p)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if s.cfg.RequireInvitation || in.InvitationCode != "" {
			inv, err := s.matchInvitation(ctx, tx, in.Email, in.InvitationCode, now)
			if err != nil {
				return err
			}
			ok, err := s.invitations.WithTx(tx).Redeem(ctx, inv.ID, now)
			if err != nil {
				return svcErr.Internal(err)
			}
			if !ok {
				return ErrInvitationInvalid
			}
			p.InvitationID = &inv.ID
		}

		if err := s.profiles.WithTx(tx).Create(ctx, p); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrEmailTaken
			}
			return svcErr.Internal(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "profile created", "profile_id", p.ID, "invited", p.InvitationID != nil)
	return p, nil
}

func (s *Service) matchInvitation(ctx context.Context, tx *gorm.DB, email, code string, now time.Time) (*db.Invitation, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, svcErr.InvalidOperation("an invitation code is required")
	}
	open, err := s.invitations.WithTx(tx).OpenForEmail(ctx, email, now)
	if err != nil {
		return nil, svcErr.Internal(err)
	}
	for i := range open {
		if bcrypt.CompareHashAndPassword([]byte(open[i].CodeHash), []byte(code)) == nil {
			return &open[i], nil
		}
	}
	return nil, ErrInvitationInvalid
}

// Get returns a profile. Owners and admins see any state; other members
// only see approved profiles.
func (s *Service) Get(ctx context.Context, viewer auth.Principal, id uint64) (*db.Profile, error) {
	p, err := s.profiles.Get(ctx, id)
	if err != nil {
		return nil, svcErr.Internal(err)
	}
	if p == nil {
		return nil, ErrProfileMissing
	}
	if p.Status != db.ProfileApproved && viewer.UserID != id && !viewer.IsAdmin() {
		return nil, ErrProfileMissing
	}
	return p, nil
}

func (s *Service) owned(ctx context.Context, actorID, id uint64) (*db.Profile, error) {
	if actorID != id {
		return nil, ErrNotOwner
	}
	p, err := s.profiles.Get(ctx, id)
	if err != nil {
		return nil, svcErr.Internal(err)
	}
	if p == nil {
		return nil, ErrProfileMissing
	}
	return p, nil
}

// Update edits the caller's own profile and recomputes its completeness.
func (s *Service) Update(ctx context.Context, actorID, id uint64, in UpdateInput) (*db.Profile, error) {
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	p, err := s.owned(ctx, actorID, id)
	if err != nil {
		return nil, err
	}
	if in.DateOfBirth != nil && Age(in.DateOfBirth.UTC(), s.now().UTC()) < minAge {
		return nil, ErrTooYoung
	}

	in.apply(p)
	p.Completeness = Completeness(p)
	if err := s.profiles.Save(ctx, p); err != nil {
		return nil, svcErr.Internal(err)
	}
	return p, nil
}

// AddImage appends an image URL to the gallery. The URL is opaque here;
// upload and storage belong to the image service.
func (s *Service) AddImage(ctx context.Context, actorID, id uint64, url string) (*db.Profile, error) {
	if err := validate.Var("url", url, "required,url,max=512"); err != nil {
		return nil, err
	}
	p, err := s.owned(ctx, actorID, id)
	if err != nil {
		return nil, err
	}
	if len(p.Images) >= s.cfg.MaxImages {
		return nil, ErrGalleryFull
	}

	img, err := s.profiles.AddImage(ctx, id, url)
	if err != nil {
		return nil, svcErr.Internal(err)
	}
	p.Images = append(p.Images, *img)
	return s.rescore(ctx, p)
}

func (s *Service) RemoveImage(ctx context.Context, actorID, id, imageID uint64) (*db.Profile, error) {
	p, err := s.owned(ctx, actorID, id)
	if err != nil {
		return nil, err
	}
	ok, err := s.profiles.RemoveImage(ctx, id, imageID)
	if err != nil {
		return nil, svcErr.Internal(err)
	}
	if !ok {
		return nil, svcErr.NotFound("image not found")
	}

	kept := p.Images[:0]
	for _, img := range p.Images {
		if img.ID != imageID {
			kept = append(kept, img)
		}
	}
	p.Images = kept
	return s.rescore(ctx, p)
}

func (s *Service) rescore(ctx context.Context, p *db.Profile) (*db.Profile, error) {
	score := Completeness(p)
	if score == p.Completeness {
		return p, nil
	}
	p.Completeness = score
	if err := s.profiles.Save(ctx, p); err != nil {
		return nil, svcErr.Internal(err)
	}
	return p, nil
}

// Deactivate hides the caller's profile everywhere. Existing chat history
// stays readable to the other participant.
func (s *Service) Deactivate(ctx context.Context, actorID, id uint64) error {
	if actorID != id {
		return ErrNotOwner
	}
	ok, err := s.profiles.Deactivate(ctx, id)
	if err != nil {
		return svcErr.Internal(err)
	}
	if !ok {
		return ErrProfileMissing
	}
	s.log.InfoContext(ctx, "profile deactivated", "profile_id", id)
	return nil
}

// DiscoverPage is one page of the discovery feed.
type DiscoverPage struct {
	Profiles []db.Profile
	Next     string
}

// Discover lists approved profiles of the opposite gender that the viewer
// has neither swiped on nor is connected with.
func (s *Service) Discover(ctx context.Context, viewerID uint64, page pagination.Page) (*DiscoverPage, error) {
	viewer, err := s.profiles.Get(ctx, viewerID)
	if err != nil {
		return nil, svcErr.Internal(err)
	}
	if viewer == nil {
		return nil, ErrProfileMissing
	}

	profiles, next, err := s.profiles.Discover(ctx, viewerID, opposite(viewer.Gender), s.cfg.AllowRediscovery, page.Token, page.Limit)
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidToken) {
			return nil, svcErr.InvalidOperation("invalid pagination token")
		}
		return nil, svcErr.Internal(err)
	}

	if err := s.profiles.Touch(ctx, viewerID, s.now().UTC()); err != nil {
		s.log.WarnContext(ctx, "touch failed", "profile_id", viewerID, "err", err)
	}
	return &DiscoverPage{Profiles: profiles, Next: next}, nil
}

// Invitation is a freshly created invitation. Code is only ever shown here.
type Invitation struct {
	ID        uint64
	Email     string
	Code      string
	ExpiresAt time.Time
}

// Invite creates an invitation for email. Admin only.
func (s *Service) Invite(ctx context.Context, admin auth.Principal, email string) (*Invitation, error) {
	if !admin.IsAdmin() {
		return nil, svcErr.Forbidden("admin role required")
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if err := validate.Var("email", email, "required,email"); err != nil {
		return nil, err
	}

	code := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return nil, svcErr.Internal(err)
	}

	inv := &db.Invitation{
		Email:     email,
		CodeHash:  string(hash),
		CreatedBy: admin.UserID,
		ExpiresAt: s.now().UTC().Add(s.cfg.InvitationTTL),
	}
	if err := s.invitations.Create(ctx, inv); err != nil {
		return nil, svcErr.Internal(err)
	}
	return &Invitation{ID: inv.ID, Email: email, Code: code, ExpiresAt: inv.ExpiresAt}, nil
}

// Review approves or rejects a profile. Admin only; a rejection needs a note.
func (s *Service) Review(ctx context.Context, admin auth.Principal, id uint64, approve bool, note string) (*db.Profile, error) {
	if !admin.IsAdmin() {
		return nil, svcErr.Forbidden("admin role required")
	}
	status := db.ProfileApproved
	note = strings.TrimSpace(note)
	if !approve {
		status = db.ProfileRejected
		if note == "" {
			return nil, svcErr.InvalidOperation("a rejection note is required")
		}
	}

	// MySQL reports zero affected rows for a no-op update, so existence is
	// checked up front rather than from SetStatus.
	p, err := s.profiles.Get(ctx, id)
	if err != nil {
		return nil, svcErr.Internal(err)
	}
	if p == nil {
		return nil, ErrProfileMissing
	}
	if _, err := s.profiles.SetStatus(ctx, id, status, admin.UserID, note, s.now().UTC()); err != nil {
		return nil, svcErr.Internal(err)
	}

	if approve {
		events.Emit(ctx, s.events, s.log, events.New(events.TypeProfileApproved, id,
			events.ProfileApproved{ProfileID: id, By: admin.UserID}))
	}
	return s.Get(ctx, admin, id)
}

// Pending is the review queue, oldest first.
func (s *Service) Pending(ctx context.Context, admin auth.Principal, page pagination.Page) (*DiscoverPage, error) {
	if !admin.IsAdmin() {
		return nil, svcErr.Forbidden("admin role required")
	}
	profiles, next, err := s.profiles.ListByStatus(ctx, db.ProfilePending, page.Token, page.Limit)
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidToken) {
			return nil, svcErr.InvalidOperation("invalid pagination token")
		}
		return nil, svcErr.Internal(err)
	}
	return &DiscoverPage{Profiles: profiles, Next: next}, nil
}
