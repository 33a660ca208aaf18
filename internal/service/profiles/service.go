package profiles

import (
	"context"
	"time"

	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/oggyb/shaadimantra/internal/app"
	"github.com/oggyb/shaadimantra/internal/auth"
	"github.com/oggyb/shaadimantra/internal/db"
	"github.com/oggyb/shaadimantra/internal/profile"
	"github.com/oggyb/shaadimantra/internal/server"
	"github.com/oggyb/shaadimantra/internal/utils/pagination"
)

const ServiceName = "shaadimantra.v1.ProfileService"

type GetProfileRequest struct {
	ProfileID uint64 `json:"profile_id" validate:"required"`
}

type AddImageRequest struct {
	URL string `json:"url" validate:"required,url,max=512"`
}

type RemoveImageRequest struct {
	ImageID uint64 `json:"image_id" validate:"required"`
}

type DiscoverRequest struct {
	PaginationToken string `json:"pagination_token"`
	Limit           int    `json:"limit" validate:"gte=0"`
}

type ProfileList struct {
	Profiles            []Profile `json:"profiles"`
	NextPaginationToken string    `json:"next_pagination_token,omitempty"`
}

type Image struct {
	ID       uint64 `json:"id"`
	URL      string `json:"url"`
	Position int    `json:"position"`
}

// Profile is what other members see. Email and review details are only
// filled in for the owner and admins.
type Profile struct {
	ID            uint64  `json:"id"`
	Email         string  `json:"email,omitempty"`
	FullName      string  `json:"full_name"`
	Gender        string  `json:"gender"`
	Age           int     `json:"age,omitempty"`
	City          string  `json:"city,omitempty"`
	State         string  `json:"state,omitempty"`
	Country       string  `json:"country,omitempty"`
	Religion      string  `json:"religion,omitempty"`
	Community     string  `json:"community,omitempty"`
	MotherTongue  string  `json:"mother_tongue,omitempty"`
	Education     string  `json:"education,omitempty"`
	Profession    string  `json:"profession,omitempty"`
	HeightCm      int     `json:"height_cm,omitempty"`
	About         string  `json:"about,omitempty"`
	Images        []Image `json:"images"`
	Completeness  int     `json:"completeness"`
	Status        string  `json:"status,omitempty"`
	RejectionNote string  `json:"rejection_note,omitempty"`
}

// View renders p for viewer.
func View(p *db.Profile, viewer auth.Principal, now time.Time) Profile {
	out := Profile{
		ID:           p.ID,
		FullName:     p.FullName,
		Gender:       p.Gender,
		City:         p.City,
		State:        p.State,
		Country:      p.Country,
		Religion:     p.Religion,
		Community:    p.Community,
		MotherTongue: p.MotherTongue,
		Education:    p.Education,
		Profession:   p.Profession,
		HeightCm:     p.HeightCm,
		About:        p.About,
		Images:       make([]Image, 0, len(p.Images)),
		Completeness: p.Completeness,
	}
	if p.DateOfBirth != nil {
		out.Age = profile.Age(p.DateOfBirth.UTC(), now)
	}
	for _, img := range p.Images {
		out.Images = append(out.Images, Image{ID: img.ID, URL: img.URL, Position: img.Position})
	}
	if viewer.UserID == p.ID || viewer.IsAdmin() {
		out.Email = p.Email
		out.Status = p.Status
		out.RejectionNote = p.RejectionNote
	}
	return out
}

// List renders a page of profiles for viewer.
func List(ps []db.Profile, next string, viewer auth.Principal, now time.Time) *ProfileList {
	out := &ProfileList{Profiles: make([]Profile, 0, len(ps)), NextPaginationToken: next}
	for i := range ps {
		out.Profiles = append(out.Profiles, View(&ps[i], viewer, now))
	}
	return out
}

type Service struct {
	appCtx *app.AppContext
	now    func() time.Time
}

func NewProfileService(appCtx *app.AppContext) *Service {
	return &Service{appCtx: appCtx, now: time.Now}
}

// CreateProfile registers a new member. It is the only call that needs no
// token; the profile starts pending review.
func (s *Service) CreateProfile(ctx context.Context, req *profile.CreateInput) (*Profile, error) {
	p, err := s.appCtx.Profiles.Create(ctx, *req)
	if err != nil {
		return nil, err
	}
	out := View(p, auth.Principal{UserID: p.ID, Role: auth.RoleMember}, s.now())
	return &out, nil
}

func (s *Service) GetProfile(ctx context.Context, req *GetProfileRequest) (*Profile, error) {
	caller, err := server.Caller(ctx)
	if err != nil {
		return nil, err
	}
	p, err := s.appCtx.Profiles.Get(ctx, caller, req.ProfileID)
	if err != nil {
		return nil, err
	}
	out := View(p, caller, s.now())
	return &out, nil
}

// UpdateProfile changes the caller's own profile.
func (s *Service) UpdateProfile(ctx context.Context, req *profile.UpdateInput) (*Profile, error) {
	caller, err := server.Caller(ctx)
	if err != nil {
		return nil, err
	}
	p, err := s.appCtx.Profiles.Update(ctx, caller.UserID, caller.UserID, *req)
	if err != nil {
		return nil, err
	}
	out := View(p, caller, s.now())
	return &out, nil
}

func (s *Service) AddImage(ctx context.Context, req *AddImageRequest) (*Profile, error) {
	caller, err := server.Caller(ctx)
	if err != nil {
		return nil, err
	}
	p, err := s.appCtx.Profiles.AddImage(ctx, caller.UserID, caller.UserID, req.URL)
	if err != nil {
		return nil, err
	}
	out := View(p, caller, s.now())
	return &out, nil
}

func (s *Service) RemoveImage(ctx context.Context, req *RemoveImageRequest) (*Profile, error) {
	caller, err := server.Caller(ctx)
	if err != nil {
		return nil, err
	}
	p, err := s.appCtx.Profiles.RemoveImage(ctx, caller.UserID, caller.UserID, req.ImageID)
	if err != nil {
		return nil, err
	}
	out := View(p, caller, s.now())
	return &out, nil
}

// Deactivate hides the caller's profile from everyone.
func (s *Service) Deactivate(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	caller, err := server.Caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.appCtx.Profiles.Deactivate(ctx, caller.UserID, caller.UserID); err != nil {
		return nil, err
	}
	return &emptypb.Empty{}, nil
}

// Discover is the caller's feed of profiles not yet swiped on.
func (s *Service) Discover(ctx context.Context, req *DiscoverRequest) (*ProfileList, error) {
	caller, err := server.Caller(ctx)
	if err != nil {
		return nil, err
	}
	page, err := s.appCtx.Profiles.Discover(ctx, caller.UserID, pagination.Page{Token: req.PaginationToken, Limit: req.Limit})
	if err != nil {
		return nil, err
	}
	return List(page.Profiles, page.Next, caller, s.now()), nil
}
