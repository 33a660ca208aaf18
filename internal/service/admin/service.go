// Package admin is the moderation and reporting API. Every call requires
// the admin role, which the underlying services check.
package admin

import (
	"context"
	"time"

	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/oggyb/shaadimantra/internal/app"
	svcErr "github.com/oggyb/shaadimantra/internal/errors"
	"github.com/oggyb/shaadimantra/internal/server"
	"github.com/oggyb/shaadimantra/internal/service/profiles"
	"github.com/oggyb/shaadimantra/internal/stats"
	"github.com/oggyb/shaadimantra/internal/utils/pagination"
)

const ServiceName = "shaadimantra.v1.AdminService"

type CreateInvitationRequest struct {
	Email string `json:"email" validate:"required,email,max=128"`
}

type Invitation struct {
	ID        uint64    `json:"id"`
	Email     string    `json:"email"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ReviewProfileRequest struct {
	ProfileID uint64 `json:"profile_id" validate:"required"`
	Approve   bool   `json:"approve"`
	Note      string `json:"note" validate:"max=255"`
}

type ListPendingRequest struct {
	PaginationToken string `json:"pagination_token"`
	Limit           int    `json:"limit" validate:"gte=0"`
}

type GetUserStatsRequest struct {
	UserID uint64 `json:"user_id" validate:"required"`
}

type OverviewResponse struct {
	Profiles map[string]int64 `json:"profiles"`
	Online   int              `json:"online"`
}

type MigrateChatRequest struct {
	Batch int `json:"batch" validate:"gte=0,lte=1000"`
}

type MigrateChatResponse struct {
	Migrated int `json:"migrated"`
}

type Service struct {
	appCtx *app.AppContext
}

func NewAdminService(appCtx *app.AppContext) *Service {
	return &Service{appCtx: appCtx}
}

// CreateInvitation issues a registration code for email. The code is
// returned once and only its hash is stored.
func (s *Service) CreateInvitation(ctx context.Context, req *CreateInvitationRequest) (*Invitation, error) {
	caller, err := server.Caller(ctx)
	if err != nil {
		return nil, err
	}
	inv, err := s.appCtx.Profiles.Invite(ctx, caller, req.Email)
	if err != nil {
		return nil, err
	}
	return &Invitation{ID: inv.ID, Email: inv.Email, Code: inv.Code, ExpiresAt: inv.ExpiresAt}, nil
}

func (s *Service) ReviewProfile(ctx context.Context, req *ReviewProfileRequest) (*profiles.Profile, error) {
	caller, err := server.Caller(ctx)
	if err != nil {
		return nil, err
	}
	p, err := s.appCtx.Profiles.Review(ctx, caller, req.ProfileID, req.Approve, req.Note)
	if err != nil {
		return nil, err
	}
	out := profiles.View(p, caller, time.Now())
	return &out, nil
}

// ListPending is the review queue, oldest first.
func (s *Service) ListPending(ctx context.Context, req *ListPendingRequest) (*profiles.ProfileList, error) {
	caller, err := server.Caller(ctx)
	if err != nil {
		return nil, err
	}
	page, err := s.appCtx.Profiles.Pending(ctx, caller, pagination.Page{Token: req.PaginationToken, Limit: req.Limit})
	if err != nil {
		return nil, err
	}
	return profiles.List(page.Profiles, page.Next, caller, time.Now()), nil
}

func (s *Service) GetUserStats(ctx context.Context, req *GetUserStatsRequest) (*stats.UserStats, error) {
	caller, err := server.Caller(ctx)
	if err != nil {
		return nil, err
	}
	return s.appCtx.Stats.ForUser(ctx, caller, req.UserID)
}

// GetOverview counts profiles per review status and the sockets open on
// this instance.
func (s *Service) GetOverview(ctx context.Context, _ *emptypb.Empty) (*OverviewResponse, error) {
	caller, err := server.Caller(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := s.appCtx.Stats.Overview(ctx, caller)
	if err != nil {
		return nil, err
	}
	return &OverviewResponse{Profiles: counts, Online: s.appCtx.Hub.Online()}, nil
}

// MigrateChat moves legacy per-message rows into threads. It runs until no
// legacy rows remain and can be repeated safely.
func (s *Service) MigrateChat(ctx context.Context, req *MigrateChatRequest) (*MigrateChatResponse, error) {
	caller, err := server.Caller(ctx)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin() {
		return nil, svcErr.ErrAdminOnly
	}
	n, err := s.appCtx.Chat.MigrateAll(ctx, req.Batch)
	if err != nil {
		return nil, err
	}
	return &MigrateChatResponse{Migrated: n}, nil
}
