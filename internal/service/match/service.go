package match

import (
	"context"

	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/oggyb/shaadimantra/internal/app"
	"github.com/oggyb/shaadimantra/internal/db"
	"github.com/oggyb/shaadimantra/internal/matching"
	"github.com/oggyb/shaadimantra/internal/server"
	"github.com/oggyb/shaadimantra/internal/utils/pagination"
)

// ServiceName is the gRPC service path of the swipe API.
const ServiceName = "shaadimantra.v1.MatchService"

type SwipeRequest struct {
	TargetUserID uint64 `json:"target_user_id" validate:"required"`
	Action       string `json:"action" validate:"required,oneof=like super_like pass"`
	Source       string `json:"source" validate:"max=32"`
	Platform     string `json:"platform" validate:"max=32"`
}

type SwipeResponse struct {
	SwipeID      uint64 `json:"swipe_id"`
	IsMatch      bool   `json:"is_match"`
	ConnectionID uint64 `json:"connection_id,omitempty"`
}

type ListLikedYouRequest struct {
	PaginationToken string `json:"pagination_token"`
	Limit           int    `json:"limit" validate:"gte=0"`
}

type Liker struct {
	ActorID       uint64 `json:"actor_id"`
	Action        string `json:"action"`
	UnixTimestamp int64  `json:"unix_timestamp"`
}

type ListLikedYouResponse struct {
	Likers              []Liker `json:"likers"`
	NextPaginationToken string  `json:"next_pagination_token,omitempty"`
}

type CountLikedYouResponse struct {
	Count int64 `json:"count"`
}

type QuotaResponse struct {
	Day       string `json:"day"`
	Used      int    `json:"used"`
	Cap       int    `json:"cap"`
	Remaining int    `json:"remaining"`
}

// Service implements the Match gRPC API on top of the matching core.
// Every method acts on behalf of the authenticated caller.
type Service struct {
	appCtx *app.AppContext
}

// NewMatchService creates a new Match service with dependencies from AppContext.
func NewMatchService(appCtx *app.AppContext) *Service {
	return &Service{appCtx: appCtx}
}

// Swipe records a like, super like or pass on another member.
//
// Behavior:
//   - A like toward someone who already liked the caller creates a connection.
//   - Likes count against the caller's daily quota; passes never do.
//   - A second swipe on the same member is rejected as a conflict.
func (s *Service) Swipe(ctx context.Context, req *SwipeRequest) (*SwipeResponse, error) {
	caller, err := server.Caller(ctx)
	if err != nil {
		return nil, err
	}
	action, err := matching.ParseAction(req.Action)
	if err != nil {
		return nil, err
	}

	res, err := s.appCtx.Matching.Swipe(ctx, caller.UserID, req.TargetUserID, action, matching.Metadata{
		Source:   req.Source,
		Platform: req.Platform,
	})
	if err != nil {
		return nil, err
	}
	return &SwipeResponse{SwipeID: res.SwipeID, IsMatch: res.IsMatch, ConnectionID: res.ConnectionID}, nil
}

// ListLikedYou returns members who liked the caller, newest first,
// excluding anyone the caller passed.
func (s *Service) ListLikedYou(ctx context.Context, req *ListLikedYouRequest) (*ListLikedYouResponse, error) {
	caller, err := server.Caller(ctx)
	if err != nil {
		return nil, err
	}
	swipes, next, err := s.appCtx.Matching.Likers(ctx, caller.UserID, pagination.Page{Token: req.PaginationToken, Limit: req.Limit})
	if err != nil {
		return nil, err
	}
	return likers(swipes, next), nil
}

// ListNewLikedYou returns likes the caller has not answered yet.
func (s *Service) ListNewLikedYou(ctx context.Context, req *ListLikedYouRequest) (*ListLikedYouResponse, error) {
	caller, err := server.Caller(ctx)
	if err != nil {
		return nil, err
	}
	swipes, next, err := s.appCtx.Matching.NewLikers(ctx, caller.UserID, pagination.Page{Token: req.PaginationToken, Limit: req.Limit})
	if err != nil {
		return nil, err
	}
	return likers(swipes, next), nil
}

// CountLikedYou returns how many members liked the caller. Served from
// Redis when warm.
func (s *Service) CountLikedYou(ctx context.Context, _ *emptypb.Empty) (*CountLikedYouResponse, error) {
	caller, err := server.Caller(ctx)
	if err != nil {
		return nil, err
	}
	n, err := s.appCtx.Matching.CountLikers(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}
	return &CountLikedYouResponse{Count: n}, nil
}

// GetQuota reports today's like budget.
func (s *Service) GetQuota(ctx context.Context, _ *emptypb.Empty) (*QuotaResponse, error) {
	caller, err := server.Caller(ctx)
	if err != nil {
		return nil, err
	}
	q, err := s.appCtx.Matching.QuotaStats(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}
	return &QuotaResponse{Day: q.Day, Used: q.Used, Cap: q.Cap, Remaining: q.Remaining}, nil
}

func likers(swipes []db.Swipe, next string) *ListLikedYouResponse {
	resp := &ListLikedYouResponse{Likers: make([]Liker, 0, len(swipes)), NextPaginationToken: next}
	for _, sw := range swipes {
		resp.Likers = append(resp.Likers, Liker{
			ActorID:       sw.ActorID,
			Action:        sw.Action,
			UnixTimestamp: sw.CreatedAt.UnixMilli(),
		})
	}
	return resp
}
