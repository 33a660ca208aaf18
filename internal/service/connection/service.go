package connection

import (
	"context"
	"time"

	"github.com/oggyb/shaadimantra/internal/app"
	"github.com/oggyb/shaadimantra/internal/db"
	"github.com/oggyb/shaadimantra/internal/matching"
	"github.com/oggyb/shaadimantra/internal/server"
	"github.com/oggyb/shaadimantra/internal/utils/pagination"
)

const ServiceName = "shaadimantra.v1.ConnectionService"

type ListConnectionsRequest struct {
	Status          string `json:"status" validate:"omitempty,oneof=active unmatched blocked"`
	PaginationToken string `json:"pagination_token"`
	Limit           int    `json:"limit" validate:"gte=0"`
}

type ListConnectionsResponse struct {
	Connections         []Connection `json:"connections"`
	NextPaginationToken string       `json:"next_pagination_token,omitempty"`
}

type GetConnectionRequest struct {
	ConnectionID uint64 `json:"connection_id" validate:"required"`
}

type UpdateStatusRequest struct {
	ConnectionID uint64 `json:"connection_id" validate:"required"`
	Status       string `json:"status" validate:"required,oneof=unmatched blocked"`
}

type UnmatchRequest struct {
	ConnectionID uint64 `json:"connection_id"`
	TargetUserID uint64 `json:"target_user_id" validate:"required_without=ConnectionID"`
}

type UnmatchResponse struct {
	ConnectionID  uint64 `json:"connection_id,omitempty"`
	StatusChanged bool   `json:"status_changed"`
	SwipesRemoved int64  `json:"swipes_removed"`
	LikesRefunded int    `json:"likes_refunded"`
}

// Connection is a match as seen by one of its two members.
type Connection struct {
	ID          uint64    `json:"id"`
	OtherUserID uint64    `json:"other_user_id"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func view(c *db.Connection, viewerID uint64) Connection {
	return Connection{
		ID:          c.ID,
		OtherUserID: c.Other(viewerID),
		Status:      c.Status,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

// Service exposes the connection registry.
type Service struct {
	appCtx *app.AppContext
}

func NewConnectionService(appCtx *app.AppContext) *Service {
	return &Service{appCtx: appCtx}
}

// ListConnections pages through the caller's connections, active ones by default.
func (s *Service) ListConnections(ctx context.Context, req *ListConnectionsRequest) (*ListConnectionsResponse, error) {
	caller, err := server.Caller(ctx)
	if err != nil {
		return nil, err
	}
	conns, next, err := s.appCtx.Matching.Registry().List(ctx, caller.UserID, req.Status,
		pagination.Page{Token: req.PaginationToken, Limit: req.Limit})
	if err != nil {
		return nil, err
	}

	resp := &ListConnectionsResponse{Connections: make([]Connection, 0, len(conns)), NextPaginationToken: next}
	for i := range conns {
		resp.Connections = append(resp.Connections, view(&conns[i], caller.UserID))
	}
	return resp, nil
}

func (s *Service) GetConnection(ctx context.Context, req *GetConnectionRequest) (*Connection, error) {
	caller, err := server.Caller(ctx)
	if err != nil {
		return nil, err
	}
	conn, err := s.appCtx.Matching.Registry().Get(ctx, caller.UserID, req.ConnectionID)
	if err != nil {
		return nil, err
	}
	out := view(conn, caller.UserID)
	return &out, nil
}

// UpdateStatus blocks a connection, or releases a block the caller set.
// Moving to unmatched runs the full unmatch cleanup.
func (s *Service) UpdateStatus(ctx context.Context, req *UpdateStatusRequest) (*Connection, error) {
	caller, err := server.Caller(ctx)
	if err != nil {
		return nil, err
	}
	conn, err := s.appCtx.Matching.UpdateStatus(ctx, caller.UserID, req.ConnectionID, req.Status)
	if err != nil {
		return nil, err
	}
	out := view(conn, caller.UserID)
	return &out, nil
}

// Unmatch ends a connection, by id or by the other member's id, and
// removes the pair's swipes so both may rediscover each other.
func (s *Service) Unmatch(ctx context.Context, req *UnmatchRequest) (*UnmatchResponse, error) {
	caller, err := server.Caller(ctx)
	if err != nil {
		return nil, err
	}
	res, err := s.appCtx.Matching.Unmatch(ctx, caller.UserID, matching.UnmatchTarget{
		ConnectionID: req.ConnectionID,
		TargetUserID: req.TargetUserID,
	})
	if err != nil {
		return nil, err
	}
	return &UnmatchResponse{
		ConnectionID:  res.ConnectionID,
		StatusChanged: res.StatusChanged,
		SwipesRemoved: res.SwipesRemoved,
		LikesRefunded: res.LikesRefunded,
	}, nil
}
