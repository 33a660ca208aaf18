// Package messages exposes chat threads over gRPC. Live delivery goes
// through the websocket hub; these calls cover clients that poll.
package messages

import (
	"context"

	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/oggyb/shaadimantra/internal/app"
	"github.com/oggyb/shaadimantra/internal/chat"
	"github.com/oggyb/shaadimantra/internal/server"
	"github.com/oggyb/shaadimantra/internal/utils/pagination"
)

const ServiceName = "shaadimantra.v1.ChatService"

type SendMessageRequest struct {
	ConnectionID uint64 `json:"connection_id" validate:"required"`
	Text         string `json:"text" validate:"required"`
	MessageID    string `json:"message_id" validate:"omitempty,uuid"`
}

type GetMessagesRequest struct {
	ConnectionID    uint64 `json:"connection_id" validate:"required"`
	PaginationToken string `json:"pagination_token"`
	Limit           int    `json:"limit" validate:"gte=0"`
}

type GetMessagesResponse struct {
	Messages            []chat.Message `json:"messages"`
	NextPaginationToken string         `json:"next_pagination_token,omitempty"`
}

type MarkReadRequest struct {
	ConnectionID uint64 `json:"connection_id" validate:"required"`
}

type MarkReadResponse struct {
	Updated int `json:"updated"`
}

type MarkDeliveredRequest struct {
	ConnectionID uint64 `json:"connection_id" validate:"required"`
	MessageID    string `json:"message_id" validate:"required"`
}

type Service struct {
	appCtx *app.AppContext
}

func NewChatService(appCtx *app.AppContext) *Service {
	return &Service{appCtx: appCtx}
}

// SendMessage appends to the thread and fans the message out to every
// live client of the connection.
func (s *Service) SendMessage(ctx context.Context, req *SendMessageRequest) (*chat.Message, error) {
	caller, err := server.Caller(ctx)
	if err != nil {
		return nil, err
	}
	return s.appCtx.Chat.Send(ctx, caller.UserID, req.ConnectionID, req.Text, chat.SendOptions{MessageID: req.MessageID})
}

// GetMessages pages through a thread, oldest first.
func (s *Service) GetMessages(ctx context.Context, req *GetMessagesRequest) (*GetMessagesResponse, error) {
	caller, err := server.Caller(ctx)
	if err != nil {
		return nil, err
	}
	page, err := s.appCtx.Chat.History(ctx, caller.UserID, req.ConnectionID,
		pagination.Page{Token: req.PaginationToken, Limit: req.Limit})
	if err != nil {
		return nil, err
	}
	msgs := page.Messages
	if msgs == nil {
		msgs = []chat.Message{}
	}
	return &GetMessagesResponse{Messages: msgs, NextPaginationToken: page.Next}, nil
}

func (s *Service) MarkRead(ctx context.Context, req *MarkReadRequest) (*MarkReadResponse, error) {
	caller, err := server.Caller(ctx)
	if err != nil {
		return nil, err
	}
	n, err := s.appCtx.Chat.MarkRead(ctx, caller.UserID, req.ConnectionID, "")
	if err != nil {
		return nil, err
	}
	return &MarkReadResponse{Updated: n}, nil
}

func (s *Service) MarkDelivered(ctx context.Context, req *MarkDeliveredRequest) (*emptypb.Empty, error) {
	caller, err := server.Caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.appCtx.Chat.MarkDelivered(ctx, caller.UserID, req.ConnectionID, req.MessageID, ""); err != nil {
		return nil, err
	}
	return &emptypb.Empty{}, nil
}
