package realtime

import (
	"context"

	"github.com/oggyb/shaadimantra/internal/chat"
)

var _ chat.Notifier = (*Hub)(nil)

// MessageCreated implements chat.Notifier.
func (h *Hub) MessageCreated(ctx context.Context, msg chat.Message, origin string) {
	evt, err := NewEvent(EventMessageNew, msg.ConnectionID, msg)
	if err != nil {
		h.log.Error("encode message.new", "err", err)
		return
	}
	if err := h.Publish(ctx, msg.ConnectionID, evt, origin); err != nil {
		h.log.Warn("publish message.new", "connection_id", msg.ConnectionID, "err", err)
	}
}

// StatusChanged implements chat.Notifier.
func (h *Hub) StatusChanged(ctx context.Context, connectionID uint64, ids []string, status chat.Status, origin string) {
	evt, err := NewEvent(EventMessageStatus, connectionID, StatusPayload{IDs: ids, Status: status})
	if err != nil {
		h.log.Error("encode message.status", "err", err)
		return
	}
	if err := h.Publish(ctx, connectionID, evt, origin); err != nil {
		h.log.Warn("publish message.status", "connection_id", connectionID, "err", err)
	}
}
