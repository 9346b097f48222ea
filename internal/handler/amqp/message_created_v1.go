package amqp

import (
	"context"
	"errors"
	"fmt"

	"github.com/webitel/chat-delivery-service/internal/domain/event"
	"github.com/webitel/chat-delivery-service/internal/domain/model"
	"github.com/webitel/chat-delivery-service/internal/service"
)

// OnMessageCreatedV1 delivers a message stored on a peer node to the
// sessions connected to this one.
func (h *BusHandler) OnMessageCreatedV1(ctx context.Context, ev *event.MessageCreatedV1) error {
	// The originating node already delivered to its own hub synchronously.
	if ev.NodeID == h.nodeID {
		return nil
	}
	if ev.Message == nil {
		h.logger.Warn("dropping created event without message", "event_id", ev.ID)
		return nil
	}

	room, err := h.rooms.FindRoom(ctx, ev.RoomID)
	if err != nil {
		if errors.Is(err, service.ErrRoomNotFound) {
			// This node has never seen the room; nobody here is joined.
			return nil
		}
		return fmt.Errorf("load room %d: %w", ev.RoomID, err)
	}

	if err := h.sender.DeliverMessages(ctx, room, []*model.Message{ev.Message}, service.MustAttempt); err != nil {
		return fmt.Errorf("deliver peer message: %w", err)
	}
	return nil
}
