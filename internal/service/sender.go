package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/lo"

	"github.com/webitel/chat-delivery-service/internal/domain/frame"
	"github.com/webitel/chat-delivery-service/internal/domain/group"
	"github.com/webitel/chat-delivery-service/internal/domain/hub"
	"github.com/webitel/chat-delivery-service/internal/domain/model"
)

// Sender assembles client-facing frames and hands them to the delivery
// channel, picking the target group per message.
type Sender struct {
	delivery *Delivery
	roles    *RoleResolver
	logger   *slog.Logger
}

func NewSender(delivery *Delivery, roles *RoleResolver, logger *slog.Logger) *Sender {
	return &Sender{
		delivery: delivery,
		roles:    roles,
		logger:   logger,
	}
}

// DeliverMessages fans a batch out: untargeted messages go to the room-wide
// group in one frame, targeted ones individually to their most specific
// group. Live delivery is skipped entirely for inactive rooms.
func (s *Sender) DeliverMessages(ctx context.Context, room *model.Room, msgs []*model.Message, mode Mode) error {
	if !room.Active {
		s.logger.Debug("room inactive, skipping live delivery", "room_id", room.ID)
		return nil
	}
	if len(msgs) == 0 {
		return nil
	}

	roles := s.roles.RolesFor(ctx, room.ID, msgs)

	broadcast := lo.Filter(msgs, func(m *model.Message, _ int) bool { return !m.Targeted() })
	targeted := lo.Filter(msgs, func(m *model.Message, _ int) bool { return m.Targeted() })

	if len(broadcast) > 0 {
		payload, err := frame.EncodeMessages(broadcast, roles)
		if err != nil {
			return fmt.Errorf("sender: encode broadcast frame: %w", err)
		}
		if err := s.delivery.Send(ctx, group.Room(room.ID), payload, mode); err != nil {
			return err
		}
	}

	for _, m := range targeted {
		payload, err := frame.EncodeMessages([]*model.Message{m}, roles)
		if err != nil {
			return fmt.Errorf("sender: encode targeted frame: %w", err)
		}
		if err := s.delivery.Send(ctx, group.ForMessage(m), payload, mode); err != nil {
			return err
		}
	}
	return nil
}

// FetchToConn pushes history to a single session. Fetch is session-scoped,
// not user-scoped, so it bypasses the groups and writes to the one mailbox;
// a saturated mailbox just drops the batch.
func (s *Sender) FetchToConn(ctx context.Context, room *model.Room, msgs []*model.Message, conn hub.Conn) error {
	roles := s.roles.RolesFor(ctx, room.ID, msgs)
	payload, err := frame.EncodeMessages(msgs, roles)
	if err != nil {
		return fmt.Errorf("sender: encode fetch frame: %w", err)
	}
	_ = conn.TrySend(payload)
	return nil
}

// EncodeHistory encodes a history batch as one "messages" frame without
// delivering it anywhere. Used by the HTTP fetch surface.
func (s *Sender) EncodeHistory(ctx context.Context, room *model.Room, msgs []*model.Message) ([]byte, error) {
	roles := s.roles.RolesFor(ctx, room.ID, msgs)
	return frame.EncodeMessages(msgs, roles)
}

// SendRoomStates targets one user when targetUserID is set, otherwise the
// whole room.
func (s *Sender) SendRoomStates(ctx context.Context, room *model.Room, states any, targetUserID *int64) error {
	payload, err := frame.EncodeRoomStates(states)
	if err != nil {
		return fmt.Errorf("sender: encode room states: %w", err)
	}
	g := group.Room(room.ID)
	if targetUserID != nil {
		g = group.RoomUser(room.ID, *targetUserID)
	}
	return s.delivery.Send(ctx, g, payload, BestEffort)
}

// SendStatusUpdate broadcasts a presence/typing signal. Ephemeral by nature,
// so always best effort.
func (s *Sender) SendStatusUpdate(ctx context.Context, roomID int64, active, typing bool) error {
	payload, err := frame.EncodeStatusUpdate(active, typing)
	if err != nil {
		return fmt.Errorf("sender: encode status update: %w", err)
	}
	return s.delivery.Send(ctx, group.Room(roomID), payload, BestEffort)
}

// SendToast writes a toast straight to one session's mailbox.
func (s *Sender) SendToast(conn hub.Conn, text string) {
	payload, err := frame.EncodeToast(text)
	if err != nil {
		return
	}
	_ = conn.TrySend(payload)
}

// SendError reports a recoverable error to the originating session. The
// connection stays open.
func (s *Sender) SendError(conn hub.Conn, text string) {
	payload, err := frame.EncodeError(text)
	if err != nil {
		return
	}
	_ = conn.TrySend(payload)
}

func (s *Sender) SendPing(conn hub.Conn, identifier string) {
	if payload, err := frame.EncodePing(identifier); err == nil {
		_ = conn.TrySend(payload)
	}
}

// SendClose signals the end of the conversation to one session.
func (s *Sender) SendClose(conn hub.Conn) {
	if payload, err := frame.EncodeClose(); err == nil {
		_ = conn.TrySend(payload)
	}
}

func (s *Sender) SendPong(conn hub.Conn, identifier string) {
	if payload, err := frame.EncodePong(identifier); err == nil {
		_ = conn.TrySend(payload)
	}
}
