package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/webitel/chat-delivery-service/internal/domain/group"
	"github.com/webitel/chat-delivery-service/internal/domain/hub"
	"github.com/webitel/chat-delivery-service/internal/domain/model"
)

// noRoleStore answers every role lookup with none.
type noRoleStore struct{}

func (noRoleStore) FindRoom(context.Context, int64) (*model.Room, error) {
	return nil, ErrRoomNotFound
}
func (noRoleStore) CurrentRole(context.Context, int64, int64) (string, error) {
	return "", nil
}

func newTestSender(t *testing.T, h *hub.Hub) *Sender {
	t.Helper()
	logger := slog.Default()
	delivery := NewDelivery(h, logger)
	roles := NewRoleResolver(noRoleStore{}, logger)
	return NewSender(delivery, roles, logger)
}

func drainOne(t *testing.T, c hub.Conn) map[string]any {
	t.Helper()
	select {
	case payload := <-c.Recv():
		var decoded map[string]any
		require.NoError(t, json.Unmarshal(payload, &decoded))
		return decoded
	default:
		t.Fatal("expected a frame in the mailbox")
		return nil
	}
}

func TestDeliverMessages_BroadcastGoesToRoomGroup(t *testing.T) {
	req := require.New(t)
	h := hub.New()
	sender := newTestSender(t, h)

	// Two sessions in room 42, one of them also in user-scoped groups.
	a := h.NewConn()
	b := h.NewConn()
	for _, g := range group.ForSession(42, 7, 1) {
		h.Join(g, a)
	}
	h.Join(group.Room(42), b)

	room := &model.Room{ID: 42, Type: "chat", Active: true}
	msg := &model.Message{Type: model.TypeText, RoomID: 42, Text: "hi", Source: model.UserSource(7)}

	req.NoError(sender.DeliverMessages(context.Background(), room, []*model.Message{msg}, MustAttempt))

	for _, c := range []hub.Conn{a, b} {
		decoded := drainOne(t, c)
		req.Equal("messages", decoded["type"])
		msgs := decoded["messages"].([]any)
		req.Len(msgs, 1)
		wire := msgs[0].(map[string]any)
		req.Equal("text", wire["type"])
		req.Equal("hi", wire["text"])
	}
}

func TestDeliverMessages_TargetedGoesOnlyToMostSpecificGroup(t *testing.T) {
	req := require.New(t)
	h := hub.New()
	sender := newTestSender(t, h)

	// user 9 connected with handler version 2, user 7 just room-wide.
	target := h.NewConn()
	for _, g := range group.ForSession(42, 9, 2) {
		h.Join(g, target)
	}
	bystander := h.NewConn()
	h.Join(group.Room(42), bystander)

	targetUser := int64(9)
	version := 2
	msg := &model.Message{
		Type:                 model.TypeText,
		RoomID:               42,
		Text:                 "for you",
		Source:               model.BotSource("shop-bot"),
		TargetUserID:         &targetUser,
		TargetHandlerVersion: &version,
	}
	room := &model.Room{ID: 42, Type: "chat", Active: true}

	req.NoError(sender.DeliverMessages(context.Background(), room, []*model.Message{msg}, MustAttempt))

	decoded := drainOne(t, target)
	req.Equal("messages", decoded["type"])

	select {
	case <-bystander.Recv():
		t.Fatal("room-wide bystander must not receive a targeted message")
	default:
	}
}

func TestDeliverMessages_InactiveRoomSkipsDelivery(t *testing.T) {
	req := require.New(t)
	h := hub.New()
	sender := newTestSender(t, h)

	c := h.NewConn()
	h.Join(group.Room(42), c)

	room := &model.Room{ID: 42, Active: false}
	msg := &model.Message{Type: model.TypeText, RoomID: 42, Text: "hi", Source: model.UserSource(7)}

	req.NoError(sender.DeliverMessages(context.Background(), room, []*model.Message{msg}, MustAttempt))

	select {
	case <-c.Recv():
		t.Fatal("inactive room must not deliver")
	default:
	}
}

func TestSendStatusUpdate_BestEffortShape(t *testing.T) {
	req := require.New(t)
	h := hub.New()
	sender := newTestSender(t, h)

	c := h.NewConn()
	h.Join(group.Room(42), c)

	req.NoError(sender.SendStatusUpdate(context.Background(), 42, true, true))

	decoded := drainOne(t, c)
	req.Equal("status_update", decoded["type"])
	status := decoded["status"].(map[string]any)
	req.Equal(true, status["active"])
	req.Equal(true, status["typing"])
}

func TestSendErrorAndPong_DirectToSession(t *testing.T) {
	req := require.New(t)
	h := hub.New()
	sender := newTestSender(t, h)

	c := h.NewConn()
	sender.SendError(c, "bad input")
	decoded := drainOne(t, c)
	req.Equal("error", decoded["type"])
	req.Equal("bad input", decoded["error"])

	sender.SendPong(c, "kp-1")
	decoded = drainOne(t, c)
	req.Equal("pong", decoded["type"])
	req.Equal("kp-1", decoded["identifier"])

	sender.SendClose(c)
	decoded = drainOne(t, c)
	req.Equal("close", decoded["type"])
}
