package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/webitel/chat-delivery-service/internal/domain/group"
	"github.com/webitel/chat-delivery-service/internal/domain/hub"
	"github.com/webitel/chat-delivery-service/internal/domain/model"
	"github.com/webitel/chat-delivery-service/internal/domain/registry"
)

type scriptedHandler struct {
	calls     int
	followups []*model.Message
	err       error
}

func (h *scriptedHandler) Handle(context.Context, *model.Message, *registry.Context) ([]*model.Message, error) {
	h.calls++
	return h.followups, h.err
}

func newTestDispatcher(t *testing.T, reg *registry.Registry, store MessageStore) (*Dispatcher, *hub.Hub) {
	t.Helper()
	logger := slog.Default()
	h := hub.New()
	sender := NewSender(NewDelivery(h, logger), NewRoleResolver(noRoleStore{}, logger), logger)
	return NewDispatcher(reg, store, sender, logger), h
}

func codedMessage(code string) *model.Message {
	v := 1
	return &model.Message{
		Type:                 model.TypePostback,
		RoomID:               42,
		Code:                 code,
		Token:                uuid.New(),
		ClientHandlerVersion: &v,
		Source:               model.UserSource(7),
	}
}

func TestDispatch_UnknownCodeIsInvalidActionCode(t *testing.T) {
	req := require.New(t)
	reg := registry.New()
	reg.Seal()
	d, _ := newTestDispatcher(t, reg, newFakeStore())

	room := &model.Room{ID: 42, Active: true}
	err := d.Dispatch(context.Background(), room, codedMessage("ghost$do"))

	var invalid *model.InvalidActionCodeError
	req.ErrorAs(err, &invalid)
	req.Equal("ghost$do", invalid.Code)
}

func TestDispatch_SameTokenTwiceIsANoOp(t *testing.T) {
	req := require.New(t)
	reg := registry.New()
	h := &scriptedHandler{}
	req.NoError(reg.Register("shop", 1, h))
	reg.Seal()
	d, _ := newTestDispatcher(t, reg, newFakeStore())

	room := &model.Room{ID: 42, Active: true}
	msg := codedMessage("shop$buy")

	req.NoError(d.Dispatch(context.Background(), room, msg))
	err := d.Dispatch(context.Background(), room, msg)
	req.ErrorIs(err, model.ErrDoubleExecution, "duplicate surfaces the sentinel callers treat as success")
	req.Equal(1, h.calls, "handler must not re-process the same token")
}

func TestDispatch_FailedAttemptStaysRetryable(t *testing.T) {
	req := require.New(t)
	reg := registry.New()
	h := &scriptedHandler{err: errors.New("transient downstream failure")}
	req.NoError(reg.Register("shop", 1, h))
	reg.Seal()
	d, _ := newTestDispatcher(t, reg, newFakeStore())

	room := &model.Room{ID: 42, Active: true}
	msg := codedMessage("shop$buy")

	var he *model.HandlingError
	req.ErrorAs(d.Dispatch(context.Background(), room, msg), &he)

	// The first attempt never completed, so a redelivery runs the handler
	// again instead of being swallowed by the duplicate guard.
	h.err = nil
	req.NoError(d.Dispatch(context.Background(), room, msg))
	req.Equal(2, h.calls)

	req.ErrorIs(d.Dispatch(context.Background(), room, msg), model.ErrDoubleExecution)
	req.Equal(2, h.calls)
}

func TestDispatch_HandlerErrorWrapsCause(t *testing.T) {
	req := require.New(t)
	reg := registry.New()
	cause := errors.New("downstream exploded")
	req.NoError(reg.Register("shop", 1, &scriptedHandler{err: cause}))
	reg.Seal()
	d, _ := newTestDispatcher(t, reg, newFakeStore())

	err := d.Dispatch(context.Background(), &model.Room{ID: 42, Active: true}, codedMessage("shop$buy"))

	var he *model.HandlingError
	req.ErrorAs(err, &he)
	req.ErrorIs(he, cause)
	req.Equal(model.DefaultUserMessage, he.UserText())
}

func TestDispatch_FollowUpsArePersistedAndDelivered(t *testing.T) {
	req := require.New(t)
	reg := registry.New()
	followup := &model.Message{Type: model.TypeText, RoomID: 42, Text: "next step", Source: model.BotSource("shop-bot")}
	req.NoError(reg.Register("shop", 1, &scriptedHandler{followups: []*model.Message{followup}}))
	reg.Seal()

	store := newFakeStore()
	d, h := newTestDispatcher(t, reg, store)

	listener := h.NewConn()
	h.Join(group.Room(42), listener)

	room := &model.Room{ID: 42, Active: true}
	req.NoError(d.Dispatch(context.Background(), room, codedMessage("shop$buy")))

	req.Len(store.saved, 1, "follow-up was persisted")
	select {
	case <-listener.Recv():
	default:
		t.Fatal("follow-up was not delivered to the room")
	}
}

func TestDispatch_DirectMessageRoutesViaRoomBinding(t *testing.T) {
	req := require.New(t)
	reg := registry.New()
	h := &scriptedHandler{}
	req.NoError(reg.Register("chat", 1, h))
	reg.Seal()
	d, _ := newTestDispatcher(t, reg, newFakeStore())

	v := 1
	direct := &model.Message{
		Type:                 model.TypeText,
		RoomID:               42,
		Text:                 "hi",
		HandlerName:          "chat",
		Token:                uuid.New(),
		ClientHandlerVersion: &v,
		Source:               model.UserSource(7),
	}
	req.NoError(d.Dispatch(context.Background(), &model.Room{ID: 42, Active: true}, direct))
	req.Equal(1, h.calls)
}

func TestDispatch_NoBindingIsANoOp(t *testing.T) {
	reg := registry.New()
	reg.Seal()
	d, _ := newTestDispatcher(t, reg, newFakeStore())

	plain := &model.Message{Type: model.TypeText, RoomID: 42, Text: "hi", Token: uuid.New()}
	require.NoError(t, d.Dispatch(context.Background(), &model.Room{ID: 42, Active: true}, plain))
}
