package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	wmmessage "github.com/ThreeDotsLabs/watermill/message"
	"github.com/webitel/chat-delivery-service/config"
	"github.com/webitel/chat-delivery-service/internal/domain/event"
	"github.com/webitel/chat-delivery-service/internal/domain/group"
	"github.com/webitel/chat-delivery-service/internal/domain/hub"
	"github.com/webitel/chat-delivery-service/internal/domain/model"
	"github.com/webitel/chat-delivery-service/internal/domain/registry"
	"github.com/webitel/chat-delivery-service/internal/service"
)

// memStore is an in-memory MessageStore+RoomStore mirroring the badger
// adapter's stamping behavior.
type memStore struct {
	mu      sync.Mutex
	nextID  int64
	byToken map[uuid.UUID]*model.Message
	byRoom  map[int64][]*model.Message
	rooms   map[int64]*model.Room
}

func newMemStore(rooms ...*model.Room) *memStore {
	s := &memStore{
		byToken: make(map[uuid.UUID]*model.Message),
		byRoom:  make(map[int64][]*model.Message),
		rooms:   make(map[int64]*model.Room),
	}
	for _, r := range rooms {
		s.rooms[r.ID] = r
	}
	return s
}

func (s *memStore) Save(_ context.Context, msg *model.Message) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ID == 0 {
		s.nextID++
		msg.ID = s.nextID
	}
	if msg.Token == uuid.Nil {
		msg.Token = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	s.byToken[msg.Token] = msg
	s.byRoom[msg.RoomID] = append(s.byRoom[msg.RoomID], msg)
	return msg, nil
}

func (s *memStore) FindByToken(_ context.Context, token uuid.UUID) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.byToken[token]
	if !ok {
		return nil, service.ErrMessageNotFound
	}
	return msg, nil
}

func (s *memStore) ListRecent(_ context.Context, roomID int64, limit int) ([]*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.byRoom[roomID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]*model.Message(nil), msgs...), nil
}

func (s *memStore) FindRoom(_ context.Context, roomID int64) (*model.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return nil, service.ErrRoomNotFound
	}
	return room, nil
}

func (s *memStore) CurrentRole(context.Context, int64, int64) (string, error) {
	return "member", nil
}

func (s *memStore) savedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byToken)
}

// recordingEvents captures outbound bus events instead of publishing them.
type recordingEvents struct {
	mu        sync.Mutex
	published []event.Outbound
}

func (r *recordingEvents) Publish(_ context.Context, ev event.Outbound) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, ev)
	return nil
}

func (r *recordingEvents) Publisher() wmmessage.Publisher { return nil }

func (r *recordingEvents) snapshot() []event.Outbound {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.Outbound(nil), r.published...)
}

func newTestGateway(t *testing.T, store *memStore) (*Gateway, *hub.Hub, *recordingEvents) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := hub.New()
	events := &recordingEvents{}

	sender := service.NewSender(
		service.NewDelivery(h, logger),
		service.NewRoleResolver(store, logger),
		logger,
	)
	reg := registry.New()
	reg.Seal()

	cfg := new(config.Config)
	cfg.Service.NodeID = "node-a"
	cfg.History.FetchLimit = 50

	gw := NewGateway(cfg, logger, h, store, store,
		service.NewAssembler(store, logger),
		service.NewDispatcher(reg, store, sender, logger),
		sender, events, NewHeaderIdentity())
	return gw, h, events
}

func newTestServer(t *testing.T, gw *Gateway) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Get("/ws/rooms/{roomID}", gw.ServeHTTP)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dialSession(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	c, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func readFrame(t *testing.T, c *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := c.ReadMessage()
	require.NoError(t, err)
	decoded := make(map[string]any)
	require.NoError(t, json.Unmarshal(data, &decoded))
	return decoded
}

func sendFrame(t *testing.T, c *websocket.Conn, payload string) {
	t.Helper()
	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(payload)))
}

func TestGateway_ValidationErrorKeepsSessionOpen(t *testing.T) {
	req := require.New(t)
	store := newMemStore(&model.Room{ID: 42, Active: true})
	gw, _, events := newTestGateway(t, store)
	c := dialSession(t, newTestServer(t, gw), "/ws/rooms/42?user_id=9")

	// Empty input is rejected with an error frame, not a hangup.
	sendFrame(t, c, `{"message":{}}`)
	decoded := readFrame(t, c)
	req.Equal("error", decoded["type"])
	req.Equal("neither text nor content reference given", decoded["error"])

	// The same socket still carries a valid message end to end.
	sendFrame(t, c, `{"message":{"text":"hello"}}`)
	decoded = readFrame(t, c)
	req.Equal("messages", decoded["type"])
	msgs := decoded["messages"].([]any)
	req.Len(msgs, 1)
	req.Equal("hello", msgs[0].(map[string]any)["text"])

	req.Equal(1, store.savedCount(), "rejected input must not be persisted")
	req.Eventually(func() bool { return len(events.snapshot()) == 1 },
		time.Second, 10*time.Millisecond, "stored message announced to peers")
	created := events.snapshot()[0].(*event.MessageCreatedV1)
	req.Equal("node-a", created.NodeID)
	req.Equal(int64(42), created.RoomID)
}

func TestGateway_PingAnsweredWithPong(t *testing.T) {
	req := require.New(t)
	store := newMemStore(&model.Room{ID: 42, Active: true})
	gw, _, _ := newTestGateway(t, store)
	c := dialSession(t, newTestServer(t, gw), "/ws/rooms/42?user_id=9")

	sendFrame(t, c, `{"type":"ping","identifier":"kp-7"}`)

	decoded := readFrame(t, c)
	req.Equal("pong", decoded["type"])
	req.Equal("kp-7", decoded["identifier"])
}

func TestGateway_SessionJoinsThreeGroupsAndLeavesOnClose(t *testing.T) {
	req := require.New(t)
	store := newMemStore(&model.Room{ID: 42, Active: true})
	gw, h, _ := newTestGateway(t, store)
	c := dialSession(t, newTestServer(t, gw), "/ws/rooms/42?user_id=9&handler_version=2")

	joined := group.ForSession(42, 9, 2)
	req.Eventually(func() bool {
		for _, g := range joined {
			if len(h.Members(g)) != 1 {
				return false
			}
		}
		return true
	}, time.Second, 10*time.Millisecond, "session joins all three addressing groups")

	req.NoError(c.Close())
	req.Eventually(func() bool {
		for _, g := range joined {
			if len(h.Members(g)) != 0 {
				return false
			}
		}
		return true
	}, time.Second, 10*time.Millisecond, "disconnect leaves every joined group")
}

func TestGateway_UnknownRoomRejectedBeforeUpgrade(t *testing.T) {
	req := require.New(t)
	store := newMemStore(&model.Room{ID: 42, Active: true})
	gw, _, _ := newTestGateway(t, store)
	srv := newTestServer(t, gw)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/rooms/99?user_id=9"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	req.ErrorIs(err, websocket.ErrBadHandshake)
	req.Equal(http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestGateway_MissingIdentityRejected(t *testing.T) {
	req := require.New(t)
	store := newMemStore(&model.Room{ID: 42, Active: true})
	gw, _, _ := newTestGateway(t, store)
	srv := newTestServer(t, gw)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/rooms/42"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	req.ErrorIs(err, websocket.ErrBadHandshake)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestGateway_HistoryPushedOnConnect(t *testing.T) {
	req := require.New(t)
	room := &model.Room{ID: 42, Active: true}
	store := newMemStore(room)
	for _, text := range []string{"first", "second"} {
		_, err := store.Save(context.Background(), &model.Message{
			Type: model.TypeText, RoomID: 42, Text: text, Source: model.UserSource(5),
		})
		req.NoError(err)
	}
	gw, _, _ := newTestGateway(t, store)
	c := dialSession(t, newTestServer(t, gw), "/ws/rooms/42?user_id=9")

	decoded := readFrame(t, c)
	req.Equal("messages", decoded["type"])
	msgs := decoded["messages"].([]any)
	req.Len(msgs, 2)
	req.Equal("first", msgs[0].(map[string]any)["text"])
	req.Equal("second", msgs[1].(map[string]any)["text"])
}

func TestGateway_InactiveRoomGetsCloseFrame(t *testing.T) {
	req := require.New(t)
	store := newMemStore(&model.Room{ID: 42, Active: false})
	gw, _, _ := newTestGateway(t, store)
	c := dialSession(t, newTestServer(t, gw), "/ws/rooms/42?user_id=9")

	decoded := readFrame(t, c)
	req.Equal("close", decoded["type"])
}

func TestGateway_BackToBackMessagesKeepSendOrder(t *testing.T) {
	req := require.New(t)
	store := newMemStore(&model.Room{ID: 42, Active: true})
	gw, _, _ := newTestGateway(t, store)
	c := dialSession(t, newTestServer(t, gw), "/ws/rooms/42?user_id=9")

	const n = 5
	for i := range n {
		sendFrame(t, c, fmt.Sprintf(`{"message":{"text":"msg-%d"}}`, i))
	}

	for i := range n {
		decoded := readFrame(t, c)
		req.Equal("messages", decoded["type"])
		msgs := decoded["messages"].([]any)
		req.Len(msgs, 1)
		req.Equal(fmt.Sprintf("msg-%d", i), msgs[0].(map[string]any)["text"],
			"one session's messages deliver in the order they were sent")
	}
}
