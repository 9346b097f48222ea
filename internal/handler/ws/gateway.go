package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/webitel/chat-delivery-service/config"
	"github.com/webitel/chat-delivery-service/internal/adapter/pubsub"
	"github.com/webitel/chat-delivery-service/internal/domain/event"
	"github.com/webitel/chat-delivery-service/internal/domain/frame"
	"github.com/webitel/chat-delivery-service/internal/domain/group"
	"github.com/webitel/chat-delivery-service/internal/domain/hub"
	"github.com/webitel/chat-delivery-service/internal/domain/model"
	"github.com/webitel/chat-delivery-service/internal/service"
)

// sessionInboxSize bounds per-session in-flight frames awaiting the worker.
const sessionInboxSize = 16

// Gateway terminates client websockets. One upgraded socket is one session:
// it joins the three addressing groups of its (room, user, handler version)
// tuple, receives the recent history, and from then on pumps frames both
// ways until either side hangs up.
type Gateway struct {
	logger     *slog.Logger
	hub        hub.Hubber
	rooms      service.RoomStore
	store      service.MessageStore
	assembler  *service.Assembler
	dispatcher *service.Dispatcher
	sender     *service.Sender
	events     pubsub.EventDispatcher
	identity   service.Identity

	nodeID     string
	fetchLimit int
	upgrader   websocket.Upgrader
}

func NewGateway(
	cfg *config.Config,
	logger *slog.Logger,
	h hub.Hubber,
	rooms service.RoomStore,
	store service.MessageStore,
	assembler *service.Assembler,
	dispatcher *service.Dispatcher,
	sender *service.Sender,
	events pubsub.EventDispatcher,
	identity service.Identity,
) *Gateway {
	return &Gateway{
		logger:     logger,
		hub:        h,
		rooms:      rooms,
		store:      store,
		assembler:  assembler,
		dispatcher: dispatcher,
		sender:     sender,
		events:     events,
		identity:   identity,
		nodeID:     cfg.Service.NodeID,
		fetchLimit: cfg.History.FetchLimit,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // Security: adjust for production
		},
	}
}

// session carries the resolved context of one live socket.
type session struct {
	room           *model.Room
	userID         int64
	handlerVersion int
	conn           hub.Conn
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// 1. RESOLVE IDENTITY AND ROOM BEFORE UPGRADING
	userID, err := g.identity.CurrentUser(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	roomID, err := strconv.ParseInt(chi.URLParam(r, "roomID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid room id", http.StatusBadRequest)
		return
	}

	handlerVersion := 1
	if v := r.URL.Query().Get("handler_version"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			http.Error(w, "invalid handler version", http.StatusBadRequest)
			return
		}
		handlerVersion = parsed
	}

	room, err := g.rooms.FindRoom(r.Context(), roomID)
	if err != nil {
		if errors.Is(err, service.ErrRoomNotFound) {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		g.logger.Error("room lookup failed", "room_id", roomID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	// 2. UPGRADE TO WEBSOCKET
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error("ws upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	// 3. JOIN THE ADDRESSING GROUPS
	sess := &session{
		room:           room,
		userID:         userID,
		handlerVersion: handlerVersion,
		conn:           g.hub.NewConn(),
	}
	groups := group.ForSession(roomID, userID, handlerVersion)
	for _, gid := range groups {
		g.hub.Join(gid, sess.conn)
	}
	defer func() {
		for _, gid := range groups {
			g.hub.Leave(gid, sess.conn.ID())
		}
		sess.conn.Close()
	}()

	g.logger.Info("ws opened",
		"room_id", roomID,
		"user_id", userID,
		"handler_version", handlerVersion,
		"conn_id", sess.conn.ID())

	// 4. PUSH RECENT HISTORY TO THIS SESSION ONLY
	if history, err := g.store.ListRecent(r.Context(), roomID, g.fetchLimit); err != nil {
		g.logger.Warn("history fetch failed", "room_id", roomID, "error", err)
	} else if len(history) > 0 {
		_ = g.sender.FetchToConn(r.Context(), room, history, sess.conn)
	}

	// An inactive room is read-only: history went out above, the client
	// learns immediately that nothing new will follow.
	if !room.Active {
		g.sender.SendClose(sess.conn)
	}

	// 5. WRITE PUMP AND PER-SESSION WORKER
	go g.writePump(r.Context(), ws, sess.conn)

	// One worker per session keeps this client's frames in send order; the
	// read loop itself never blocks on handler work.
	inbox := make(chan *frame.Inbound, sessionInboxSize)
	go g.sessionWorker(r.Context(), sess, inbox)

	// 6. READ PUMP (OWNS THE SOCKET LIFETIME)
	g.readPump(r.Context(), ws, sess, inbox)
}

func (g *Gateway) writePump(ctx context.Context, ws *websocket.Conn, conn hub.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.Done():
			return
		case payload := <-conn.Recv():
			if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				g.logger.Warn("ws send failed", "conn_id", conn.ID(), "error", err)
				conn.Close()
				return
			}
		}
	}
}

func (g *Gateway) readPump(ctx context.Context, ws *websocket.Conn, sess *session, inbox chan<- *frame.Inbound) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				g.logger.Warn("ws read failed", "conn_id", sess.conn.ID(), "error", err)
			}
			return
		}

		in, err := frame.DecodeInbound(data)
		if err != nil {
			g.sender.SendError(sess.conn, "malformed frame")
			continue
		}

		select {
		case inbox <- in:
		default:
			// Worker saturated; refusing beats stalling the read loop.
			g.sender.SendError(sess.conn, "too many in-flight frames")
		}
	}
}

// sessionWorker drains the session inbox one frame at a time, so a client's
// messages assemble and deliver in the order they were sent.
func (g *Gateway) sessionWorker(ctx context.Context, sess *session, inbox <-chan *frame.Inbound) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sess.conn.Done():
			return
		case in := <-inbox:
			g.handleInbound(ctx, sess, in)
		}
	}
}

func (g *Gateway) handleInbound(ctx context.Context, sess *session, in *frame.Inbound) {
	switch {
	case in.Type == frame.KindPing:
		g.sender.SendPong(sess.conn, in.Identifier)

	case in.IsStatusUpdate():
		if err := g.sender.SendStatusUpdate(ctx, sess.room.ID, *in.Active, *in.Typing); err != nil {
			g.logger.Warn("status update failed", "room_id", sess.room.ID, "error", err)
		}

	case in.Message != nil:
		g.handleUserMessage(ctx, sess, in.Message)

	default:
		g.sender.SendError(sess.conn, "unrecognized frame")
	}
}

// handleUserMessage runs the full inbound pipeline: assemble, deliver,
// announce to peer nodes, then dispatch the bound handler.
func (g *Gateway) handleUserMessage(ctx context.Context, sess *session, input *frame.RawInput) {
	raw, err := input.ToModel()
	if err != nil {
		g.sender.SendError(sess.conn, "malformed message payload")
		return
	}

	stored, err := g.assembler.Assemble(ctx, raw, sess.room, model.UserSource(sess.userID), sess.handlerVersion)
	if err != nil {
		var ve *model.ValidationError
		if errors.As(err, &ve) {
			// Recoverable: report and keep the session open.
			g.sender.SendError(sess.conn, ve.Reason)
			return
		}
		g.logger.Error("assembly failed", "room_id", sess.room.ID, "error", err)
		g.sender.SendError(sess.conn, model.DefaultUserMessage)
		return
	}

	if err := g.sender.DeliverMessages(ctx, sess.room, []*model.Message{stored}, service.MustAttempt); err != nil {
		g.logger.Error("local delivery failed", "room_id", sess.room.ID, "token", stored.Token, "error", err)
	}

	if err := g.events.Publish(ctx, event.NewMessageCreatedV1(g.nodeID, stored)); err != nil {
		g.logger.Error("peer announce failed", "room_id", sess.room.ID, "token", stored.Token, "error", err)
	}

	if err := g.dispatcher.Dispatch(ctx, sess.room, stored); err != nil {
		if errors.Is(err, model.ErrDoubleExecution) {
			// Already completed once; nothing to report.
			return
		}
		g.reportDispatchError(sess, err)
	}
}

// reportDispatchError maps dispatch failures to client-safe error frames.
// The real cause goes to the logs only.
func (g *Gateway) reportDispatchError(sess *session, err error) {
	var (
		invalid  *model.InvalidActionCodeError
		handling *model.HandlingError
	)
	switch {
	case errors.As(err, &invalid):
		g.logger.Warn("dispatch rejected", "room_id", sess.room.ID, "error", err)
		g.sender.SendError(sess.conn, model.DefaultUserMessage)
	case errors.As(err, &handling):
		g.logger.Error("handler failed", "room_id", sess.room.ID, "error", err)
		g.sender.SendError(sess.conn, handling.UserText())
	default:
		g.logger.Error("dispatch failed", "room_id", sess.room.ID, "error", err)
		g.sender.SendError(sess.conn, model.DefaultUserMessage)
	}
}
