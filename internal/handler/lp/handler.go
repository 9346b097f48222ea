package lp

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/webitel/chat-delivery-service/config"
	"github.com/webitel/chat-delivery-service/internal/domain/group"
	"github.com/webitel/chat-delivery-service/internal/domain/hub"
	"github.com/webitel/chat-delivery-service/internal/domain/model"
	"github.com/webitel/chat-delivery-service/internal/service"
)

const pollTimeout = 30 * time.Second

// Handler serves the HTTP fallback surface: history fetch for clients that
// just connected, and long-polling for clients that cannot hold a websocket.
type Handler struct {
	logger   *slog.Logger
	hub      hub.Hubber
	rooms    service.RoomStore
	store    service.MessageStore
	sender   *service.Sender
	identity service.Identity

	fetchLimit int
}

func NewHandler(
	cfg *config.Config,
	logger *slog.Logger,
	h hub.Hubber,
	rooms service.RoomStore,
	store service.MessageStore,
	sender *service.Sender,
	identity service.Identity,
) *Handler {
	return &Handler{
		logger:     logger,
		hub:        h,
		rooms:      rooms,
		store:      store,
		sender:     sender,
		identity:   identity,
		fetchLimit: cfg.History.FetchLimit,
	}
}

func (h *Handler) resolveRoom(w http.ResponseWriter, r *http.Request) (*model.Room, bool) {
	roomID, err := strconv.ParseInt(chi.URLParam(r, "roomID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid room id", http.StatusBadRequest)
		return nil, false
	}
	room, err := h.rooms.FindRoom(r.Context(), roomID)
	if err != nil {
		if errors.Is(err, service.ErrRoomNotFound) {
			http.Error(w, "room not found", http.StatusNotFound)
			return nil, false
		}
		h.logger.Error("room lookup failed", "room_id", roomID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return nil, false
	}
	return room, true
}

// History returns the most recent messages of a room, oldest first, encoded
// as one "messages" frame.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	room, ok := h.resolveRoom(w, r)
	if !ok {
		return
	}

	limit := h.fetchLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > h.fetchLimit {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	msgs, err := h.store.ListRecent(r.Context(), room.ID, limit)
	if err != nil {
		h.logger.Error("history fetch failed", "room_id", room.ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	payload, err := h.sender.EncodeHistory(r.Context(), room, msgs)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(payload)
}

// Poll holds the request open until a frame arrives for the caller or the
// poll window expires. The subscription lives only for this one request.
func (h *Handler) Poll(w http.ResponseWriter, r *http.Request) {
	userID, err := h.identity.CurrentUser(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	room, ok := h.resolveRoom(w, r)
	if !ok {
		return
	}

	handlerVersion := 1
	if v := r.URL.Query().Get("handler_version"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 1 {
			handlerVersion = parsed
		}
	}

	conn := h.hub.NewConn()
	groups := group.ForSession(room.ID, userID, handlerVersion)
	for _, g := range groups {
		h.hub.Join(g, conn)
	}
	defer func() {
		for _, g := range groups {
			h.hub.Leave(g, conn.ID())
		}
		conn.Close()
	}()

	var frames [][]byte

	select {
	case <-r.Context().Done():
		return

	case <-time.After(pollTimeout):
		w.WriteHeader(http.StatusNoContent)
		return

	case payload := <-conn.Recv():
		frames = append(frames, payload)

		// Drain whatever else queued up to batch into one response.
	drainLoop:
		for range 15 {
			select {
			case next := <-conn.Recv():
				frames = append(frames, next)
			default:
				break drainLoop
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(joinFrames(frames))
}

// joinFrames packs already-encoded frames into one JSON array without
// re-marshaling them.
func joinFrames(frames [][]byte) []byte {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, f := range frames {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(f)
	}
	buf.WriteByte(']')
	return buf.Bytes()
}
