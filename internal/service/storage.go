package service

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/webitel/chat-delivery-service/internal/domain/model"
)

// ErrMessageNotFound is returned by MessageStore lookups for unknown tokens.
var ErrMessageNotFound = errors.New("message not found")

// ErrRoomNotFound is returned by RoomStore lookups for unknown rooms.
var ErrRoomNotFound = errors.New("room not found")

// MessageStore is the persistence collaborator for canonical messages.
type MessageStore interface {
	// Save persists the message, assigning its storage id, and returns the
	// stored record.
	Save(ctx context.Context, msg *model.Message) (*model.Message, error)
	// FindByToken resolves a reply-reference key to its message.
	FindByToken(ctx context.Context, token uuid.UUID) (*model.Message, error)
	// ListRecent returns up to limit messages of the room, oldest first.
	ListRecent(ctx context.Context, roomID int64, limit int) ([]*model.Message, error)
}

// RoomStore is the persistence collaborator for rooms and participant roles.
type RoomStore interface {
	FindRoom(ctx context.Context, roomID int64) (*model.Room, error)
	// CurrentRole returns the user's role in the room, or "" for none.
	CurrentRole(ctx context.Context, roomID, userID int64) (string, error)
}

// Identity resolves the authenticated user behind an incoming request.
// Authentication itself is an external concern.
type Identity interface {
	CurrentUser(r *http.Request) (int64, error)
}
