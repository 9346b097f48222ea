/*
Package group derives broadcast-group identifiers from message addressing.

Three granularities exist, and a session joins all of them on connect so it
can receive frames at any addressing level:

  - "room-{room}"                          every client in the room
  - "room-{room}-user-{user}"              one user, any protocol version
  - "room-{room}-user-{user}-handler-{v}"  one user on one handler version

The identifier format is a cross-service contract; nothing else in the
codebase is allowed to build these strings by hand.
*/
package group

import (
	"fmt"

	"github.com/webitel/chat-delivery-service/internal/domain/model"
)

// ID names a broadcast scope: the set of connected sessions that should
// receive the same outbound frame.
type ID string

func Room(roomID int64) ID {
	return ID(fmt.Sprintf("room-%d", roomID))
}

func RoomUser(roomID, userID int64) ID {
	return ID(fmt.Sprintf("room-%d-user-%d", roomID, userID))
}

func RoomUserHandler(roomID, userID int64, handlerVersion int) ID {
	return ID(fmt.Sprintf("room-%d-user-%d-handler-%d", roomID, userID, handlerVersion))
}

// ForSession returns the three groups a session joins on connect, most
// general first.
func ForSession(roomID, userID int64, handlerVersion int) []ID {
	return []ID{
		Room(roomID),
		RoomUser(roomID, userID),
		RoomUserHandler(roomID, userID, handlerVersion),
	}
}

// ForMessage picks the single most specific group an outbound message
// targets. Total by construction: absent target fields are valid inputs.
func ForMessage(m *model.Message) ID {
	switch {
	case m.TargetUserID == nil:
		return Room(m.RoomID)
	case m.TargetHandlerVersion == nil:
		return RoomUser(m.RoomID, *m.TargetUserID)
	default:
		return RoomUserHandler(m.RoomID, *m.TargetUserID, *m.TargetHandlerVersion)
	}
}
