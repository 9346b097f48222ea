package model

import (
	"time"

	"github.com/google/uuid"
)

// Room is the delivery scope a session attaches to. Ownership, membership
// roles and moderation live in external services; the delivery core only
// needs the identifier, the handler-name binding and the Active gate.
type Room struct {
	ID      int64
	OwnerID int64
	// Type is a handler-name binding: direct messages created in this room
	// are stamped with it so the dispatch layer can route them.
	Type      string
	Active    bool
	CreatedAt time.Time
}

// RawUserInput is the transient, pre-assembly shape of one inbound client
// action. It is constructed per frame, consumed exactly once by the
// assembler and then discarded.
type RawUserInput struct {
	Code          string
	Text          string
	ContentURL    string
	ReplyToken    *uuid.UUID
	PostbackValue string
	Extras        map[string]any
}
