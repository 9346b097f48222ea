package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

//go:generate stringer -type=MessageType
type MessageType int16

const (
	// [ZERO_VALUE_GUARD] WE START FROM 1 TO DISTINGUISH FROM UNINITIALIZED DATA
	TypeText MessageType = iota + 1
	TypeImage
	TypeTemplate
	TypeAudio
	TypeVideo
	TypePostback
	TypeInstantCommand
	TypeLottieEmoji
)

// Wire names are part of the client contract. DON'T CHANGE THOSE STRINGS.
var messageTypeNames = map[MessageType]string{
	TypeText:           "text",
	TypeImage:          "image",
	TypeTemplate:       "template",
	TypeAudio:          "audio",
	TypeVideo:          "video",
	TypePostback:       "postback",
	TypeInstantCommand: "instant_command",
	TypeLottieEmoji:    "lottie_emoji",
}

func (t MessageType) WireName() string {
	return messageTypeNames[t]
}

type SourceType int16

const (
	SourceUser SourceType = iota + 1
	SourceBot
)

// Source identifies who produced a message: a human participant or a bot handler.
type Source struct {
	Type   SourceType
	UserID int64  // set when Type == SourceUser
	BotKey string // set when Type == SourceBot
}

func UserSource(userID int64) Source {
	return Source{Type: SourceUser, UserID: userID}
}

func BotSource(key string) Source {
	return Source{Type: SourceBot, BotKey: key}
}

// [MESSAGE] CORE ENTITY REPRESENTING A CONVERSATION ELEMENT
//
// A message is canonical after assembly: it carries a globally unique Token
// (the reply-reference key), provenance (Source, ClientHandlerVersion) and an
// optional addressing target. TargetHandlerVersion is only meaningful when
// TargetUserID is set.
type Message struct {
	ID     int64
	Type   MessageType
	RoomID int64

	Text string
	// Code is dotted as "<handler_name>$<action_code>", or empty for a
	// direct user message.
	Code string
	// HandlerName is the room-type binding stamped on direct messages.
	// It is a routing hint for the dispatch layer, never validated here.
	HandlerName string
	ContentURL  string
	Caption     string
	URI         string

	Source   Source
	Template map[string]any

	TargetUserID         *int64
	TargetHandlerVersion *int
	IsHidden             bool

	Token            uuid.UUID
	PostbackParentID *int64
	PostbackValue    string
	Extras           map[string]any

	ClientHandlerVersion *int
	Invalidated          bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Targeted reports whether the message is addressed to a single user instead
// of the whole room.
func (m *Message) Targeted() bool { return m.TargetUserID != nil }

// CodeHandlerName returns the handler part of the "<handler>$<action>" code.
func (m *Message) CodeHandlerName() string {
	name, _, _ := strings.Cut(m.Code, "$")
	return name
}

// ActionCode returns the action part of the "<handler>$<action>" code.
func (m *Message) ActionCode() string {
	_, action, _ := strings.Cut(m.Code, "$")
	return action
}

// Command extracts the instant-command triple from Extras, or nil when the
// message is not a well-formed instant command.
func (m *Message) Command() map[string]any {
	if m.Type != TypeInstantCommand {
		return nil
	}
	code, ok1 := m.Extras["command_code"]
	postback, ok2 := m.Extras["postback_message_code"]
	params, ok3 := m.Extras["params"]
	if !ok1 || !ok2 || !ok3 {
		return nil
	}
	return map[string]any{
		"code":                  code,
		"postback_message_code": postback,
		"params":                params,
	}
}
