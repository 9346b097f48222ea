package event

import (
	"time"

	"github.com/google/uuid"
	"github.com/webitel/chat-delivery-service/internal/domain/model"
)

// Topics the service publishes to / consumes from on the bus.
const (
	// TopicMessageCreated carries stored messages between delivery nodes so
	// each node can fan out to its locally connected sessions.
	TopicMessageCreated = "chat_delivery.message.created.v1"
	// TopicBotMessage carries raw bot-produced messages into the delivery
	// core from automated handlers.
	TopicBotMessage = "chat_bot.message.new.v1"
)

// Outbound defines an event that should be published to the message bus.
type Outbound interface {
	GetRoutingKey() string
}

// Interface guard
var _ Outbound = (*MessageCreatedV1)(nil)

// MessageCreatedV1 announces a stored message to peer delivery nodes.
//
// The originating node delivers to its own hub synchronously (so delivery
// failures surface to the producing session) and tags the event with its
// NodeID; consumers skip events they originated themselves.
type MessageCreatedV1 struct {
	ID         uuid.UUID      `json:"id"`
	NodeID     string         `json:"node_id"`
	RoomID     int64          `json:"room_id"`
	Message    *model.Message `json:"message"`
	OccurredAt int64          `json:"occurred_at"`
}

func NewMessageCreatedV1(nodeID string, msg *model.Message) *MessageCreatedV1 {
	return &MessageCreatedV1{
		ID:         uuid.New(),
		NodeID:     nodeID,
		RoomID:     msg.RoomID,
		Message:    msg,
		OccurredAt: time.Now().UnixMilli(),
	}
}

func (e *MessageCreatedV1) GetRoutingKey() string { return TopicMessageCreated }
