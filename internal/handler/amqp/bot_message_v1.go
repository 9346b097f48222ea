package amqp

import (
	"context"
	"errors"
	"fmt"

	"github.com/webitel/chat-delivery-service/internal/domain/event"
	"github.com/webitel/chat-delivery-service/internal/domain/model"
	"github.com/webitel/chat-delivery-service/internal/service"
)

// BotMessageV1 is the raw shape automated handlers publish. Unlike user
// input it may carry targeting and hiding directly: bots are trusted
// producers.
type BotMessageV1 struct {
	RoomID               int64          `json:"room_id"`
	BotKey               string         `json:"bot_key"`
	Code                 string         `json:"code,omitempty"`
	Text                 string         `json:"text,omitempty"`
	ContentURL           string         `json:"content_url,omitempty"`
	Caption              string         `json:"caption,omitempty"`
	URI                  string         `json:"uri,omitempty"`
	Template             map[string]any `json:"template,omitempty"`
	TargetUserID         *int64         `json:"target_user_id,omitempty"`
	TargetHandlerVersion *int           `json:"target_handler_version,omitempty"`
	IsHidden             bool           `json:"is_hidden,omitempty"`
	Extras               map[string]any `json:"extras,omitempty"`
}

func (b *BotMessageV1) toDomain() (*model.Message, error) {
	if b.TargetHandlerVersion != nil && b.TargetUserID == nil {
		return nil, fmt.Errorf("target_handler_version without target_user_id")
	}

	msg := &model.Message{
		RoomID:               b.RoomID,
		Source:               model.BotSource(b.BotKey),
		Code:                 b.Code,
		Text:                 b.Text,
		ContentURL:           b.ContentURL,
		Caption:              b.Caption,
		URI:                  b.URI,
		Template:             b.Template,
		TargetUserID:         b.TargetUserID,
		TargetHandlerVersion: b.TargetHandlerVersion,
		IsHidden:             b.IsHidden,
		Extras:               b.Extras,
	}
	if msg.Extras == nil {
		msg.Extras = map[string]any{}
	}

	switch {
	case b.Template != nil:
		msg.Type = model.TypeTemplate
	case b.Code != "":
		msg.Type = model.TypePostback
	case b.ContentURL != "":
		msg.Type = model.TypeImage
	case b.Text != "":
		msg.Type = model.TypeText
	default:
		return nil, fmt.Errorf("bot message carries no content")
	}
	return msg, nil
}

// OnBotMessageV1 stores a bot-produced message, fans it out locally and
// announces it to peer nodes.
func (h *BusHandler) OnBotMessageV1(ctx context.Context, raw *BotMessageV1) error {
	msg, err := raw.toDomain()
	if err != nil {
		// Terminal: malformed bot payloads never heal on redelivery.
		h.logger.Warn("dropping malformed bot message", "room_id", raw.RoomID, "bot_key", raw.BotKey, "error", err)
		return nil
	}

	room, err := h.rooms.FindRoom(ctx, msg.RoomID)
	if err != nil {
		if errors.Is(err, service.ErrRoomNotFound) {
			h.logger.Warn("dropping bot message for unknown room", "room_id", msg.RoomID)
			return nil
		}
		return fmt.Errorf("load room %d: %w", msg.RoomID, err)
	}

	stored, err := h.store.Save(ctx, msg)
	if err != nil {
		return fmt.Errorf("save bot message: %w", err)
	}

	if err := h.sender.DeliverMessages(ctx, room, []*model.Message{stored}, service.MustAttempt); err != nil {
		return fmt.Errorf("deliver bot message: %w", err)
	}

	if err := h.dispatcher.Publish(ctx, event.NewMessageCreatedV1(h.nodeID, stored)); err != nil {
		return fmt.Errorf("announce bot message: %w", err)
	}
	return nil
}
