// Package frame defines the JSON frame shapes exchanged with chat clients.
// Outbound frames are encoded once per group, not once per socket, so the
// codec lives in the domain rather than at the transport edge.
package frame

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/webitel/chat-delivery-service/internal/domain/model"
)

// Outbound frame kinds, selected by the "type" field.
const (
	KindMessages     = "messages"
	KindRoomStates   = "room_states"
	KindToast        = "toast"
	KindStatusUpdate = "status_update"
	KindError        = "error"
	KindPing         = "ping"
	KindPong         = "pong"
	KindClose        = "close"
)

type Status struct {
	Active bool `json:"active"`
	Typing bool `json:"typing"`
}

// EncodeMessages builds a "messages" frame. roles maps user id to the
// viewer-visible room role attached to each message source.
func EncodeMessages(msgs []*model.Message, roles map[int64]string) ([]byte, error) {
	wire := make([]*WireMessage, 0, len(msgs))
	for _, m := range msgs {
		wire = append(wire, NewWireMessage(m, roles))
	}
	return json.Marshal(map[string]any{
		"type":     KindMessages,
		"messages": wire,
	})
}

func EncodeRoomStates(states any) ([]byte, error) {
	return json.Marshal(map[string]any{
		"type":        KindRoomStates,
		"room_states": states,
	})
}

func EncodeToast(text string) ([]byte, error) {
	return json.Marshal(map[string]any{
		"type": KindToast,
		"text": text,
	})
}

func EncodeStatusUpdate(active, typing bool) ([]byte, error) {
	return json.Marshal(map[string]any{
		"type":   KindStatusUpdate,
		"status": Status{Active: active, Typing: typing},
	})
}

func EncodeError(text string) ([]byte, error) {
	return json.Marshal(map[string]any{
		"type":  KindError,
		"error": text,
	})
}

func EncodePing(identifier string) ([]byte, error) {
	return json.Marshal(map[string]any{
		"type":       KindPing,
		"identifier": identifier,
	})
}

func EncodePong(identifier string) ([]byte, error) {
	return json.Marshal(map[string]any{
		"type":       KindPong,
		"identifier": identifier,
	})
}

// EncodeClose tells the client the conversation is over; the socket itself
// stays up until the client hangs up.
func EncodeClose() ([]byte, error) {
	return json.Marshal(map[string]any{
		"type": KindClose,
	})
}

// RawInput is the wire shape of one user action inside the inbound
// "message" envelope.
type RawInput struct {
	Code          string         `json:"code,omitempty"`
	Text          string         `json:"text,omitempty"`
	ContentURL    string         `json:"content_url,omitempty"`
	ReplyToken    string         `json:"reply_token,omitempty"`
	PostbackValue string         `json:"postback_value,omitempty"`
	Extras        map[string]any `json:"extras,omitempty"`
}

// ToModel parses the wire input into the transient assembly shape.
func (r *RawInput) ToModel() (model.RawUserInput, error) {
	raw := model.RawUserInput{
		Code:          r.Code,
		Text:          r.Text,
		ContentURL:    r.ContentURL,
		PostbackValue: r.PostbackValue,
		Extras:        r.Extras,
	}
	if r.ReplyToken != "" {
		token, err := uuid.Parse(r.ReplyToken)
		if err != nil {
			return model.RawUserInput{}, fmt.Errorf("parse reply token: %w", err)
		}
		raw.ReplyToken = &token
	}
	return raw, nil
}

// Inbound is the decoded client frame: either a message envelope, a status
// update, or a keepalive.
type Inbound struct {
	Message    *RawInput `json:"message,omitempty"`
	Active     *bool     `json:"active,omitempty"`
	Typing     *bool     `json:"typing,omitempty"`
	Type       string    `json:"type,omitempty"`
	Identifier string    `json:"identifier,omitempty"`
}

// IsStatusUpdate reports whether the frame is the {active, typing} envelope.
func (in *Inbound) IsStatusUpdate() bool {
	return in.Message == nil && in.Active != nil && in.Typing != nil
}

func DecodeInbound(data []byte) (*Inbound, error) {
	in := new(Inbound)
	if err := json.Unmarshal(data, in); err != nil {
		return nil, fmt.Errorf("decode inbound frame: %w", err)
	}
	return in, nil
}
