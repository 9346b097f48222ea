package frame

import (
	"time"

	"github.com/webitel/chat-delivery-service/internal/domain/model"
)

// WireMessage is the client-facing projection of a stored message. Optional
// fields are skipped when absent instead of serialized as null or zero, which
// is part of the client contract.
type WireMessage struct {
	ID         int64          `json:"id"`
	Type       string         `json:"type"`
	RoomID     int64          `json:"room_id"`
	Text       string         `json:"text,omitempty"`
	Code       string         `json:"code,omitempty"`
	ContentURL string         `json:"content_url,omitempty"`
	Caption    string         `json:"caption,omitempty"`
	URI        string         `json:"uri,omitempty"`
	Source     *WireSource    `json:"source,omitempty"`
	Template   map[string]any `json:"template,omitempty"`
	Token      string         `json:"token"`
	Extras     map[string]any `json:"extras,omitempty"`
	Command    map[string]any `json:"command,omitempty"`
	// IsHidden is serialized only when true: the hide-then-deliver flow
	// needs it, everything else omits it.
	IsHidden  bool   `json:"is_hidden,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

type WireSource struct {
	UserID int64  `json:"user_id,omitempty"`
	BotKey string `json:"bot_key,omitempty"`
	Role   string `json:"role,omitempty"`
}

func NewWireMessage(m *model.Message, roles map[int64]string) *WireMessage {
	w := &WireMessage{
		ID:         m.ID,
		Type:       m.Type.WireName(),
		RoomID:     m.RoomID,
		Text:       m.Text,
		Code:       m.Code,
		ContentURL: m.ContentURL,
		Caption:    m.Caption,
		URI:        m.URI,
		Template:   m.Template,
		Token:      m.Token.String(),
		Extras:     m.Extras,
		Command:    m.Command(),
		IsHidden:   m.IsHidden,
	}
	if !m.CreatedAt.IsZero() {
		w.CreatedAt = m.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	if !m.UpdatedAt.IsZero() {
		w.UpdatedAt = m.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	switch m.Source.Type {
	case model.SourceUser:
		w.Source = &WireSource{UserID: m.Source.UserID, Role: roles[m.Source.UserID]}
	case model.SourceBot:
		w.Source = &WireSource{BotKey: m.Source.BotKey}
	}
	return w
}
