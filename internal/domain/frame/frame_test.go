package frame

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/webitel/chat-delivery-service/internal/domain/model"
)

func TestEncodeMessages_SkipsAbsentFields(t *testing.T) {
	req := require.New(t)

	msg := &model.Message{
		ID:        12,
		Type:      model.TypeText,
		RoomID:    42,
		Text:      "hi",
		Source:    model.UserSource(7),
		Token:     uuid.New(),
		CreatedAt: time.Now(),
	}

	data, err := EncodeMessages([]*model.Message{msg}, map[int64]string{7: "owner"})
	req.NoError(err)

	var decoded struct {
		Type     string           `json:"type"`
		Messages []map[string]any `json:"messages"`
	}
	req.NoError(json.Unmarshal(data, &decoded))
	req.Equal("messages", decoded.Type)
	req.Len(decoded.Messages, 1)

	wire := decoded.Messages[0]
	req.Equal("text", wire["type"])
	req.Equal("hi", wire["text"])

	// Absent optionals must not appear at all, not as null.
	for _, key := range []string{"code", "content_url", "caption", "uri", "extras", "template", "is_hidden"} {
		req.NotContains(wire, key)
	}

	source := wire["source"].(map[string]any)
	req.Equal(float64(7), source["user_id"])
	req.Equal("owner", source["role"])
}

func TestEncodeStatusUpdate_Shape(t *testing.T) {
	req := require.New(t)

	data, err := EncodeStatusUpdate(true, false)
	req.NoError(err)
	req.JSONEq(`{"type":"status_update","status":{"active":true,"typing":false}}`, string(data))
}

func TestDecodeInbound_MessageEnvelope(t *testing.T) {
	req := require.New(t)

	token := uuid.New()
	in, err := DecodeInbound([]byte(`{"message":{"code":"chat$buy","text":"yes","reply_token":"` + token.String() + `"}}`))
	req.NoError(err)
	req.NotNil(in.Message)

	raw, err := in.Message.ToModel()
	req.NoError(err)
	req.Equal("chat$buy", raw.Code)
	req.Equal("yes", raw.Text)
	req.NotNil(raw.ReplyToken)
	req.Equal(token, *raw.ReplyToken)
}

func TestDecodeInbound_StatusEnvelope(t *testing.T) {
	req := require.New(t)

	in, err := DecodeInbound([]byte(`{"active":true,"typing":true}`))
	req.NoError(err)
	req.True(in.IsStatusUpdate())
	req.True(*in.Active)
	req.True(*in.Typing)
}

func TestRawInput_BadReplyTokenFails(t *testing.T) {
	bad := RawInput{ReplyToken: "not-a-uuid"}
	_, err := bad.ToModel()
	require.Error(t, err)
}
