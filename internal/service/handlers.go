package service

import (
	"context"

	"github.com/webitel/chat-delivery-service/internal/domain/model"
	"github.com/webitel/chat-delivery-service/internal/domain/registry"
)

// ChatHandler is the default room-conversation handler the "chat" room type
// binds to. Plain conversation produces no automated follow-ups; bot flows
// register their own units beside it.
type ChatHandler struct{}

func (h *ChatHandler) Handle(ctx context.Context, msg *model.Message, hctx *registry.Context) ([]*model.Message, error) {
	return nil, nil
}

// RegisterBuiltins populates the registry during boot and seals it before
// the first frame is served. Any registration error aborts process start.
func RegisterBuiltins(reg *registry.Registry) error {
	if err := reg.Register("chat", 1, &ChatHandler{}); err != nil {
		return err
	}
	reg.Seal()
	return nil
}
