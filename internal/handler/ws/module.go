package ws

import (
	"github.com/webitel/chat-delivery-service/internal/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ws-handler",
	fx.Provide(
		NewGateway,
		fx.Annotate(
			NewHeaderIdentity,
			fx.As(new(service.Identity)),
		),
	),
)
