package hub

import (
	"context"

	"github.com/webitel/chat-delivery-service/config"
	"go.uber.org/fx"
)

var Module = fx.Module("hub",
	fx.Provide(
		func(cfg *config.Config) *Hub {
			return New(WithSendBuffer(cfg.Hub.SendBuffer))
		},
		fx.Annotate(
			func(h *Hub) Hubber { return h },
			fx.As(new(Hubber)),
		),
	),
	fx.Invoke(func(lc fx.Lifecycle, h Hubber) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				h.Shutdown()
				return nil
			},
		})
	}),
)
