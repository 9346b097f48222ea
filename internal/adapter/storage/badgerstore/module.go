package badgerstore

import (
	"context"
	"log/slog"

	"github.com/webitel/chat-delivery-service/config"
	"github.com/webitel/chat-delivery-service/internal/service"
	"go.uber.org/fx"
)

var Module = fx.Module("badgerstore",
	fx.Provide(
		func(cfg *config.Config, logger *slog.Logger) (*Store, error) {
			return Open(cfg.Storage.Dir, logger)
		},
		func(s *Store) service.MessageStore { return s },
		func(s *Store) service.RoomStore { return s },
	),
	fx.Invoke(func(lc fx.Lifecycle, s *Store) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return s.Close()
			},
		})
	}),
)
