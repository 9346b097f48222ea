package service

import (
	"log/slog"

	"github.com/webitel/chat-delivery-service/internal/domain/hub"
	"github.com/webitel/chat-delivery-service/internal/domain/registry"
	"go.uber.org/fx"
)

var Module = fx.Module(
	"service",

	fx.Provide(
		registry.New,

		func(h hub.Hubber, logger *slog.Logger) *Delivery {
			return NewDelivery(h, logger)
		},
		NewRoleResolver,
		NewSender,
		NewAssembler,
		NewDispatcher,
	),

	// Populate and seal the handler table before anything serves traffic.
	fx.Invoke(RegisterBuiltins),
)
