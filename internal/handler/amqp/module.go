package amqp

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/fx"

	"github.com/webitel/chat-delivery-service/internal/adapter/pubsub"
)

var Module = fx.Module("amqp-handler",
	fx.Provide(

		pubsub.NewProvider,
		func(p *pubsub.Provider) (message.Publisher, error) { return p.BuildPublisher() },
		pubsub.NewEventDispatcher,

		NewBusHandler,
		NewWatermillRouter,
	),

	fx.Invoke(RegisterHandlers),
	fx.Invoke(runRouter),
)

// runRouter ties the watermill router to the fx lifecycle. Run blocks until
// Close, so it lives on its own goroutine started after every handler is
// registered.
func runRouter(lc fx.Lifecycle, router *message.Router) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				// Run returns after Close; a background context keeps the
				// consumers alive past the startup deadline.
				_ = router.Run(context.Background())
			}()
			select {
			case <-router.Running():
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
		OnStop: func(context.Context) error {
			return router.Close()
		},
	})
}
