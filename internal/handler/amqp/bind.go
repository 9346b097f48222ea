package amqp

import (
	"context"
	"encoding/json"
	"runtime/debug"

	"github.com/ThreeDotsLabs/watermill/message"
)

// DomainHandler defines the functional signature for business logic.
type DomainHandler[T any] func(ctx context.Context, payload *T) error

// Bind connects Watermill to domain logic, handling panic recovery and
// poison-pill protection.
func Bind[T any](h *BusHandler, fn DomainHandler[T]) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		// Safely handle runtime panics to keep the consumer alive.
		defer func() {
			if r := recover(); r != nil {
				h.logger.Error("panic recovered in bus handler",
					"err", r,
					"stack", string(debug.Stack()),
					"msg_id", msg.UUID)
			}
		}()

		payload := new(T)
		if err := json.Unmarshal(msg.Payload, payload); err != nil {
			h.logger.Error("bus payload decode failed", "err", err, "msg_id", msg.UUID)
			return nil // ACK: a malformed payload never becomes valid on retry.
		}

		// Business failure returns the error: NACK triggers the retry
		// policy and eventually the poison queue.
		return fn(msg.Context(), payload)
	}
}
