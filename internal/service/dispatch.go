package service

import (
	"context"
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/webitel/chat-delivery-service/internal/domain/model"
	"github.com/webitel/chat-delivery-service/internal/domain/registry"
)

// Dispatcher routes stored messages to their versioned handler unit and
// persists/delivers whatever follow-up messages the handler produces.
type Dispatcher struct {
	registry *registry.Registry
	store    MessageStore
	sender   *Sender
	// seen guards against a handler re-processing the same inbound event
	// twice (client retries, bus redeliveries).
	seen   *lru.Cache[string, struct{}]
	logger *slog.Logger
	tracer trace.Tracer
}

func NewDispatcher(reg *registry.Registry, store MessageStore, sender *Sender, logger *slog.Logger) *Dispatcher {
	seen, _ := lru.New[string, struct{}](65536)
	return &Dispatcher{
		registry: reg,
		store:    store,
		sender:   sender,
		seen:     seen,
		logger:   logger,
		tracer:   otel.Tracer("chat-delivery-service/dispatch"),
	}
}

// routing picks the handler key: coded messages name their handler in the
// code itself, direct messages fall back to the room-type binding stamped
// at assembly.
func (d *Dispatcher) routing(msg *model.Message) (string, int) {
	name := msg.HandlerName
	if msg.Code != "" {
		name = msg.CodeHandlerName()
	}
	version := 1
	if msg.ClientHandlerVersion != nil {
		version = *msg.ClientHandlerVersion
	}
	return name, version
}

// Dispatch runs the handler bound to the stored message, if any.
//
// A token that already completed a dispatch comes back as
// model.ErrDoubleExecution; callers treat it as a no-op success. An unknown
// handler comes back as *model.InvalidActionCodeError, a failing handler as
// *model.HandlingError; both carry a client-safe message while the caller
// logs the cause. A failed dispatch leaves the token unrecorded, so a
// redelivery gets a fresh attempt.
func (d *Dispatcher) Dispatch(ctx context.Context, room *model.Room, msg *model.Message) error {
	name, version := d.routing(msg)
	if name == "" {
		return nil
	}

	ctx, span := d.tracer.Start(ctx, "dispatch.Dispatch")
	defer span.End()

	token := msg.Token.String()
	if _, dup := d.seen.Get(token); dup {
		d.logger.Info("duplicate dispatch suppressed", "token", token)
		return model.ErrDoubleExecution
	}

	h, ok := d.registry.Lookup(name, version)
	if !ok {
		return &model.InvalidActionCodeError{Code: msg.Code}
	}

	followups, err := h.Handle(ctx, msg, &registry.Context{
		Room:                 room,
		ClientHandlerVersion: version,
	})
	if err != nil {
		return &model.HandlingError{
			Err: fmt.Errorf("handler %q v%d: %w", name, version, err),
		}
	}

	for _, next := range followups {
		stored, err := d.store.Save(ctx, next)
		if err != nil {
			return &model.HandlingError{
				Err: fmt.Errorf("handler %q v%d: save follow-up: %w", name, version, err),
			}
		}
		if err := d.sender.DeliverMessages(ctx, room, []*model.Message{stored}, MustAttempt); err != nil {
			return err
		}
	}

	// Recorded only now: an aborted attempt above must stay retryable.
	d.seen.Add(token, struct{}{})
	return nil
}
