package amqp

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/webitel/chat-delivery-service/config"
	"github.com/webitel/chat-delivery-service/internal/adapter/pubsub"
	"github.com/webitel/chat-delivery-service/internal/domain/event"
	"github.com/webitel/chat-delivery-service/internal/service"
)

const (
	// PoisonTopic collects messages that exhausted the consumer retry
	// policy.
	PoisonTopic = "chat-delivery.incoming-processor.v1.poison"
)

// BusHandler owns the AMQP-facing side of the delivery core: bot-produced
// messages coming in, and peer-node fanout events.
type BusHandler struct {
	nodeID     string
	rooms      service.RoomStore
	store      service.MessageStore
	sender     *service.Sender
	dispatcher pubsub.EventDispatcher
	logger     *slog.Logger
}

func NewBusHandler(cfg *config.Config, rooms service.RoomStore, store service.MessageStore, sender *service.Sender, dispatcher pubsub.EventDispatcher, logger *slog.Logger) *BusHandler {
	return &BusHandler{
		nodeID:     cfg.Service.NodeID,
		rooms:      rooms,
		store:      store,
		sender:     sender,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

func NewWatermillRouter(logger watermill.LoggerAdapter) (*message.Router, error) {
	return message.NewRouter(message.RouterConfig{}, logger)
}

// RegisterHandlers wires every bus listener through the shared middleware
// chain. Each handler gets its own durable queue on this node.
func RegisterHandlers(router *message.Router, provider *pubsub.Provider, h *BusHandler) error {
	poison, err := middleware.PoisonQueue(h.dispatcher.Publisher(), PoisonTopic)
	if err != nil {
		return fmt.Errorf("amqp: poison queue setup: %w", err)
	}

	configs := []struct {
		name    string
		topic   string
		handler message.NoPublishHandlerFunc
	}{
		{"ON_BOT_MESSAGE", event.TopicBotMessage, Bind(h, h.OnBotMessageV1)},
		{"ON_MSG_CREATED", event.TopicMessageCreated, Bind(h, h.OnMessageCreatedV1)},
	}

	for _, c := range configs {
		queueSuffix := fmt.Sprintf("%s.%s", h.nodeID, c.name)
		sub, err := provider.BuildSubscriber(queueSuffix)
		if err != nil {
			return err
		}

		router.AddConsumerHandler(c.name, c.topic, sub, c.handler).AddMiddleware(
			TraceIDMiddleware,
			LoggingMiddleware(h.logger),
			NewRetryMiddleware().Middleware,
			poison,
			middleware.NewThrottle(100, time.Second).Middleware,
			middleware.Timeout(time.Second*30),
		)
	}

	h.logger.Info("amqp pipeline ready", "node_id", h.nodeID)
	return nil
}
