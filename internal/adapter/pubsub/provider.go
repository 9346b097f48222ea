package pubsub

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/webitel/chat-delivery-service/config"
)

// Provider builds AMQP publishers and subscribers over one connection
// config. Each consumer handler gets its own durable queue derived from the
// topic plus a per-handler suffix, so every node sees every event.
type Provider struct {
	uri    string
	logger watermill.LoggerAdapter
}

func NewProvider(cfg *config.Config, logger watermill.LoggerAdapter) *Provider {
	return &Provider{uri: cfg.AMQP.URI, logger: logger}
}

func (p *Provider) BuildPublisher() (message.Publisher, error) {
	pub, err := amqp.NewPublisher(amqp.NewDurablePubSubConfig(p.uri, nil), p.logger)
	if err != nil {
		return nil, fmt.Errorf("pubsub: build publisher: %w", err)
	}
	return pub, nil
}

func (p *Provider) BuildSubscriber(queueSuffix string) (message.Subscriber, error) {
	cfg := amqp.NewDurablePubSubConfig(p.uri,
		amqp.GenerateQueueNameTopicNameWithSuffix(queueSuffix))
	sub, err := amqp.NewSubscriber(cfg, p.logger)
	if err != nil {
		return nil, fmt.Errorf("pubsub: build subscriber %s: %w", queueSuffix, err)
	}
	return sub, nil
}
