// Package pubsub moves message envelopes over Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
	"github.com/dvloznov/mailledger/internal/logger"
	"github.com/dvloznov/mailledger/internal/queue"
	"google.golang.org/api/option"
)

// Publisher publishes envelopes to a Pub/Sub topic.
type Publisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	owned  bool
}

// NewPublisher creates a publisher for topicID in projectID.
func NewPublisher(ctx context.Context, projectID, topicID string, opts ...option.ClientOption) (*Publisher, error) {
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewPublisher: create client: %w", err)
	}
	p := NewPublisherWithClient(client, topicID)
	p.owned = true
	return p, nil
}

// NewPublisherWithClient creates a publisher on an existing client. Close does
// not close the client.
func NewPublisherWithClient(client *pubsub.Client, topicID string) *Publisher {
	return &Publisher{client: client, topic: client.Topic(topicID)}
}

// PublishMessage implements queue.Publisher. It waits for the server to accept the message.
func (p *Publisher) PublishMessage(ctx context.Context, env *queue.MessageEnvelope) error {
	data, err := env.Encode()
	if err != nil {
		return fmt.Errorf("PublishMessage: %w", err)
	}

	res := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"message_sender": env.MessageSender},
	})
	serverID, err := res.Get(ctx)
	if err != nil {
		return fmt.Errorf("PublishMessage: publish %s: %w", env.MessageID, err)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("message_id", env.MessageID).
		Str("pubsub_id", serverID).
		Msg("Published message")
	return nil
}

// Close implements queue.Publisher.
func (p *Publisher) Close() error {
	p.topic.Stop()
	if p.owned {
		return p.client.Close()
	}
	return nil
}

// Consumer receives envelopes from a Pub/Sub subscription.
type Consumer struct {
	client *pubsub.Client
	sub    *pubsub.Subscription
	owned  bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan error
}

// NewConsumer creates a consumer for subscriptionID in projectID.
func NewConsumer(ctx context.Context, projectID, subscriptionID string, opts ...option.ClientOption) (*Consumer, error) {
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewConsumer: create client: %w", err)
	}
	c := NewConsumerWithClient(client, subscriptionID)
	c.owned = true
	return c, nil
}

// NewConsumerWithClient creates a consumer on an existing client.
func NewConsumerWithClient(client *pubsub.Client, subscriptionID string) *Consumer {
	return &Consumer{client: client, sub: client.Subscription(subscriptionID)}
}

// Start implements queue.Consumer. Messages whose handler succeeds are acked,
// failures are nacked for redelivery and undecodable payloads are acked and dropped.
func (c *Consumer) Start(ctx context.Context, handler queue.Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		return fmt.Errorf("consumer already started")
	}

	rctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan error, 1)

	go func() {
		c.done <- c.sub.Receive(rctx, func(ctx context.Context, m *pubsub.Message) {
			log := logger.FromContext(ctx).With().Str("pubsub_id", m.ID).Logger()

			env, err := queue.DecodeEnvelope(m.Data)
			if err != nil {
				log.Error().Err(err).Msg("Dropping undecodable message")
				m.Ack()
				return
			}
			if err := handler(ctx, env); err != nil {
				log.Error().Err(err).Str("message_id", env.MessageID).Msg("Handler failed, nacking")
				m.Nack()
				return
			}
			m.Ack()
		})
	}()
	return nil
}

// Stop implements queue.Consumer.
func (c *Consumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel = nil
	c.mu.Unlock()

	var err error
	if cancel != nil {
		cancel()
		select {
		case err = <-done:
			if errors.Is(err, context.Canceled) {
				err = nil
			}
		case <-ctx.Done():
			err = ctx.Err()
		}
	}
	if c.owned {
		if cerr := c.client.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// EnsureTopology creates the topic and subscription when missing. It is used by
// local setups and tests against the emulator.
func EnsureTopology(ctx context.Context, client *pubsub.Client, topicID, subscriptionID string) error {
	topic := client.Topic(topicID)
	ok, err := topic.Exists(ctx)
	if err != nil {
		return fmt.Errorf("EnsureTopology: check topic: %w", err)
	}
	if !ok {
		if topic, err = client.CreateTopic(ctx, topicID); err != nil {
			return fmt.Errorf("EnsureTopology: create topic: %w", err)
		}
	}
	if subscriptionID == "" {
		return nil
	}

	sub := client.Subscription(subscriptionID)
	ok, err = sub.Exists(ctx)
	if err != nil {
		return fmt.Errorf("EnsureTopology: check subscription: %w", err)
	}
	if !ok {
		if _, err := client.CreateSubscription(ctx, subscriptionID, pubsub.SubscriptionConfig{Topic: topic}); err != nil {
			return fmt.Errorf("EnsureTopology: create subscription: %w", err)
		}
	}
	return nil
}

var (
	_ queue.Publisher = (*Publisher)(nil)
	_ queue.Consumer  = (*Consumer)(nil)
)
