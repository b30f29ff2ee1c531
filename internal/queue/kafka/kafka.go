// Package kafka moves message envelopes over Apache Kafka.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/mailledger/internal/logger"
	"github.com/dvloznov/mailledger/internal/queue"
	"github.com/segmentio/kafka-go"
)

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// messageReader is the part of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes envelopes to a Kafka topic, keyed by message id.
type Publisher struct {
	writer messageWriter
}

// NewPublisher creates a publisher for topic on brokers.
func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{writer: &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}}
}

// PublishMessage implements queue.Publisher.
func (p *Publisher) PublishMessage(ctx context.Context, env *queue.MessageEnvelope) error {
	data, err := env.Encode()
	if err != nil {
		return fmt.Errorf("PublishMessage: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(env.MessageID),
		Value: data,
		Time:  time.Now(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("PublishMessage: write %s: %w", env.MessageID, err)
	}
	log := logger.FromContext(ctx)
	log.Info().Str("message_id", env.MessageID).Msg("Published message")
	return nil
}

// Close implements queue.Publisher.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// Consumer reads envelopes from a Kafka consumer group.
//
// An offset is committed once the handler succeeds. A failing handler is retried
// in place up to MaxAttempts times with linear backoff; after that the offset is
// committed and the message logged as dropped, so one bad message cannot stall
// the partition.
type Consumer struct {
	reader      messageReader
	MaxAttempts int
	Backoff     time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewConsumer creates a consumer for topic in groupID.
func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	return newConsumer(kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: groupID,
	}))
}

func newConsumer(r messageReader) *Consumer {
	return &Consumer{reader: r, MaxAttempts: 3, Backoff: time.Second}
}

// Start implements queue.Consumer.
func (c *Consumer) Start(ctx context.Context, handler queue.Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		return fmt.Errorf("consumer already started")
	}
	rctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.loop(rctx, handler)
	return nil
}

func (c *Consumer) loop(ctx context.Context, handler queue.Handler) {
	defer c.wg.Done()
	log := logger.FromContext(ctx)

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			log.Error().Err(err).Msg("Failed to fetch message")
			if !sleep(ctx, c.Backoff) {
				return
			}
			continue
		}

		c.handle(ctx, msg, handler)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			log.Error().Err(err).Int64("offset", msg.Offset).Msg("Failed to commit offset")
		}
	}
}

// handle runs handler with retries. It never returns an error; the caller commits either way.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message, handler queue.Handler) {
	log := logger.FromContext(ctx).With().
		Int("partition", msg.Partition).
		Int64("offset", msg.Offset).
		Logger()

	env, err := queue.DecodeEnvelope(msg.Value)
	if err != nil {
		log.Error().Err(err).Msg("Dropping undecodable message")
		return
	}

	for attempt := 1; ; attempt++ {
		err := handler(ctx, env)
		if err == nil {
			return
		}
		if attempt >= c.MaxAttempts {
			log.Error().Err(err).Str("message_id", env.MessageID).Int("attempts", attempt).Msg("Giving up on message after retries")
			return
		}
		log.Warn().Err(err).Str("message_id", env.MessageID).Int("attempt", attempt).Msg("Handler failed, retrying")
		if !sleep(ctx, time.Duration(attempt)*c.Backoff) {
			return
		}
	}
}

// Stop implements queue.Consumer.
func (c *Consumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return c.reader.Close()
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

var (
	_ queue.Publisher = (*Publisher)(nil)
	_ queue.Consumer  = (*Consumer)(nil)
)
