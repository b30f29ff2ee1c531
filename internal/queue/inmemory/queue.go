package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/mailledger/internal/logger"
	"github.com/dvloznov/mailledger/internal/queue"
)

// DefaultMaxRetries is how many times a failed envelope is redelivered.
const DefaultMaxRetries = 3

// Queue is an in-memory implementation of queue.Publisher and queue.Consumer.
// It uses Go channels for distribution and is safe for concurrent use.
// It suits single-process runs where the watcher and the writer share a binary.
type Queue struct {
	items     chan *delivery
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	closed    bool

	workers    int
	maxRetries int
	backoff    time.Duration
}

type delivery struct {
	env     *queue.MessageEnvelope
	attempt int
}

// Option configures a Queue.
type Option func(*Queue)

// WithWorkers sets the number of concurrent handler goroutines.
func WithWorkers(n int) Option {
	return func(q *Queue) { q.workers = n }
}

// WithRetry sets the redelivery budget and the base backoff. The n-th retry
// waits n times backoff.
func WithRetry(maxRetries int, backoff time.Duration) Option {
	return func(q *Queue) {
		q.maxRetries = maxRetries
		q.backoff = backoff
	}
}

// NewQueue creates a new in-memory queue.
// bufferSize determines how many envelopes can wait before PublishMessage blocks.
func NewQueue(bufferSize int, opts ...Option) *Queue {
	q := &Queue{
		items:      make(chan *delivery, bufferSize),
		closeChan:  make(chan struct{}),
		workers:    1,
		maxRetries: DefaultMaxRetries,
		backoff:    time.Second,
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.workers < 1 {
		q.workers = 1
	}
	return q
}

// PublishMessage implements queue.Publisher.
func (q *Queue) PublishMessage(ctx context.Context, env *queue.MessageEnvelope) error {
	if env == nil || env.MessageID == "" {
		return fmt.Errorf("PublishMessage: envelope needs a message id")
	}
	return q.enqueue(ctx, &delivery{env: env})
}

func (q *Queue) enqueue(ctx context.Context, d *delivery) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return fmt.Errorf("queue is closed")
	}

	select {
	case q.items <- d:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return fmt.Errorf("queue is closed")
	}
}

// Start implements queue.Consumer.
func (q *Queue) Start(ctx context.Context, handler queue.Handler) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return fmt.Errorf("queue is closed")
	}
	q.mu.RUnlock()

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}
	return nil
}

func (q *Queue) worker(ctx context.Context, handler queue.Handler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case d := <-q.items:
			if d == nil {
				return
			}
			q.process(ctx, d, handler)
		}
	}
}

// process runs the handler once and schedules a retry on failure.
func (q *Queue) process(ctx context.Context, d *delivery, handler queue.Handler) {
	log := logger.FromContext(ctx).With().
		Str("message_id", d.env.MessageID).
		Int("attempt", d.attempt+1).
		Logger()

	err := handler(ctx, d.env)
	if err == nil {
		return
	}

	if d.attempt >= q.maxRetries {
		log.Error().Err(err).Msg("Giving up on message after retries")
		return
	}

	d.attempt++
	wait := time.Duration(d.attempt) * q.backoff
	log.Warn().Err(err).Dur("backoff", wait).Msg("Handler failed, retrying")
	time.AfterFunc(wait, func() {
		if err := q.enqueue(ctx, d); err != nil {
			log.Error().Err(err).Msg("Failed to requeue message")
		}
	})
}

// Stop implements queue.Consumer.
// It stops the queue and waits for in-flight envelopes to complete.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements queue.Publisher.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

// Len reports how many envelopes are waiting.
func (q *Queue) Len() int {
	return len(q.items)
}

// Ensure Queue implements both Publisher and Consumer interfaces.
var _ queue.Publisher = (*Queue)(nil)
var _ queue.Consumer = (*Queue)(nil)
