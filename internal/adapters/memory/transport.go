// Package memory provides an in-process broker with the same exchange, queue
// and acknowledgment semantics as the networked transports.
package memory

import (
	"EkgPlatform/internal/core/ports"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

var (
	ErrTransportClosed = errors.New("memory transport: closed")
	ErrUnknownQueue    = errors.New("memory transport: queue not declared")
	ErrAlreadySettled  = errors.New("memory transport: delivery already settled")
)

// QueueStats counts what happened to a queue's messages.
type QueueStats struct {
	Enqueued  int
	Delivered int
	Acked     int
	Requeued  int
	Discarded int
	Ready     int
}

// Transport is a direct exchange with durable-for-the-process queues.
type Transport struct {
	exchange string
	workers  int
	log      zerolog.Logger

	mu       sync.Mutex
	bindings map[string][]string // routing key -> queue names
	queues   map[string]*queue
	unrouted int
	closed   bool
	done     chan struct{}
}

var _ ports.Transport = (*Transport)(nil)

// NewTransport creates an empty broker. workers is the number of deliveries a
// single queue may have in flight at once (at least 1).
func NewTransport(exchange string, workers int, baseLogger *zerolog.Logger) *Transport {
	if workers < 1 {
		workers = 1
	}
	return &Transport{
		exchange: exchange,
		workers:  workers,
		log:      baseLogger.With().Str("component", "memory_transport").Str("exchange", exchange).Logger(),
		bindings: make(map[string][]string),
		queues:   make(map[string]*queue),
		done:     make(chan struct{}),
	}
}

// Exchange returns the exchange name messages are routed through.
func (t *Transport) Exchange() string {
	return t.exchange
}

// Publish copies msg into every queue bound with msg.RoutingKey.
// Messages without a bound queue are dropped.
func (t *Transport) Publish(ctx context.Context, msg ports.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTransportClosed
	}

	queues := t.bindings[msg.RoutingKey]
	if len(queues) == 0 {
		t.unrouted++
		t.log.Debug().Str("routing_key", msg.RoutingKey).Msg("No queue bound, message dropped")
		return nil
	}
	for _, name := range queues {
		t.queues[name].push(&entry{msg: cloneMessage(msg)}, false)
	}
	return nil
}

// DeclareQueue creates queue if needed and binds it with routingKey. It is idempotent.
func (t *Transport) DeclareQueue(ctx context.Context, queueName, routingKey string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTransportClosed
	}

	if _, ok := t.queues[queueName]; !ok {
		t.queues[queueName] = newQueue(queueName)
		t.log.Info().Str("queue", queueName).Msg("Queue declared")
	}
	for _, bound := range t.bindings[routingKey] {
		if bound == queueName {
			return nil
		}
	}
	t.bindings[routingKey] = append(t.bindings[routingKey], queueName)
	return nil
}

// Consume starts the queue's workers. It returns immediately.
func (t *Transport) Consume(ctx context.Context, queueName string, handler ports.DeliveryHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTransportClosed
	}
	q, ok := t.queues[queueName]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownQueue, queueName)
	}

	for w := 1; w <= t.workers; w++ {
		go t.work(ctx, q, handler)
	}
	t.log.Info().Str("queue", queueName).Int("workers", t.workers).Msg("Consumer started")
	return nil
}

func (t *Transport) work(ctx context.Context, q *queue, handler ports.DeliveryHandler) {
	for {
		e := q.pop(ctx.Done(), t.done)
		if e == nil {
			return
		}
		d := &delivery{q: q, e: e}
		handler(ctx, d)
		if !d.isSettled() {
			// An abandoned delivery goes back like it would on a dropped connection.
			q.push(e, true)
		}
	}
}

// Stats returns a snapshot of the queue's counters.
func (t *Transport) Stats(queueName string) QueueStats {
	t.mu.Lock()
	q, ok := t.queues[queueName]
	t.mu.Unlock()
	if !ok {
		return QueueStats{}
	}
	return q.snapshot()
}

// Unrouted is the number of published messages no queue was bound for.
func (t *Transport) Unrouted() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.unrouted
}

// Close stops all consumers. In-flight deliveries are abandoned.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	close(t.done)
	t.log.Info().Msg("Memory transport closed")
	return nil
}

func cloneMessage(msg ports.Message) ports.Message {
	out := msg
	out.Body = append([]byte(nil), msg.Body...)
	if msg.Headers != nil {
		out.Headers = make(map[string]string, len(msg.Headers))
		for k, v := range msg.Headers {
			out.Headers[k] = v
		}
	}
	return out
}
