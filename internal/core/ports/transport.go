package ports

import (
	"context"
	"time"
)

// Message is what travels through the broker.
type Message struct {
	MessageID  string
	RoutingKey string
	Body       []byte
	Headers    map[string]string
	Timestamp  time.Time
}

// Delivery is one received message awaiting settlement.
// Exactly one of Ack or Nack should be called.
type Delivery interface {
	Message() Message
	// Attempt is 1 on first delivery and grows with each redelivery.
	Attempt() int
	Ack() error
	Nack(requeue bool) error
}

// DelayedNacker is implemented by deliveries whose broker can hold a
// requeued message back itself. The consumer is released immediately and the
// message keeps a single owner while it waits.
type DelayedNacker interface {
	NackWithDelay(delay time.Duration) error
}

// DeliveryHandler is called for every message taken off a queue.
type DeliveryHandler func(ctx context.Context, d Delivery)

// Transport owns the broker connection and its topology.
type Transport interface {
	// Publish routes msg through the shared exchange by msg.RoutingKey.
	Publish(ctx context.Context, msg Message) error

	// DeclareQueue creates a durable queue and binds it with routingKey.
	DeclareQueue(ctx context.Context, queue, routingKey string) error

	// Consume starts delivering messages from queue to handler until Close.
	Consume(ctx context.Context, queue string, handler DeliveryHandler) error

	Close() error
}
