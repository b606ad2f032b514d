// Package rabbitmq is the AMQP 0-9-1 transport: one direct exchange, one
// durable queue per event name, manual acknowledgment.
package rabbitmq

import (
	"EkgPlatform/internal/core/ports"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

var ErrTransportClosed = errors.New("rabbitmq transport: closed")

// Config describes the broker connection and topology.
type Config struct {
	URL             string
	Exchange        string
	ExchangeDurable bool
	Prefetch        int
}

// channel is the subset of *amqp.Channel the transport uses.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// Transport implements ports.Transport over RabbitMQ.
type Transport struct {
	cfg      Config
	log      zerolog.Logger
	attempts *attemptTracker

	// pubMu serializes publishing on the shared channel.
	pubMu   sync.Mutex
	publish channel
	consume channel
	conn    interface{ Close() error }

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

var _ ports.Transport = (*Transport)(nil)

// Dial connects to the broker, opens the publish and consume channels and
// declares the exchange. It fails fast when the broker is unreachable.
func Dial(cfg Config, baseLogger *zerolog.Logger) (*Transport, error) {
	log := baseLogger.With().Str("component", "rabbitmq_transport").Logger()

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		log.Error().Err(err).Msg("Failed to connect to RabbitMQ")
		return nil, fmt.Errorf("connecting to rabbitmq: %w", err)
	}

	pub, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening publish channel: %w", err)
	}
	sub, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening consume channel: %w", err)
	}

	t, err := newTransport(cfg, pub, sub, conn, baseLogger)
	if err != nil {
		conn.Close()
		return nil, err
	}

	go func() {
		if cerr, ok := <-conn.NotifyClose(make(chan *amqp.Error, 1)); ok && cerr != nil {
			log.Error().Str("reason", cerr.Reason).Int("code", cerr.Code).Msg("RabbitMQ connection lost")
		}
	}()
	return t, nil
}

func newTransport(cfg Config, pub, sub channel, conn interface{ Close() error }, baseLogger *zerolog.Logger) (*Transport, error) {
	if cfg.Prefetch < 1 {
		cfg.Prefetch = 1
	}
	t := &Transport{
		cfg:      cfg,
		log:      baseLogger.With().Str("component", "rabbitmq_transport").Str("exchange", cfg.Exchange).Logger(),
		attempts: newAttemptTracker(),
		publish:  pub,
		consume:  sub,
		conn:     conn,
	}

	if err := pub.ExchangeDeclare(cfg.Exchange, amqp.ExchangeDirect, cfg.ExchangeDurable, false, false, false, nil); err != nil {
		t.log.Error().Err(err).Msg("Failed to declare exchange")
		return nil, fmt.Errorf("declaring exchange %s: %w", cfg.Exchange, err)
	}
	if err := sub.Qos(cfg.Prefetch, 0, false); err != nil {
		t.log.Error().Err(err).Msg("Failed to set prefetch")
		return nil, fmt.Errorf("setting prefetch: %w", err)
	}

	t.log.Info().Bool("durable", cfg.ExchangeDurable).Int("prefetch", cfg.Prefetch).Msg("RabbitMQ transport ready")
	return t, nil
}

// Publish sends msg to the exchange as a persistent JSON message.
func (t *Transport) Publish(ctx context.Context, msg ports.Message) error {
	if t.isClosed() {
		return ErrTransportClosed
	}

	headers := make(amqp.Table, len(msg.Headers))
	for k, v := range msg.Headers {
		headers[k] = v
	}
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	t.pubMu.Lock()
	defer t.pubMu.Unlock()
	err := t.publish.PublishWithContext(ctx, t.cfg.Exchange, msg.RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.MessageID,
		Timestamp:    ts,
		Type:         msg.RoutingKey,
		Headers:      headers,
		Body:         msg.Body,
	})
	if err != nil {
		return fmt.Errorf("amqp publish: %w", err)
	}
	return nil
}

// DeclareQueue declares a durable, shared queue and binds it to the exchange.
func (t *Transport) DeclareQueue(ctx context.Context, queue, routingKey string) error {
	if t.isClosed() {
		return ErrTransportClosed
	}
	if _, err := t.consume.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declaring queue %s: %w", queue, err)
	}
	if err := t.consume.QueueBind(queue, routingKey, t.cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("binding queue %s to %s: %w", queue, routingKey, err)
	}
	t.log.Info().Str("queue", queue).Str("routing_key", routingKey).Msg("Queue declared and bound")
	return nil
}

// Consume starts prefetch-many workers that feed queue deliveries to handler.
func (t *Transport) Consume(ctx context.Context, queue string, handler ports.DeliveryHandler) error {
	if t.isClosed() {
		return ErrTransportClosed
	}
	deliveries, err := t.consume.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consuming %s: %w", queue, err)
	}

	log := t.log.With().Str("queue", queue).Logger()
	for w := 0; w < t.cfg.Prefetch; w++ {
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			t.work(ctx, log, deliveries, handler)
		}()
	}
	log.Info().Int("workers", t.cfg.Prefetch).Msg("Consumer started")
	return nil
}

func (t *Transport) work(ctx context.Context, log zerolog.Logger, deliveries <-chan amqp.Delivery, handler ports.DeliveryHandler) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-deliveries:
			if !ok {
				if !t.isClosed() {
					log.Warn().Msg("Delivery channel closed by broker")
				}
				return
			}
			handler(ctx, t.wrap(raw))
		}
	}
}

// Close closes both channels and the connection.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	errs := []error{t.consume.Close(), t.publish.Close()}
	if t.conn != nil {
		errs = append(errs, t.conn.Close())
	}
	t.wg.Wait()
	t.log.Info().Msg("RabbitMQ transport closed")
	return errors.Join(errs...)
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
