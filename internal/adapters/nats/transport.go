// Package nats is a JetStream transport. The exchange becomes a stream over
// "<exchange>.>" and each queue becomes a durable consumer filtered on one
// routing key.
package nats

import (
	"EkgPlatform/internal/core/ports"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

var ErrTransportClosed = errors.New("nats transport: closed")

// Config describes the NATS connection and stream.
type Config struct {
	URL      string
	Stream   string
	Name     string
	Prefetch int
	AckWait  time.Duration
}

// Transport implements ports.Transport over JetStream.
type Transport struct {
	cfg Config
	log zerolog.Logger
	nc  *nats.Conn
	js  jetstream.JetStream

	mu        sync.Mutex
	consumers map[string]jetstream.Consumer
	running   []jetstream.ConsumeContext
	closed    bool
}

var _ ports.Transport = (*Transport)(nil)

// Connect dials NATS with automatic reconnection and ensures the stream exists.
func Connect(ctx context.Context, cfg Config, baseLogger *zerolog.Logger) (*Transport, error) {
	log := baseLogger.With().Str("component", "nats_transport").Str("stream", cfg.Stream).Logger()
	if cfg.Prefetch < 1 {
		cfg.Prefetch = 1
	}
	if cfg.AckWait <= 0 {
		cfg.AckWait = 30 * time.Second
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("Disconnected from NATS")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("Reconnected to NATS")
		}),
	)
	if err != nil {
		log.Error().Err(err).Msg("Failed to connect to NATS")
		return nil, fmt.Errorf("connecting to NATS at %s: %w", cfg.URL, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("opening jetstream: %w", err)
	}

	// Interest retention drops messages no consumer is filtered on, like an
	// unbound routing key on a direct exchange.
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      cfg.Stream,
		Subjects:  []string{cfg.Stream + ".>"},
		Retention: jetstream.InterestPolicy,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		nc.Close()
		log.Error().Err(err).Msg("Failed to create stream")
		return nil, fmt.Errorf("creating stream %s: %w", cfg.Stream, err)
	}

	log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS transport ready")
	return &Transport{
		cfg:       cfg,
		log:       log,
		nc:        nc,
		js:        js,
		consumers: make(map[string]jetstream.Consumer),
	}, nil
}

func (t *Transport) subject(routingKey string) string {
	return t.cfg.Stream + "." + routingKey
}

// Publish stores msg on the stream. The message id doubles as the JetStream
// deduplication id.
func (t *Transport) Publish(ctx context.Context, msg ports.Message) error {
	if t.isClosed() {
		return ErrTransportClosed
	}

	out := nats.NewMsg(t.subject(msg.RoutingKey))
	out.Data = msg.Body
	for k, v := range msg.Headers {
		out.Header.Set(k, v)
	}

	var opts []jetstream.PublishOpt
	if msg.MessageID != "" {
		opts = append(opts, jetstream.WithMsgID(msg.MessageID))
	}
	if _, err := t.js.PublishMsg(ctx, out, opts...); err != nil {
		return fmt.Errorf("jetstream publish: %w", err)
	}
	return nil
}

// DeclareQueue creates or updates a durable consumer named queue.
func (t *Transport) DeclareQueue(ctx context.Context, queue, routingKey string) error {
	if t.isClosed() {
		return ErrTransportClosed
	}

	cons, err := t.js.CreateOrUpdateConsumer(ctx, t.cfg.Stream, jetstream.ConsumerConfig{
		Durable:       queue,
		FilterSubject: t.subject(routingKey),
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       t.cfg.AckWait,
		MaxAckPending: t.cfg.Prefetch,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("declaring consumer %s: %w", queue, err)
	}

	t.mu.Lock()
	t.consumers[queue] = cons
	t.mu.Unlock()

	t.log.Info().Str("queue", queue).Str("routing_key", routingKey).Msg("Consumer declared")
	return nil
}

// Consume pulls from the declared consumer until ctx is done or the
// transport closes. Deliveries are handled one at a time.
func (t *Transport) Consume(ctx context.Context, queue string, handler ports.DeliveryHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTransportClosed
	}
	cons, ok := t.consumers[queue]
	if !ok {
		return fmt.Errorf("consumer %s not declared", queue)
	}

	log := t.log.With().Str("queue", queue).Logger()
	cc, err := cons.Consume(func(m jetstream.Msg) {
		handler(ctx, newDelivery(m))
	},
		jetstream.PullMaxMessages(t.cfg.Prefetch),
		jetstream.ConsumeErrHandler(func(_ jetstream.ConsumeContext, err error) {
			log.Warn().Err(err).Msg("Consume error")
		}),
	)
	if err != nil {
		return fmt.Errorf("consuming %s: %w", queue, err)
	}
	t.running = append(t.running, cc)

	go func() {
		select {
		case <-ctx.Done():
			cc.Stop()
		case <-cc.Closed():
		}
	}()

	log.Info().Msg("Consumer started")
	return nil
}

// Close stops the consumers and closes the connection.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	running := t.running
	t.running = nil
	t.mu.Unlock()

	for _, cc := range running {
		cc.Stop()
	}
	t.nc.Close()
	t.log.Info().Msg("NATS transport closed")
	return nil
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
