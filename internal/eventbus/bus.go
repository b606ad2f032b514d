package eventbus

import (
	"EkgPlatform/internal/core/domain"
	"EkgPlatform/internal/core/ports"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// DefaultExchange is the direct exchange shared by all EKG services.
const DefaultExchange = "ekg_event_bus"

var (
	ErrMissingEnvelope = errors.New("eventbus: event has no identity; build it with domain.NewIntegrationEvent")
	ErrInvalidBinding  = errors.New("eventbus: handler binding needs a name and an Invoke func")
	ErrBusClosed       = errors.New("eventbus: bus is closed")
)

var tracer = otel.Tracer("EkgPlatform/internal/eventbus")

// UnroutablePolicy decides what happens to a message whose event has no handlers.
type UnroutablePolicy string

const (
	// UnroutableAck acknowledges and drops the message.
	UnroutableAck UnroutablePolicy = "ack"
	// UnroutableDeadLetter moves the message to the dead letter store.
	UnroutableDeadLetter UnroutablePolicy = "dead_letter"
)

// QueueState is the one-way declaration latch of an event name.
type QueueState int

const (
	StateUndeclared QueueState = iota
	StateDispatching
)

func (s QueueState) String() string {
	if s == StateDispatching {
		return "declared+dispatching"
	}
	return "undeclared"
}

// Options tunes the bus. Zero values fall back to sensible defaults.
type Options struct {
	Registry *Registry

	// MaxDeliveries bounds how often a failing message is delivered before it
	// is dead-lettered. Zero or less means redeliver forever.
	MaxDeliveries int
	RetryInitial  time.Duration
	RetryMax      time.Duration
	RetryJitter   float64

	Unroutable UnroutablePolicy

	DeadLetters ports.DeadLetterRepository
	Alerter     ports.Alerter
	Inbox       ports.Inbox
	Metrics     *Metrics
}

// Bus implements ports.EventBus on top of a ports.Transport.
type Bus struct {
	transport ports.Transport
	registry  *Registry
	handlers  *handlerRegistry
	retry     retryPolicy
	opts      Options
	log       zerolog.Logger

	// subMu serializes Subscribe so each queue is declared exactly once.
	subMu    sync.Mutex
	declared map[string]bool

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

var _ ports.EventBus = (*Bus)(nil)

// New creates a bus. The transport must already be connected.
func New(transport ports.Transport, opts Options, baseLogger *zerolog.Logger) *Bus {
	if opts.Registry == nil {
		opts.Registry = DefaultRegistry()
	}
	if opts.Unroutable == "" {
		opts.Unroutable = UnroutableAck
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		transport: transport,
		registry:  opts.Registry,
		handlers:  newHandlerRegistry(),
		retry:     retryPolicy{initial: opts.RetryInitial, max: opts.RetryMax, jitter: opts.RetryJitter},
		opts:      opts,
		log:       baseLogger.With().Str("component", "event_bus").Logger(),
		declared:  make(map[string]bool),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// QueueName is the durable queue consumed for an event name.
func QueueName(eventName string) string {
	return eventName + "_queue"
}

// Publish serializes event as flat JSON and routes it by its event name.
func (b *Bus) Publish(ctx context.Context, event domain.Event) error {
	if event == nil || event.ID() == uuid.Nil {
		return ErrMissingEnvelope
	}
	if b.ctx.Err() != nil {
		return ErrBusClosed
	}

	name := event.EventName()
	eventID := event.ID().String()
	log := b.log.With().Str("event", name).Str("event_id", eventID).Logger()

	ctx, span := tracer.Start(ctx, name+" publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", name),
			attribute.String("messaging.message.id", eventID),
		),
	)
	defer span.End()

	body, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("Failed to serialize event")
		span.SetStatus(codes.Error, err.Error())
		b.opts.Metrics.observePublish(name, err)
		return fmt.Errorf("serializing %s: %w", name, err)
	}

	headers := make(map[string]string)
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(headers))

	msg := ports.Message{
		MessageID:  eventID,
		RoutingKey: name,
		Body:       body,
		Headers:    headers,
		Timestamp:  event.CreationDate(),
	}
	if err := b.transport.Publish(ctx, msg); err != nil {
		log.Error().Err(err).Msg("Failed to publish event")
		span.SetStatus(codes.Error, err.Error())
		b.opts.Metrics.observePublish(name, err)
		return fmt.Errorf("publishing %s: %w", name, err)
	}

	b.opts.Metrics.observePublish(name, nil)
	log.Debug().Msg("Published event")
	return nil
}

// Subscribe records binding under eventName. The first subscription for a
// name declares and binds its queue and starts the dispatch loop; later ones
// only add handlers. Re-subscribing the same handler is a no-op.
func (b *Bus) Subscribe(ctx context.Context, eventName string, binding ports.HandlerBinding) error {
	if binding.Name == "" || binding.Invoke == nil {
		return ErrInvalidBinding
	}
	if !b.registry.Known(eventName) {
		return fmt.Errorf("%w: %s", ErrUnknownEvent, eventName)
	}
	if b.ctx.Err() != nil {
		return ErrBusClosed
	}

	log := b.log.With().Str("event", eventName).Str("handler", binding.Name).Logger()

	b.subMu.Lock()
	defer b.subMu.Unlock()

	if !b.handlers.add(eventName, binding) {
		log.Debug().Msg("Handler already subscribed")
		return nil
	}
	log.Info().Msg("Subscribed handler to event")

	if b.declared[eventName] {
		return nil
	}

	queue := QueueName(eventName)
	if err := b.transport.DeclareQueue(ctx, queue, eventName); err != nil {
		b.handlers.remove(eventName, binding.Name)
		log.Error().Err(err).Str("queue", queue).Msg("Failed to declare queue")
		return fmt.Errorf("declaring %s: %w", queue, err)
	}
	if err := b.transport.Consume(b.ctx, queue, b.dispatcher(eventName, queue)); err != nil {
		b.handlers.remove(eventName, binding.Name)
		log.Error().Err(err).Str("queue", queue).Msg("Failed to start consuming queue")
		return fmt.Errorf("consuming %s: %w", queue, err)
	}

	b.declared[eventName] = true
	log.Info().Str("queue", queue).Msg("Queue declared and dispatch loop started")
	return nil
}

// Unsubscribe removes the named handler. The queue keeps being consumed so
// buffered messages are not lost.
func (b *Bus) Unsubscribe(eventName string, handlerName string) {
	if b.handlers.remove(eventName, handlerName) {
		b.log.Info().Str("event", eventName).Str("handler", handlerName).Msg("Unsubscribed handler from event")
	}
}

// State reports whether a queue was declared for eventName.
func (b *Bus) State(eventName string) QueueState {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	if b.declared[eventName] {
		return StateDispatching
	}
	return StateUndeclared
}

// Subscriptions lists handler names per event name.
func (b *Bus) Subscriptions() map[string][]string {
	return b.handlers.names()
}

// Replay republishes a dead-lettered body under its original routing key.
func (b *Bus) Replay(ctx context.Context, dl *domain.DeadLetter) error {
	if b.ctx.Err() != nil {
		return ErrBusClosed
	}
	msg := ports.Message{
		MessageID:  dl.ID.String(),
		RoutingKey: dl.EventName,
		Body:       dl.Body,
		Headers:    map[string]string{"x-replayed-from": dl.ID.String()},
		Timestamp:  time.Now().UTC(),
	}
	if err := b.transport.Publish(ctx, msg); err != nil {
		b.log.Error().Err(err).Str("dead_letter_id", dl.ID.String()).Msg("Failed to replay dead letter")
		return fmt.Errorf("replaying %s: %w", dl.ID, err)
	}
	b.log.Info().Str("dead_letter_id", dl.ID.String()).Str("event", dl.EventName).Msg("Replayed dead letter")
	return nil
}

// Close stops the dispatch loops and closes the transport.
func (b *Bus) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.cancel()
		err = b.transport.Close()
		b.log.Info().Msg("Event bus closed")
	})
	return err
}
