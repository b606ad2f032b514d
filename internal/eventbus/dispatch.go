package eventbus

import (
	"EkgPlatform/internal/core/domain"
	"EkgPlatform/internal/core/ports"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var errNoHandlers = errors.New("no handlers registered")

func (b *Bus) dispatcher(eventName, queue string) ports.DeliveryHandler {
	return func(ctx context.Context, d ports.Delivery) {
		b.dispatch(ctx, eventName, queue, d)
	}
}

// dispatch runs one delivery through decode, handler invocation and settlement.
func (b *Bus) dispatch(ctx context.Context, eventName, queue string, d ports.Delivery) {
	msg := d.Message()
	attempt := d.Attempt()
	log := b.log.With().
		Str("event", eventName).
		Str("queue", queue).
		Str("message_id", msg.MessageID).
		Int("attempt", attempt).
		Logger()

	ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(msg.Headers))
	ctx, span := tracer.Start(ctx, eventName+" process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", queue),
			attribute.String("messaging.message.id", msg.MessageID),
			attribute.Int("messaging.delivery.attempt", attempt),
		),
	)
	defer span.End()
	ctx = log.WithContext(ctx)

	bindings := b.handlers.snapshot(eventName)
	if len(bindings) == 0 {
		b.settleUnroutable(ctx, log, d, eventName, queue)
		return
	}

	event, err := b.registry.Decode(eventName, msg.Body)
	if err != nil {
		log.Error().Err(err).Msg("Undecodable message, moving to dead letters")
		span.SetStatus(codes.Error, err.Error())
		b.deadLetter(ctx, log, d, eventName, queue, domain.ReasonUndecodable, err)
		return
	}

	if err := b.invokeAll(ctx, log, eventName, event, bindings); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "handler failed")
		b.settleFailure(ctx, log, d, eventName, queue, err)
		return
	}

	b.ack(log, d, eventName)
}

// invokeAll awaits every binding in order. All handlers get their turn even
// when an earlier one fails; the joined error decides the settlement.
func (b *Bus) invokeAll(ctx context.Context, log zerolog.Logger, eventName string, event domain.Event, bindings []ports.HandlerBinding) error {
	eventID := event.ID().String()
	var errs []error

	for _, binding := range bindings {
		hlog := log.With().Str("handler", binding.Name).Logger()

		if b.opts.Inbox != nil {
			done, err := b.opts.Inbox.Processed(ctx, eventID, binding.Name)
			if err != nil {
				hlog.Warn().Err(err).Msg("Inbox lookup failed, invoking handler anyway")
			} else if done {
				hlog.Debug().Msg("Handler already processed this event, skipping")
				continue
			}
		}

		started := time.Now()
		err := invoke(hlog.WithContext(ctx), binding, event)
		if errors.Is(err, errHandlerUnavailable) {
			hlog.Debug().Msg("Handler not available, skipping")
			continue
		}
		b.opts.Metrics.observeHandler(eventName, binding.Name, started, err)
		if err != nil {
			hlog.Error().Err(err).Msg("Handler failed")
			errs = append(errs, fmt.Errorf("handler %s: %w", binding.Name, err))
			continue
		}

		if b.opts.Inbox != nil {
			if err := b.opts.Inbox.MarkProcessed(ctx, eventID, binding.Name); err != nil {
				hlog.Warn().Err(err).Msg("Failed to record handler in inbox")
			}
		}
	}
	return errors.Join(errs...)
}

// invoke turns a handler panic into an error so the loop keeps running.
func invoke(ctx context.Context, binding ports.HandlerBinding, event domain.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return binding.Invoke(ctx, event)
}

func (b *Bus) settleUnroutable(ctx context.Context, log zerolog.Logger, d ports.Delivery, eventName, queue string) {
	if b.opts.Unroutable == UnroutableDeadLetter {
		log.Warn().Msg("No handlers registered, moving message to dead letters")
		b.deadLetter(ctx, log, d, eventName, queue, domain.ReasonUnroutable, errNoHandlers)
		return
	}

	log.Warn().Msg("No handlers registered, acknowledging message without processing")
	if err := d.Ack(); err != nil {
		log.Error().Err(err).Msg("Failed to ack message")
	}
	b.opts.Metrics.observeDelivery(eventName, resultDropped)
}

// settleFailure requeues after the backoff delay, or dead-letters once the
// delivery budget is spent.
func (b *Bus) settleFailure(ctx context.Context, log zerolog.Logger, d ports.Delivery, eventName, queue string, cause error) {
	attempt := d.Attempt()
	if b.opts.MaxDeliveries > 0 && attempt >= b.opts.MaxDeliveries {
		log.Error().Err(cause).Int("max_deliveries", b.opts.MaxDeliveries).Msg("Delivery attempts exhausted, moving message to dead letters")
		b.deadLetter(ctx, log, d, eventName, queue, domain.ReasonHandlerFailed, cause)
		return
	}

	delay := b.retry.delay(attempt)
	log.Warn().Err(cause).Dur("retry_in", delay).Msg("Requeueing message")

	if dn, ok := d.(ports.DelayedNacker); ok && delay > 0 {
		if err := dn.NackWithDelay(delay); err != nil {
			log.Error().Err(err).Msg("Failed to nack message")
		}
		b.opts.Metrics.observeDelivery(eventName, resultRequeue)
		return
	}

	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			// Shutting down: leave the delivery unsettled, the broker redelivers it.
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	if err := d.Nack(true); err != nil {
		log.Error().Err(err).Msg("Failed to nack message")
	}
	b.opts.Metrics.observeDelivery(eventName, resultRequeue)
}

func (b *Bus) deadLetter(ctx context.Context, log zerolog.Logger, d ports.Delivery, eventName, queue string, reason domain.DeadLetterReason, cause error) {
	msg := d.Message()
	dl := &domain.DeadLetter{
		ID:        uuid.New(),
		EventName: eventName,
		Queue:     queue,
		MessageID: msg.MessageID,
		Body:      msg.Body,
		Reason:    reason,
		Error:     cause.Error(),
		Attempts:  d.Attempt(),
		FailedAt:  time.Now().UTC(),
	}
	log = log.With().Str("dead_letter_id", dl.ID.String()).Str("reason", string(reason)).Logger()

	if b.opts.DeadLetters != nil {
		if err := b.opts.DeadLetters.Save(ctx, dl); err != nil {
			// Keep the message on the broker rather than losing it.
			log.Error().Err(err).Msg("Failed to store dead letter, requeueing message")
			if err := d.Nack(true); err != nil {
				log.Error().Err(err).Msg("Failed to nack message")
			}
			b.opts.Metrics.observeDelivery(eventName, resultRequeue)
			return
		}
	} else {
		log.Error().Msg("No dead letter store configured, message discarded")
	}

	if b.opts.Alerter != nil {
		if err := b.opts.Alerter.Alert(ctx, dl); err != nil {
			log.Warn().Err(err).Msg("Failed to send dead letter alert")
		}
	}

	if err := d.Ack(); err != nil {
		log.Error().Err(err).Msg("Failed to ack dead-lettered message")
	}
	b.opts.Metrics.observeDelivery(eventName, resultDeadLetter)
}

func (b *Bus) ack(log zerolog.Logger, d ports.Delivery, eventName string) {
	if err := d.Ack(); err != nil {
		log.Error().Err(err).Msg("Failed to ack message")
		return
	}
	b.opts.Metrics.observeDelivery(eventName, resultAck)
	log.Debug().Msg("Message processed")
}
