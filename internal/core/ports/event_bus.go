package ports

import (
	"EkgPlatform/internal/core/domain"
	"context"
)

// HandlerFunc processes one decoded integration event.
type HandlerFunc func(ctx context.Context, event domain.Event) error

// HandlerBinding associates a handler with an event name.
// Name is the handler's identity: a name appears at most once per event.
type HandlerBinding struct {
	Name   string
	Invoke HandlerFunc
}

// IntegrationEventHandler is implemented by service-side handlers of a single event type.
type IntegrationEventHandler[T domain.Event] interface {
	Handle(ctx context.Context, event T) error
}

// EventBus is the publish/subscribe facade shared by every service.
type EventBus interface {
	// Publish serializes the event and hands it to the broker, routed by its name.
	// It does not wait for consumers and does not retry.
	Publish(ctx context.Context, event domain.Event) error

	// Subscribe binds a handler to an event name. The first subscription for a
	// name declares its durable queue and starts consuming it.
	Subscribe(ctx context.Context, eventName string, binding HandlerBinding) error

	// Unsubscribe removes a handler. The queue stays declared and consumed.
	Unsubscribe(eventName string, handlerName string)

	// Close stops consuming and releases the transport.
	Close() error
}
