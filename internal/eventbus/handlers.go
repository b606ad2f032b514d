package eventbus

import (
	"EkgPlatform/internal/core/domain"
	"EkgPlatform/internal/core/ports"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// errHandlerUnavailable means the factory had no handler for this delivery.
// Dispatch skips the binding without recording it as processed.
var errHandlerUnavailable = errors.New("handler not available")

// handlerRegistry is the per-event ordered list of handler bindings.
// Subscribe/Unsubscribe write it while dispatch goroutines read it.
type handlerRegistry struct {
	mu       sync.RWMutex
	bindings map[string][]ports.HandlerBinding
}

func newHandlerRegistry() *handlerRegistry {
	return &handlerRegistry{bindings: make(map[string][]ports.HandlerBinding)}
}

// add appends binding unless a binding with the same name exists.
// It reports whether the binding was added.
func (r *handlerRegistry) add(eventName string, binding ports.HandlerBinding) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.bindings[eventName] {
		if existing.Name == binding.Name {
			return false
		}
	}
	r.bindings[eventName] = append(r.bindings[eventName], binding)
	return true
}

// remove deletes the named binding; the event entry goes away with its last binding.
func (r *handlerRegistry) remove(eventName, handlerName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.bindings[eventName]
	for i, existing := range current {
		if existing.Name != handlerName {
			continue
		}
		next := make([]ports.HandlerBinding, 0, len(current)-1)
		next = append(next, current[:i]...)
		next = append(next, current[i+1:]...)
		if len(next) == 0 {
			delete(r.bindings, eventName)
		} else {
			r.bindings[eventName] = next
		}
		return true
	}
	return false
}

// snapshot returns a copy that is safe to iterate without the lock.
func (r *handlerRegistry) snapshot(eventName string) []ports.HandlerBinding {
	r.mu.RLock()
	defer r.mu.RUnlock()

	current := r.bindings[eventName]
	if len(current) == 0 {
		return nil
	}
	out := make([]ports.HandlerBinding, len(current))
	copy(out, current)
	return out
}

func (r *handlerRegistry) names() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string][]string, len(r.bindings))
	for eventName, bindings := range r.bindings {
		handlerNames := make([]string, 0, len(bindings))
		for _, b := range bindings {
			handlerNames = append(handlerNames, b.Name)
		}
		sort.Strings(handlerNames)
		out[eventName] = handlerNames
	}
	return out
}

// Bind builds a binding that resolves a fresh handler for every delivery
// through factory. A nil handler from the factory means "not available": the
// binding is skipped for that delivery and runs again on redelivery.
func Bind[T domain.Event](name string, factory func() (ports.IntegrationEventHandler[T], error)) ports.HandlerBinding {
	return ports.HandlerBinding{
		Name: name,
		Invoke: func(ctx context.Context, event domain.Event) error {
			typed, ok := event.(T)
			if !ok {
				return fmt.Errorf("handler %s cannot handle %s", name, event.EventName())
			}
			handler, err := factory()
			if err != nil {
				return fmt.Errorf("resolving handler %s: %w", name, err)
			}
			if handler == nil {
				return errHandlerUnavailable
			}
			return handler.Handle(ctx, typed)
		},
	}
}

// Handle binds a long-lived handler instance, named after its type.
func Handle[T domain.Event](handler ports.IntegrationEventHandler[T]) ports.HandlerBinding {
	name := fmt.Sprintf("%T", handler)
	return Bind[T](name, func() (ports.IntegrationEventHandler[T], error) {
		return handler, nil
	})
}

// HandleFunc binds a plain function under an explicit name.
func HandleFunc[T domain.Event](name string, fn func(ctx context.Context, event T) error) ports.HandlerBinding {
	return Bind[T](name, func() (ports.IntegrationEventHandler[T], error) {
		return handlerFunc[T](fn), nil
	})
}

type handlerFunc[T domain.Event] func(ctx context.Context, event T) error

func (f handlerFunc[T]) Handle(ctx context.Context, event T) error {
	return f(ctx, event)
}
