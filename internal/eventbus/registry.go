package eventbus

import (
	"EkgPlatform/internal/core/domain"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrUnknownEvent is returned for event names missing from the registry.
	ErrUnknownEvent = errors.New("eventbus: unknown event name")
	// ErrDuplicateEvent is returned when an event name is registered twice.
	ErrDuplicateEvent = errors.New("eventbus: event name already registered")
)

// DecodeFunc turns a message body into a concrete event.
type DecodeFunc func(body []byte) (domain.Event, error)

// Registry maps logical event names to their decoders.
type Registry struct {
	mu       sync.RWMutex
	decoders map[string]DecodeFunc
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{decoders: make(map[string]DecodeFunc)}
}

// DefaultRegistry knows every event exchanged by the EKG services.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	mustRegister[domain.PatientCreatedEvent](r)
	mustRegister[domain.EkgSignalProcessedEvent](r)
	mustRegister[domain.AnalysisCompletedEvent](r)
	mustRegister[domain.BatchJobCompletedEvent](r)
	return r
}

// Register adds event type T under the name reported by its EventName method.
func Register[T domain.Event](r *Registry) error {
	var zero T
	name := zero.EventName()
	return r.add(name, func(body []byte) (domain.Event, error) {
		var ev T
		if err := json.Unmarshal(body, &ev); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", name, err)
		}
		return ev, nil
	})
}

func mustRegister[T domain.Event](r *Registry) {
	if err := Register[T](r); err != nil {
		panic(err)
	}
}

func (r *Registry) add(name string, decode DecodeFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.decoders[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateEvent, name)
	}
	r.decoders[name] = decode
	return nil
}

// Known reports whether name has a decoder.
func (r *Registry) Known(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.decoders[name]
	return ok
}

// Decode deserializes body as the event registered under name.
func (r *Registry) Decode(name string, body []byte) (domain.Event, error) {
	r.mu.RLock()
	decode, ok := r.decoders[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, name)
	}
	return decode(body)
}

// Names lists registered event names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.decoders))
	for name := range r.decoders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
