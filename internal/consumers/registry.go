// Package consumers holds the integration-event handlers of the EKG services.
// Each service package registers its handlers from init(); cmd/server blank
// imports the packages it hosts and calls SubscribeAll.
package consumers

import (
	"EkgPlatform/internal/core/ports"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// SignalStore tracks which EKG signals have a completed analysis.
type SignalStore interface {
	// MarkProcessed reports false when the signal is unknown.
	MarkProcessed(ctx context.Context, signalID int) (bool, error)
}

// Deps are the collaborators handed to every handler constructor.
type Deps struct {
	Signals    SignalStore
	BaseLogger *zerolog.Logger
}

// Constructor builds a handler binding from its dependencies.
type Constructor func(deps Deps) ports.HandlerBinding

// Registration ties a constructor to the service hosting it and the event it handles.
type Registration struct {
	Service   string
	EventName string
	New       Constructor
}

var (
	mu       sync.Mutex
	registry []Registration
)

// Register is called by handler packages in their init() function.
func Register(r Registration) {
	mu.Lock()
	defer mu.Unlock()
	registry = append(registry, r)
}

// Registered returns a copy of every registration, ordered by service.
func Registered() []Registration {
	mu.Lock()
	defer mu.Unlock()
	out := make([]Registration, len(registry))
	copy(out, registry)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Service < out[j].Service })
	return out
}

// SubscribeAll builds every registered handler and subscribes it to bus.
func SubscribeAll(ctx context.Context, bus ports.EventBus, deps Deps) error {
	log := deps.BaseLogger.With().Str("component", "consumer_registry").Logger()

	for _, r := range Registered() {
		binding := r.New(deps)
		if err := bus.Subscribe(ctx, r.EventName, binding); err != nil {
			log.Error().Err(err).Str("service", r.Service).Str("event", r.EventName).Msg("Failed to subscribe handler")
			return fmt.Errorf("subscribing %s handler for %s: %w", r.Service, r.EventName, err)
		}
		log.Info().Str("service", r.Service).Str("event", r.EventName).Str("handler", binding.Name).Msg("Registered handler")
	}
	return nil
}
