package domain

import (
	"time"

	"github.com/google/uuid"
)

// Event is implemented by every integration event variant.
type Event interface {
	// EventName is the bare type name used as routing key and registry key.
	EventName() string
	ID() uuid.UUID
	CreationDate() time.Time
}

// IntegrationEvent is the identity envelope embedded in every event.
// Its fields can only be set by NewIntegrationEvent or by decoding a message.
type IntegrationEvent struct {
	id           uuid.UUID
	creationDate time.Time
}

// NewIntegrationEvent stamps a fresh random ID and the current UTC time.
func NewIntegrationEvent() IntegrationEvent {
	return IntegrationEvent{
		id:           uuid.New(),
		creationDate: time.Now().UTC(),
	}
}

// ID returns the event's unique identifier.
func (e IntegrationEvent) ID() uuid.UUID {
	return e.id
}

// CreationDate returns when the event was constructed (UTC).
func (e IntegrationEvent) CreationDate() time.Time {
	return e.creationDate
}

// IsZero reports whether the envelope was never stamped.
func (e IntegrationEvent) IsZero() bool {
	return e.id == uuid.Nil
}

// envelope is the wire shape of IntegrationEvent. It is embedded next to
// the payload fields so the JSON stays flat.
type envelope struct {
	ID           uuid.UUID `json:"Id"`
	CreationDate time.Time `json:"CreationDate"`
}

func (e IntegrationEvent) wire() envelope {
	return envelope{ID: e.id, CreationDate: e.creationDate}
}

func (w envelope) restore() IntegrationEvent {
	return IntegrationEvent{id: w.ID, creationDate: w.CreationDate.UTC()}
}
