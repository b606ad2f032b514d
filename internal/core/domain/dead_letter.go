package domain

import (
	"time"

	"github.com/google/uuid"
)

// DeadLetterReason classifies why a message left the normal dispatch path.
type DeadLetterReason string

const (
	ReasonHandlerFailed DeadLetterReason = "handler_failed"
	ReasonUndecodable   DeadLetterReason = "undecodable"
	ReasonUnroutable    DeadLetterReason = "unroutable"
)

// DeadLetter is a message that was given up on, kept for inspection and replay.
type DeadLetter struct {
	ID        uuid.UUID        `json:"id"`
	EventName string           `json:"event_name"`
	Queue     string           `json:"queue"`
	MessageID string           `json:"message_id"`
	Body      []byte           `json:"body"` // Encrypted at rest
	Reason    DeadLetterReason `json:"reason"`
	Error     string           `json:"error"`
	Attempts  int              `json:"attempts"`
	FailedAt  time.Time        `json:"failed_at"`
}
