package ports

import (
	"EkgPlatform/internal/core/domain"
	"context"

	"github.com/google/uuid"
)

// DeadLetterRepository persists messages that exhausted their deliveries.
type DeadLetterRepository interface {
	Save(ctx context.Context, dl *domain.DeadLetter) error

	// GetByID returns nil, nil when the record does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.DeadLetter, error)

	// List returns the newest records first.
	List(ctx context.Context, limit int) ([]*domain.DeadLetter, error)

	Delete(ctx context.Context, id uuid.UUID) error
}

// Alerter notifies operators that a message was dead-lettered.
type Alerter interface {
	Alert(ctx context.Context, dl *domain.DeadLetter) error
}
