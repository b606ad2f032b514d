package eventbus

import (
	"EkgPlatform/internal/core/domain"
	"EkgPlatform/internal/core/ports"
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// --- Mocks ---

// MockTransport
type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Publish(ctx context.Context, msg ports.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}
func (m *MockTransport) DeclareQueue(ctx context.Context, queue, routingKey string) error {
	args := m.Called(ctx, queue, routingKey)
	return args.Error(0)
}
func (m *MockTransport) Consume(ctx context.Context, queue string, handler ports.DeliveryHandler) error {
	args := m.Called(ctx, queue, handler)
	return args.Error(0)
}
func (m *MockTransport) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockDeadLetterRepository
type MockDeadLetterRepository struct {
	mock.Mock
}

func (m *MockDeadLetterRepository) Save(ctx context.Context, dl *domain.DeadLetter) error {
	args := m.Called(ctx, dl)
	return args.Error(0)
}
func (m *MockDeadLetterRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.DeadLetter, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DeadLetter), args.Error(1)
}
func (m *MockDeadLetterRepository) List(ctx context.Context, limit int) ([]*domain.DeadLetter, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.DeadLetter), args.Error(1)
}
func (m *MockDeadLetterRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockAlerter
type MockAlerter struct {
	mock.Mock
}

func (m *MockAlerter) Alert(ctx context.Context, dl *domain.DeadLetter) error {
	args := m.Called(ctx, dl)
	return args.Error(0)
}

// MockDelayedDelivery
type MockDelayedDelivery struct {
	mock.Mock
}

func (m *MockDelayedDelivery) Message() ports.Message {
	args := m.Called()
	return args.Get(0).(ports.Message)
}
func (m *MockDelayedDelivery) Attempt() int {
	args := m.Called()
	return args.Int(0)
}
func (m *MockDelayedDelivery) Ack() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockDelayedDelivery) Nack(requeue bool) error {
	args := m.Called(requeue)
	return args.Error(0)
}
func (m *MockDelayedDelivery) NackWithDelay(delay time.Duration) error {
	args := m.Called(delay)
	return args.Error(0)
}
