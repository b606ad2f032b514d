package consumers_test

import (
	"EkgPlatform/internal/adapters/memory"
	"EkgPlatform/internal/consumers"
	"EkgPlatform/internal/consumers/ekgsignal"
	"EkgPlatform/internal/core/domain"
	"EkgPlatform/internal/core/ports"
	"EkgPlatform/internal/eventbus"
	"context"
	"errors"
	"testing"
	"time"

	_ "EkgPlatform/internal/consumers/batch"
	_ "EkgPlatform/internal/consumers/patient"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- Mocks ---

// MockEventBus
type MockEventBus struct {
	mock.Mock
}

func (m *MockEventBus) Publish(ctx context.Context, event domain.Event) error {
	return m.Called(ctx, event).Error(0)
}
func (m *MockEventBus) Subscribe(ctx context.Context, eventName string, binding ports.HandlerBinding) error {
	return m.Called(ctx, eventName, binding).Error(0)
}
func (m *MockEventBus) Unsubscribe(eventName, handlerName string) {
	m.Called(eventName, handlerName)
}
func (m *MockEventBus) Close() error {
	return m.Called().Error(0)
}

func TestRegistered_ContainsEveryService(t *testing.T) {
	var services []string
	for _, r := range consumers.Registered() {
		services = append(services, r.Service)
		assert.Equal(t, domain.AnalysisCompletedEventName, r.EventName)
	}
	assert.Equal(t, []string{"batch", "ekgsignal", "patient"}, services)
}

func TestSubscribeAll_DispatchesToEveryService(t *testing.T) {
	// 1. Setup
	ctx := context.Background()
	nopLogger := zerolog.Nop()
	tr := memory.NewTransport(eventbus.DefaultExchange, 1, &nopLogger)
	bus := eventbus.New(tr, eventbus.Options{}, &nopLogger)
	defer bus.Close()

	signals := ekgsignal.NewMemoryStore(17)
	require.NoError(t, consumers.SubscribeAll(ctx, bus, consumers.Deps{Signals: signals, BaseLogger: &nopLogger}))
	assert.Len(t, bus.Subscriptions()[domain.AnalysisCompletedEventName], 3)

	// 2. Run
	require.NoError(t, bus.Publish(ctx, domain.AnalysisCompletedEvent{
		IntegrationEvent: domain.NewIntegrationEvent(),
		AnalysisResultID: 42,
		PatientCode:      "P001",
		SignalReference:  "17",
		HeartRate:        72.5,
		AnalyzedAt:       time.Now().UTC(),
	}))

	// 3. Verify
	queue := eventbus.QueueName(domain.AnalysisCompletedEventName)
	require.Eventually(t, func() bool { return tr.Stats(queue).Acked == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, signals.IsProcessed(17))
	assert.Zero(t, tr.Stats(queue).Requeued)
}

func TestSubscribeAll_StopsOnSubscribeError(t *testing.T) {
	nopLogger := zerolog.Nop()
	bus := new(MockEventBus)
	bus.On("Subscribe", mock.Anything, domain.AnalysisCompletedEventName, mock.Anything).
		Return(errors.New("broker unreachable")).Once()

	err := consumers.SubscribeAll(context.Background(), bus, consumers.Deps{BaseLogger: &nopLogger})
	assert.Error(t, err)
	bus.AssertNumberOfCalls(t, "Subscribe", 1)
}
