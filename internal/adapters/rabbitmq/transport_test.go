package rabbitmq

import (
	"EkgPlatform/internal/core/ports"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- Mocks ---

// MockChannel
type MockChannel struct {
	mock.Mock
}

func (m *MockChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	return m.Called(name, kind, durable, autoDelete, internal, noWait, args).Error(0)
}
func (m *MockChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	a := m.Called(name, durable, autoDelete, exclusive, noWait, args)
	return amqp.Queue{Name: name}, a.Error(0)
}
func (m *MockChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	return m.Called(name, key, exchange, noWait, args).Error(0)
}
func (m *MockChannel) Qos(prefetchCount, prefetchSize int, global bool) error {
	return m.Called(prefetchCount, prefetchSize, global).Error(0)
}
func (m *MockChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	return m.Called(ctx, exchange, key, mandatory, immediate, msg).Error(0)
}
func (m *MockChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	a := m.Called(queue, consumer, autoAck, exclusive, noLocal, noWait, args)
	if a.Get(0) == nil {
		return nil, a.Error(1)
	}
	return a.Get(0).(<-chan amqp.Delivery), a.Error(1)
}
func (m *MockChannel) Close() error {
	return m.Called().Error(0)
}

// fakeAcknowledger records settlement calls made through amqp.Delivery.
type fakeAcknowledger struct {
	mu       sync.Mutex
	acks     []uint64
	nacks    []uint64
	requeues []bool
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks = append(f.acks, tag)
	return nil
}
func (f *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nacks = append(f.nacks, tag)
	f.requeues = append(f.requeues, requeue)
	return nil
}
func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return f.Nack(tag, false, requeue)
}

func (f *fakeAcknowledger) ackCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.acks)
}

func setupTransport(t *testing.T, cfg Config) (*Transport, *MockChannel, *MockChannel) {
	t.Helper()
	nopLogger := zerolog.Nop()
	pub, sub := new(MockChannel), new(MockChannel)

	pub.On("ExchangeDeclare", cfg.Exchange, "direct", cfg.ExchangeDurable, false, false, false, amqp.Table(nil)).Return(nil).Once()
	prefetch := cfg.Prefetch
	if prefetch < 1 {
		prefetch = 1
	}
	sub.On("Qos", prefetch, 0, false).Return(nil).Once()

	tr, err := newTransport(cfg, pub, sub, nil, &nopLogger)
	require.NoError(t, err)
	return tr, pub, sub
}

func TestNewTransport_DeclaresNonDurableDirectExchange(t *testing.T) {
	_, pub, sub := setupTransport(t, Config{Exchange: "ekg_event_bus", Prefetch: 4})
	pub.AssertExpectations(t)
	sub.AssertExpectations(t)
}

func TestNewTransport_ExchangeFailure(t *testing.T) {
	nopLogger := zerolog.Nop()
	pub, sub := new(MockChannel), new(MockChannel)
	pub.On("ExchangeDeclare", "ekg_event_bus", "direct", false, false, false, false, amqp.Table(nil)).
		Return(errors.New("ACCESS_REFUSED")).Once()

	_, err := newTransport(Config{Exchange: "ekg_event_bus"}, pub, sub, nil, &nopLogger)
	assert.Error(t, err)
	sub.AssertNotCalled(t, "Qos", mock.Anything, mock.Anything, mock.Anything)
}

func TestTransport_PublishUsesExchangeAndRoutingKey(t *testing.T) {
	// 1. Setup
	tr, pub, _ := setupTransport(t, Config{Exchange: "ekg_event_bus"})
	ts := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)

	var sent amqp.Publishing
	pub.On("PublishWithContext", mock.Anything, "ekg_event_bus", "AnalysisCompletedEvent", false, false, mock.AnythingOfType("amqp091.Publishing")).
		Run(func(args mock.Arguments) { sent = args.Get(5).(amqp.Publishing) }).
		Return(nil).Once()

	// 2. Run
	err := tr.Publish(context.Background(), ports.Message{
		MessageID:  "id-1",
		RoutingKey: "AnalysisCompletedEvent",
		Body:       []byte(`{"AnalysisResultId":42}`),
		Headers:    map[string]string{"traceparent": "00-abc-def-01"},
		Timestamp:  ts,
	})

	// 3. Verify
	require.NoError(t, err)
	pub.AssertExpectations(t)
	assert.Equal(t, amqp.Persistent, sent.DeliveryMode)
	assert.Equal(t, "application/json", sent.ContentType)
	assert.Equal(t, "id-1", sent.MessageId)
	assert.Equal(t, ts, sent.Timestamp)
	assert.Equal(t, "00-abc-def-01", sent.Headers["traceparent"])
	assert.JSONEq(t, `{"AnalysisResultId":42}`, string(sent.Body))
}

func TestTransport_PublishPropagatesBrokerError(t *testing.T) {
	tr, pub, _ := setupTransport(t, Config{Exchange: "ekg_event_bus"})
	pub.On("PublishWithContext", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(amqp.ErrClosed).Once()

	err := tr.Publish(context.Background(), ports.Message{RoutingKey: "PatientCreatedEvent"})
	assert.ErrorIs(t, err, amqp.ErrClosed)
}

func TestTransport_DeclareQueueIsDurableAndBound(t *testing.T) {
	tr, _, sub := setupTransport(t, Config{Exchange: "ekg_event_bus"})
	sub.On("QueueDeclare", "AnalysisCompletedEvent_queue", true, false, false, false, amqp.Table(nil)).Return(nil).Once()
	sub.On("QueueBind", "AnalysisCompletedEvent_queue", "AnalysisCompletedEvent", "ekg_event_bus", false, amqp.Table(nil)).Return(nil).Once()

	require.NoError(t, tr.DeclareQueue(context.Background(), "AnalysisCompletedEvent_queue", "AnalysisCompletedEvent"))
	sub.AssertExpectations(t)
}

func TestTransport_ConsumeDeliversAndSettles(t *testing.T) {
	// 1. Setup
	tr, pub, sub := setupTransport(t, Config{Exchange: "ekg_event_bus", Prefetch: 1})
	raw := make(chan amqp.Delivery, 3)
	sub.On("Consume", "AnalysisCompletedEvent_queue", "", false, false, false, false, amqp.Table(nil)).
		Return((<-chan amqp.Delivery)(raw), nil).Once()

	ack := &fakeAcknowledger{}
	var mu sync.Mutex
	var attempts []int
	handler := func(ctx context.Context, d ports.Delivery) {
		mu.Lock()
		attempts = append(attempts, d.Attempt())
		n := len(attempts)
		mu.Unlock()
		if n < 3 {
			assert.NoError(t, d.Nack(true))
			return
		}
		assert.NoError(t, d.Ack())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, tr.Consume(ctx, "AnalysisCompletedEvent_queue", handler))

	// 2. Run: a classic queue redelivers the same message id.
	for tag := uint64(1); tag <= 3; tag++ {
		raw <- amqp.Delivery{
			Acknowledger: ack,
			DeliveryTag:  tag,
			MessageId:    "evt-1",
			RoutingKey:   "AnalysisCompletedEvent",
			Redelivered:  tag > 1,
			Body:         []byte(`{}`),
		}
	}

	// 3. Verify
	require.Eventually(t, func() bool { return ack.ackCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, []int{1, 2, 3}, attempts)
	mu.Unlock()
	assert.Equal(t, []bool{true, true}, ack.requeues)
	assert.Zero(t, tr.attempts.len())

	cancel()
	sub.On("Close").Return(nil).Once()
	pub.On("Close").Return(nil).Once()
	require.NoError(t, tr.Close())
	assert.ErrorIs(t, tr.Publish(context.Background(), ports.Message{}), ErrTransportClosed)
}

func TestDelivery_AttemptFromQuorumHeader(t *testing.T) {
	tr, _, _ := setupTransport(t, Config{Exchange: "ekg_event_bus"})

	d := tr.wrap(amqp.Delivery{
		MessageId:   "evt-2",
		Redelivered: true,
		Headers:     amqp.Table{deliveryCountHeader: int64(4), "traceparent": "tp"},
	})
	assert.Equal(t, 5, d.Attempt())
	assert.Equal(t, "tp", d.Message().Headers["traceparent"])
	assert.Zero(t, tr.attempts.len())
}

func TestDelivery_SettlesOnce(t *testing.T) {
	tr, _, _ := setupTransport(t, Config{Exchange: "ekg_event_bus"})
	ack := &fakeAcknowledger{}

	d := tr.wrap(amqp.Delivery{Acknowledger: ack, DeliveryTag: 9, MessageId: "evt-3"})
	require.NoError(t, d.Ack())
	assert.Error(t, d.Ack())
	assert.Error(t, d.Nack(true))
	assert.Equal(t, []uint64{9}, ack.acks)
}

func TestAttemptTracker_HashesBodyWithoutMessageID(t *testing.T) {
	a := newAttemptTracker()
	first := amqp.Delivery{RoutingKey: "PatientCreatedEvent", Body: []byte(`{"PatientId":1}`)}
	other := amqp.Delivery{RoutingKey: "PatientCreatedEvent", Body: []byte(`{"PatientId":2}`)}

	assert.NotEqual(t, trackingKey(first), trackingKey(other))
	assert.Equal(t, 1, a.next(trackingKey(first), false))
	assert.Equal(t, 2, a.next(trackingKey(first), true))
	// Redelivered before this process saw it.
	assert.Equal(t, 2, a.next(trackingKey(other), true))
}
