package app

import (
	"EkgPlatform/internal/core/domain"
	"EkgPlatform/internal/eventbus"
	"EkgPlatform/internal/shared/config"
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig() *config.Config {
	return &config.Config{
		ServiceName: "test",
		EventBus: config.EventBusConfig{
			Transport:     config.TransportMemory,
			Exchange:      eventbus.DefaultExchange,
			Prefetch:      1,
			MaxDeliveries: 5,
			Unroutable:    "ack",
		},
		Redis: config.RedisConfig{InboxTTL: time.Hour},
	}
}

func TestNew_MemoryTransportEndToEnd(t *testing.T) {
	// 1. Setup
	ctx := context.Background()
	nopLogger := zerolog.Nop()
	reg := prometheus.NewRegistry()

	a, err := New(ctx, memoryConfig(), reg, &nopLogger)
	require.NoError(t, err)
	defer a.Close()
	assert.Nil(t, a.DeadLetters)

	received := make(chan domain.PatientCreatedEvent, 1)
	require.NoError(t, a.Bus.Subscribe(ctx, domain.PatientCreatedEventName,
		eventbus.HandleFunc("capture", func(_ context.Context, ev domain.PatientCreatedEvent) error {
			received <- ev
			return nil
		})))

	// 2. Run
	sent := domain.PatientCreatedEvent{IntegrationEvent: domain.NewIntegrationEvent(), PatientID: 1, PatientCode: "P001"}
	require.NoError(t, a.Bus.Publish(ctx, sent))

	// 3. Verify
	select {
	case got := <-received:
		assert.Equal(t, sent.ID(), got.ID())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNewTransport_UnknownKind(t *testing.T) {
	nopLogger := zerolog.Nop()
	cfg := memoryConfig()
	cfg.EventBus.Transport = "kafka"

	_, err := NewTransport(context.Background(), cfg, &nopLogger)
	assert.Error(t, err)
}

func TestNew_RejectsBadEncryptionKey(t *testing.T) {
	nopLogger := zerolog.Nop()
	cfg := memoryConfig()
	cfg.Postgres.URL = "postgres://localhost:1/ekg"
	cfg.EncryptionKey = "zz"

	_, err := New(context.Background(), cfg, nil, &nopLogger)
	assert.Error(t, err)
}
