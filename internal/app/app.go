// Package app builds the event bus and its collaborators from configuration.
// Both cmd/server and cmd/ekgctl use it.
package app

import (
	"EkgPlatform/internal/adapters/memory"
	natstransport "EkgPlatform/internal/adapters/nats"
	"EkgPlatform/internal/adapters/postgres"
	"EkgPlatform/internal/adapters/rabbitmq"
	redisinbox "EkgPlatform/internal/adapters/redis"
	"EkgPlatform/internal/adapters/security"
	"EkgPlatform/internal/adapters/telegram"
	"EkgPlatform/internal/core/ports"
	"EkgPlatform/internal/eventbus"
	"EkgPlatform/internal/shared/config"
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// App owns the bus and everything that has to be closed with it.
type App struct {
	Bus         *eventbus.Bus
	DeadLetters ports.DeadLetterRepository

	closers []func() error
	log     zerolog.Logger
}

// NewTransport connects the broker selected by EVENTBUS_TRANSPORT.
func NewTransport(ctx context.Context, cfg *config.Config, baseLogger *zerolog.Logger) (ports.Transport, error) {
	switch cfg.EventBus.Transport {
	case config.TransportRabbitMQ:
		t, err := rabbitmq.Dial(rabbitmq.Config{
			URL:             cfg.EventBus.URL,
			Exchange:        cfg.EventBus.Exchange,
			ExchangeDurable: cfg.EventBus.ExchangeDurable,
			Prefetch:        cfg.EventBus.Prefetch,
		}, baseLogger)
		if err != nil {
			return nil, err
		}
		return t, nil
	case config.TransportNATS:
		t, err := natstransport.Connect(ctx, natstransport.Config{
			URL:      cfg.EventBus.URL,
			Stream:   cfg.EventBus.Exchange,
			Name:     cfg.ServiceName,
			Prefetch: cfg.EventBus.Prefetch,
		}, baseLogger)
		if err != nil {
			return nil, err
		}
		return t, nil
	case config.TransportMemory:
		return memory.NewTransport(cfg.EventBus.Exchange, cfg.EventBus.Prefetch, baseLogger), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.EventBus.Transport)
	}
}

// New wires transport, dead-letter store, alerter, inbox and metrics into a bus.
// reg may be nil when metrics are not exported.
func New(ctx context.Context, cfg *config.Config, reg prometheus.Registerer, baseLogger *zerolog.Logger) (*App, error) {
	a := &App{log: baseLogger.With().Str("component", "app").Logger()}

	opts := eventbus.Options{
		MaxDeliveries: cfg.EventBus.MaxDeliveries,
		RetryInitial:  cfg.EventBus.RetryInitial,
		RetryMax:      cfg.EventBus.RetryMax,
		RetryJitter:   0.2,
		Unroutable:    eventbus.UnroutablePolicy(cfg.EventBus.Unroutable),
	}

	if cfg.Postgres.URL != "" {
		deadLetters, err := a.openDeadLetters(ctx, cfg, baseLogger)
		if err != nil {
			a.Close()
			return nil, err
		}
		opts.DeadLetters = deadLetters
		a.DeadLetters = deadLetters
	} else {
		a.log.Warn().Msg("DATABASE_URL not set, dead letters are only logged")
	}

	if cfg.Telegram.Token != "" {
		alerter, err := telegram.NewAlerter(cfg.Telegram.Token, cfg.Telegram.ChatID, cfg.ServiceName, baseLogger)
		if err != nil {
			// Alerts are best effort; the bus runs without them.
			a.log.Error().Err(err).Msg("Failed to initialize telegram alerter")
		} else {
			opts.Alerter = alerter
		}
	}

	if cfg.Redis.Addr != "" {
		inbox, err := redisinbox.NewInbox(ctx, redisinbox.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.InboxTTL,
		}, baseLogger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, inbox.Close)
		opts.Inbox = inbox
	} else {
		opts.Inbox = memory.NewInbox(cfg.Redis.InboxTTL)
	}

	if reg != nil {
		metrics, err := eventbus.NewMetrics(reg)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
		opts.Metrics = metrics
	}

	transport, err := NewTransport(ctx, cfg, baseLogger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Bus = eventbus.New(transport, opts, baseLogger)

	a.log.Info().
		Str("transport", cfg.EventBus.Transport).
		Str("exchange", cfg.EventBus.Exchange).
		Int("max_deliveries", cfg.EventBus.MaxDeliveries).
		Str("unroutable", cfg.EventBus.Unroutable).
		Msg("Event bus initialized")
	return a, nil
}

func (a *App) openDeadLetters(ctx context.Context, cfg *config.Config, baseLogger *zerolog.Logger) (ports.DeadLetterRepository, error) {
	keyBytes, err := security.ParseKey(cfg.EncryptionKey)
	if err != nil {
		return nil, err
	}
	secSvc, err := security.NewAESService(keyBytes, baseLogger)
	if err != nil {
		return nil, err
	}

	db, err := postgres.NewDB(ctx, cfg.Postgres.URL, baseLogger)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	a.closers = append(a.closers, func() error { db.Close(); return nil })

	if err := db.Migrate(); err != nil {
		return nil, err
	}
	return postgres.NewDeadLetterRepository(db, secSvc, baseLogger), nil
}

// Close shuts the bus down first, then the stores it writes to.
func (a *App) Close() error {
	var errs []error
	if a.Bus != nil {
		errs = append(errs, a.Bus.Close())
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
