// Package redis keeps the idempotency inbox in Redis so every replica of a
// service shares it.
package redis

import (
	"EkgPlatform/internal/core/ports"
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const keyPrefix = "ekg:inbox:"

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

type inbox struct {
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

var _ ports.Inbox = (*inbox)(nil)

// Inbox is a ports.Inbox that also releases its connection.
type Inbox interface {
	ports.Inbox
	Close() error
}

// NewInbox connects to Redis and verifies the connection.
func NewInbox(ctx context.Context, opts Options, baseLogger *zerolog.Logger) (Inbox, error) {
	log := baseLogger.With().Str("component", "redis_inbox").Logger()

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		log.Error().Err(err).Str("addr", opts.Addr).Msg("Failed to connect to Redis")
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info().Str("addr", opts.Addr).Dur("ttl", opts.TTL).Msg("Redis inbox ready")
	return &inbox{client: client, ttl: opts.TTL, log: log}, nil
}

func inboxKey(eventID, handlerName string) string {
	return keyPrefix + handlerName + ":" + eventID
}

func (i *inbox) Processed(ctx context.Context, eventID, handlerName string) (bool, error) {
	n, err := i.client.Exists(ctx, inboxKey(eventID, handlerName)).Result()
	if err != nil {
		return false, fmt.Errorf("inbox lookup: %w", err)
	}
	return n > 0, nil
}

// MarkProcessed records the handler run; an existing entry keeps its expiry.
func (i *inbox) MarkProcessed(ctx context.Context, eventID, handlerName string) error {
	if err := i.client.SetNX(ctx, inboxKey(eventID, handlerName), "1", i.ttl).Err(); err != nil {
		return fmt.Errorf("inbox mark: %w", err)
	}
	return nil
}

func (i *inbox) Close() error {
	return i.client.Close()
}
