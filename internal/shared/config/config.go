package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Supported broker transports.
const (
	TransportRabbitMQ = "rabbitmq"
	TransportNATS     = "nats"
	TransportMemory   = "memory"
)

// Config holds all configuration for the application.
type Config struct {
	AppEnv        string
	ServiceName   string
	EncryptionKey string
	MetricsAddr   string

	EventBus EventBusConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Telegram TelegramConfig
}

// EventBusConfig configures the broker connection and delivery policy.
type EventBusConfig struct {
	Transport       string
	HostName        string
	URL             string
	Exchange        string
	ExchangeDurable bool
	Prefetch        int
	MaxDeliveries   int
	RetryInitial    time.Duration
	RetryMax        time.Duration
	Unroutable      string
}

type PostgresConfig struct {
	URL string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	InboxTTL time.Duration
}

type TelegramConfig struct {
	Token  string
	ChatID int64
}

// IsDev reports whether human-readable logging should be used.
func (c *Config) IsDev() bool {
	return c.AppEnv == "dev"
}

// envKeys maps viper keys to the environment variables feeding them.
var envKeys = map[string]string{
	"app.env":                   "APP_ENV",
	"service.name":              "SERVICE_NAME",
	"encryption.key":            "ENCRYPTION_KEY",
	"metrics.addr":              "METRICS_ADDR",
	"eventbus.transport":        "EVENTBUS_TRANSPORT",
	"eventbus.hostname":         "EVENTBUS_HOSTNAME",
	"eventbus.url":              "EVENTBUS_URL",
	"eventbus.exchange":         "EVENTBUS_EXCHANGE",
	"eventbus.exchange_durable": "EVENTBUS_EXCHANGE_DURABLE",
	"eventbus.prefetch":         "EVENTBUS_PREFETCH",
	"eventbus.max_deliveries":   "EVENTBUS_MAX_DELIVERIES",
	"eventbus.retry_initial":    "EVENTBUS_RETRY_INITIAL",
	"eventbus.retry_max":        "EVENTBUS_RETRY_MAX",
	"eventbus.unroutable":       "EVENTBUS_UNROUTABLE",
	"postgres.url":              "DATABASE_URL",
	"redis.addr":                "REDIS_ADDR",
	"redis.password":            "REDIS_PASSWORD",
	"redis.db":                  "REDIS_DB",
	"redis.inbox_ttl":           "INBOX_TTL",
	"telegram.alert_token":      "TELEGRAM_ALERT_TOKEN",
	"telegram.alert_chat_id":    "TELEGRAM_ALERT_CHAT_ID",
}

// Load loads configuration from environment variables and an optional .env file.
func Load() (*Config, error) {
	// 1. Load .env file into the process environment; missing is fine in prod.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	// 2. Bind viper keys to env var names
	for key, env := range envKeys {
		if err := viper.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("could not bind %s: %w", key, err)
		}
	}

	// 3. Set defaults
	viper.SetDefault("app.env", "dev")
	viper.SetDefault("service.name", "ekg-eventbus")
	viper.SetDefault("eventbus.transport", TransportRabbitMQ)
	viper.SetDefault("eventbus.hostname", "localhost")
	viper.SetDefault("eventbus.exchange", "ekg_event_bus")
	viper.SetDefault("eventbus.exchange_durable", false)
	viper.SetDefault("eventbus.prefetch", 1)
	viper.SetDefault("eventbus.max_deliveries", 5)
	viper.SetDefault("eventbus.retry_initial", "500ms")
	viper.SetDefault("eventbus.retry_max", "30s")
	viper.SetDefault("eventbus.unroutable", "ack")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.inbox_ttl", "24h")

	// 4. Get values directly from viper
	cfg := Config{
		AppEnv:        viper.GetString("app.env"),
		ServiceName:   viper.GetString("service.name"),
		EncryptionKey: viper.GetString("encryption.key"),
		MetricsAddr:   viper.GetString("metrics.addr"),
		EventBus: EventBusConfig{
			Transport:       viper.GetString("eventbus.transport"),
			HostName:        viper.GetString("eventbus.hostname"),
			URL:             viper.GetString("eventbus.url"),
			Exchange:        viper.GetString("eventbus.exchange"),
			ExchangeDurable: viper.GetBool("eventbus.exchange_durable"),
			Prefetch:        viper.GetInt("eventbus.prefetch"),
			MaxDeliveries:   viper.GetInt("eventbus.max_deliveries"),
			RetryInitial:    viper.GetDuration("eventbus.retry_initial"),
			RetryMax:        viper.GetDuration("eventbus.retry_max"),
			Unroutable:      viper.GetString("eventbus.unroutable"),
		},
		Postgres: PostgresConfig{
			URL: viper.GetString("postgres.url"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
			InboxTTL: viper.GetDuration("redis.inbox_ttl"),
		},
		Telegram: TelegramConfig{
			Token:  viper.GetString("telegram.alert_token"),
			ChatID: viper.GetInt64("telegram.alert_chat_id"),
		},
	}

	if cfg.EventBus.URL == "" {
		cfg.EventBus.URL = defaultBrokerURL(cfg.EventBus.Transport, cfg.EventBus.HostName)
	}

	// 5. Validation
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultBrokerURL(transport, host string) string {
	switch transport {
	case TransportNATS:
		return fmt.Sprintf("nats://%s:4222", host)
	case TransportRabbitMQ:
		return fmt.Sprintf("amqp://guest:guest@%s:5672/", host)
	default:
		return ""
	}
}

func (c *Config) validate() error {
	switch c.EventBus.Transport {
	case TransportRabbitMQ, TransportNATS, TransportMemory:
	default:
		return fmt.Errorf("EVENTBUS_TRANSPORT must be rabbitmq, nats or memory, got %q", c.EventBus.Transport)
	}

	switch c.EventBus.Unroutable {
	case "ack", "dead_letter":
	default:
		return fmt.Errorf("EVENTBUS_UNROUTABLE must be ack or dead_letter, got %q", c.EventBus.Unroutable)
	}

	if c.EventBus.Exchange == "" {
		return errors.New("EVENTBUS_EXCHANGE must not be empty")
	}
	if c.EventBus.Prefetch < 1 {
		return fmt.Errorf("EVENTBUS_PREFETCH must be at least 1, got %d", c.EventBus.Prefetch)
	}
	if c.EventBus.MaxDeliveries < 0 {
		return fmt.Errorf("EVENTBUS_MAX_DELIVERIES must not be negative, got %d", c.EventBus.MaxDeliveries)
	}
	if c.EventBus.RetryMax < c.EventBus.RetryInitial {
		return fmt.Errorf("EVENTBUS_RETRY_MAX (%s) is shorter than EVENTBUS_RETRY_INITIAL (%s)", c.EventBus.RetryMax, c.EventBus.RetryInitial)
	}

	// Dead letters carry patient data and are only stored encrypted.
	if c.Postgres.URL != "" && c.EncryptionKey == "" {
		return errors.New("ENCRYPTION_KEY is required when DATABASE_URL is set")
	}
	if c.EncryptionKey != "" && len(c.EncryptionKey) != 32 && len(c.EncryptionKey) != 64 {
		return fmt.Errorf("ENCRYPTION_KEY must be a 32 or 64-character hex string, but got %d chars", len(c.EncryptionKey))
	}

	if c.Telegram.Token != "" && c.Telegram.ChatID == 0 {
		return errors.New("TELEGRAM_ALERT_CHAT_ID is required when TELEGRAM_ALERT_TOKEN is set")
	}
	return nil
}
