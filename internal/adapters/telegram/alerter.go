package telegram

import (
	"EkgPlatform/internal/core/domain"
	"EkgPlatform/internal/core/ports"
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// sender is the part of *tgbotapi.BotAPI the alerter needs.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// alerter posts dead-letter notices to an operators chat.
type alerter struct {
	api        sender
	chatID     int64
	service    string
	limiter    *rate.Limiter
	suppressed atomic.Int64
	log        zerolog.Logger
}

var _ ports.Alerter = (*alerter)(nil)

// NewAlerter creates a Telegram bot client for token and returns an alerter
// posting to chatID.
func NewAlerter(token string, chatID int64, service string, baseLogger *zerolog.Logger) (ports.Alerter, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}
	return newAlerter(api, chatID, service, baseLogger), nil
}

func newAlerter(api sender, chatID int64, service string, baseLogger *zerolog.Logger) *alerter {
	return &alerter{
		api:     api,
		chatID:  chatID,
		service: service,
		// A poison burst must not flood the chat: one alert per 10s, burst of 5.
		limiter: rate.NewLimiter(rate.Every(10*time.Second), 5),
		log:     baseLogger.With().Str("component", "tg_alerter").Int64("chat_id", chatID).Logger(),
	}
}

func (a *alerter) Alert(ctx context.Context, dl *domain.DeadLetter) error {
	if !a.limiter.Allow() {
		n := a.suppressed.Add(1)
		a.log.Warn().Int64("suppressed", n).Str("dead_letter_id", dl.ID.String()).Msg("Alert rate limited")
		return nil
	}

	msg := tgbotapi.NewMessage(a.chatID, a.format(dl, a.suppressed.Swap(0)))
	msg.DisableWebPagePreview = true
	if _, err := a.api.Send(msg); err != nil {
		a.log.Error().Err(err).Str("dead_letter_id", dl.ID.String()).Msg("Failed to send alert")
		return err
	}
	return nil
}

// format renders a plain-text notice. The body is left out since it may hold
// patient data.
func (a *alerter) format(dl *domain.DeadLetter, suppressed int64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dead letter in %s\n", a.service)
	fmt.Fprintf(&b, "Event: %s\n", dl.EventName)
	fmt.Fprintf(&b, "Queue: %s\n", dl.Queue)
	fmt.Fprintf(&b, "Reason: %s after %d attempt(s)\n", dl.Reason, dl.Attempts)
	if dl.Error != "" {
		errText := dl.Error
		if len(errText) > 500 {
			errText = errText[:500] + "..."
		}
		fmt.Fprintf(&b, "Error: %s\n", errText)
	}
	fmt.Fprintf(&b, "ID: %s", dl.ID)
	if suppressed > 0 {
		fmt.Fprintf(&b, "\n(%d earlier alert(s) suppressed)", suppressed)
	}
	return b.String()
}
