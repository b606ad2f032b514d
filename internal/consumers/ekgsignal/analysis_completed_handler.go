package ekgsignal

import (
	"EkgPlatform/internal/consumers"
	"EkgPlatform/internal/core/domain"
	"EkgPlatform/internal/core/ports"
	"EkgPlatform/internal/eventbus"
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
)

// AnalysisCompletedHandler marks the analysed signal as processed.
type AnalysisCompletedHandler struct {
	signals consumers.SignalStore
	log     zerolog.Logger
}

var _ ports.IntegrationEventHandler[domain.AnalysisCompletedEvent] = (*AnalysisCompletedHandler)(nil)

// init registers this handler with the consumer registry
func init() {
	consumers.Register(consumers.Registration{
		Service:   "ekgsignal",
		EventName: domain.AnalysisCompletedEventName,
		New: func(deps consumers.Deps) ports.HandlerBinding {
			return eventbus.Handle[domain.AnalysisCompletedEvent](NewAnalysisCompletedHandler(deps.Signals, deps.BaseLogger))
		},
	})
}

func NewAnalysisCompletedHandler(signals consumers.SignalStore, baseLogger *zerolog.Logger) *AnalysisCompletedHandler {
	return &AnalysisCompletedHandler{
		signals: signals,
		log:     baseLogger.With().Str("component", "ekgsignal_analysis_handler").Logger(),
	}
}

func (h *AnalysisCompletedHandler) Handle(ctx context.Context, event domain.AnalysisCompletedEvent) error {
	log := h.log.With().Str("signal_reference", event.SignalReference).Logger()
	log.Info().Msg("Analysis completed for signal")

	// Only numeric references point at a stored signal.
	signalID, err := strconv.Atoi(event.SignalReference)
	if err != nil || h.signals == nil {
		return nil
	}

	found, err := h.signals.MarkProcessed(ctx, signalID)
	if err != nil {
		log.Error().Err(err).Int("signal_id", signalID).Msg("Failed to mark signal as processed")
		return fmt.Errorf("marking signal %d processed: %w", signalID, err)
	}
	if found {
		log.Info().Int("signal_id", signalID).Msg("Signal marked as processed")
	}
	return nil
}
