package batch

import (
	"EkgPlatform/internal/consumers"
	"EkgPlatform/internal/core/domain"
	"EkgPlatform/internal/core/ports"
	"EkgPlatform/internal/eventbus"
	"context"

	"github.com/rs/zerolog"
)

// AnalysisCompletedHandler follows analyses that belong to batch jobs.
type AnalysisCompletedHandler struct {
	log zerolog.Logger
}

var _ ports.IntegrationEventHandler[domain.AnalysisCompletedEvent] = (*AnalysisCompletedHandler)(nil)

// init registers this handler with the consumer registry
func init() {
	consumers.Register(consumers.Registration{
		Service:   "batch",
		EventName: domain.AnalysisCompletedEventName,
		New: func(deps consumers.Deps) ports.HandlerBinding {
			return eventbus.Handle[domain.AnalysisCompletedEvent](NewAnalysisCompletedHandler(deps.BaseLogger))
		},
	})
}

func NewAnalysisCompletedHandler(baseLogger *zerolog.Logger) *AnalysisCompletedHandler {
	return &AnalysisCompletedHandler{
		log: baseLogger.With().Str("component", "batch_analysis_handler").Logger(),
	}
}

func (h *AnalysisCompletedHandler) Handle(ctx context.Context, event domain.AnalysisCompletedEvent) error {
	h.log.Info().
		Str("signal_reference", event.SignalReference).
		Int("analysis_result_id", event.AnalysisResultID).
		Msg("Analysis completed for signal in batch processing")
	return nil
}
