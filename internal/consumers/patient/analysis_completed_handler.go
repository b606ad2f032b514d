package patient

import (
	"EkgPlatform/internal/consumers"
	"EkgPlatform/internal/core/domain"
	"EkgPlatform/internal/core/ports"
	"EkgPlatform/internal/eventbus"
	"context"

	"github.com/rs/zerolog"
)

// AnalysisCompletedHandler records finished analyses against the patient.
type AnalysisCompletedHandler struct {
	log zerolog.Logger
}

var _ ports.IntegrationEventHandler[domain.AnalysisCompletedEvent] = (*AnalysisCompletedHandler)(nil)

// init registers this handler with the consumer registry
func init() {
	consumers.Register(consumers.Registration{
		Service:   "patient",
		EventName: domain.AnalysisCompletedEventName,
		New: func(deps consumers.Deps) ports.HandlerBinding {
			return eventbus.Handle[domain.AnalysisCompletedEvent](NewAnalysisCompletedHandler(deps.BaseLogger))
		},
	})
}

func NewAnalysisCompletedHandler(baseLogger *zerolog.Logger) *AnalysisCompletedHandler {
	return &AnalysisCompletedHandler{
		log: baseLogger.With().Str("component", "patient_analysis_handler").Logger(),
	}
}

func (h *AnalysisCompletedHandler) Handle(ctx context.Context, event domain.AnalysisCompletedEvent) error {
	level := zerolog.InfoLevel
	if event.HasArrhythmia {
		level = zerolog.WarnLevel
	}
	h.log.WithLevel(level).
		Str("patient_code", event.PatientCode).
		Str("signal_reference", event.SignalReference).
		Float64("heart_rate", event.HeartRate).
		Bool("has_arrhythmia", event.HasArrhythmia).
		Msg("Analysis completed for patient")
	return nil
}
