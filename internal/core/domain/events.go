package domain

import (
	"encoding/json"
	"time"
)

// Logical event names. They match the producer type names of the other
// services, so they double as routing keys on the wire.
const (
	PatientCreatedEventName     = "PatientCreatedEvent"
	EkgSignalProcessedEventName = "EkgSignalProcessedEvent"
	AnalysisCompletedEventName  = "AnalysisCompletedEvent"
	BatchJobCompletedEventName  = "BatchJobCompletedEvent"
)

// PatientCreatedEvent is published when a patient is registered.
type PatientCreatedEvent struct {
	IntegrationEvent
	PatientID   int    `json:"PatientId"`
	PatientCode string `json:"PatientCode"`
	ContactInfo string `json:"ContactInfo"`
}

func (PatientCreatedEvent) EventName() string { return PatientCreatedEventName }

func (e PatientCreatedEvent) MarshalJSON() ([]byte, error) {
	type fields PatientCreatedEvent
	return json.Marshal(struct {
		envelope
		fields
	}{e.wire(), fields(e)})
}

func (e *PatientCreatedEvent) UnmarshalJSON(data []byte) error {
	type fields PatientCreatedEvent
	var w struct {
		envelope
		fields
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*e = PatientCreatedEvent(w.fields)
	e.IntegrationEvent = w.envelope.restore()
	return nil
}

// EkgSignalProcessedEvent is published once a raw signal has been stored.
type EkgSignalProcessedEvent struct {
	IntegrationEvent
	SignalID        int       `json:"SignalId"`
	PatientCode     string    `json:"PatientCode"`
	SignalReference string    `json:"SignalReference"`
	ProcessedAt     time.Time `json:"ProcessedAt"`
}

func (EkgSignalProcessedEvent) EventName() string { return EkgSignalProcessedEventName }

func (e EkgSignalProcessedEvent) MarshalJSON() ([]byte, error) {
	type fields EkgSignalProcessedEvent
	return json.Marshal(struct {
		envelope
		fields
	}{e.wire(), fields(e)})
}

func (e *EkgSignalProcessedEvent) UnmarshalJSON(data []byte) error {
	type fields EkgSignalProcessedEvent
	var w struct {
		envelope
		fields
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*e = EkgSignalProcessedEvent(w.fields)
	e.IntegrationEvent = w.envelope.restore()
	return nil
}

// AnalysisCompletedEvent carries the outcome of a signal analysis.
type AnalysisCompletedEvent struct {
	IntegrationEvent
	AnalysisResultID int       `json:"AnalysisResultId"`
	PatientCode      string    `json:"PatientCode"`
	SignalReference  string    `json:"SignalReference"`
	HeartRate        float64   `json:"HeartRate"`
	HasArrhythmia    bool      `json:"HasArrhythmia"`
	AnalyzedAt       time.Time `json:"AnalyzedAt"`
}

func (AnalysisCompletedEvent) EventName() string { return AnalysisCompletedEventName }

func (e AnalysisCompletedEvent) MarshalJSON() ([]byte, error) {
	type fields AnalysisCompletedEvent
	return json.Marshal(struct {
		envelope
		fields
	}{e.wire(), fields(e)})
}

func (e *AnalysisCompletedEvent) UnmarshalJSON(data []byte) error {
	type fields AnalysisCompletedEvent
	var w struct {
		envelope
		fields
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*e = AnalysisCompletedEvent(w.fields)
	e.IntegrationEvent = w.envelope.restore()
	return nil
}

// BatchJobCompletedEvent is published when every item of a batch job is done.
type BatchJobCompletedEvent struct {
	IntegrationEvent
	JobID           string    `json:"JobId"`
	JobType         string    `json:"JobType"`
	TotalItems      int       `json:"TotalItems"`
	SuccessfulItems int       `json:"SuccessfulItems"`
	FailedItems     int       `json:"FailedItems"`
	CompletedAt     time.Time `json:"CompletedAt"`
}

func (BatchJobCompletedEvent) EventName() string { return BatchJobCompletedEventName }

func (e BatchJobCompletedEvent) MarshalJSON() ([]byte, error) {
	type fields BatchJobCompletedEvent
	return json.Marshal(struct {
		envelope
		fields
	}{e.wire(), fields(e)})
}

func (e *BatchJobCompletedEvent) UnmarshalJSON(data []byte) error {
	type fields BatchJobCompletedEvent
	var w struct {
		envelope
		fields
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*e = BatchJobCompletedEvent(w.fields)
	e.IntegrationEvent = w.envelope.restore()
	return nil
}
