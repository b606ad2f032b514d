package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIntegrationEvent_UniqueIDsAndUTCTimestamp(t *testing.T) {
	const n = 1000
	seen := make(map[uuid.UUID]struct{}, n)

	for i := 0; i < n; i++ {
		before := time.Now().UTC()
		ev := NewIntegrationEvent()
		after := time.Now().UTC()

		require.NotEqual(t, uuid.Nil, ev.ID())
		_, dup := seen[ev.ID()]
		require.False(t, dup, "duplicate id %s", ev.ID())
		seen[ev.ID()] = struct{}{}

		assert.Equal(t, time.UTC, ev.CreationDate().Location())
		assert.False(t, ev.CreationDate().Before(before))
		assert.False(t, ev.CreationDate().After(after))
	}
}

func TestIntegrationEvent_ZeroValue(t *testing.T) {
	var ev AnalysisCompletedEvent
	assert.True(t, ev.IsZero())
	assert.False(t, NewIntegrationEvent().IsZero())
}

func TestAnalysisCompletedEvent_JSONIsFlat(t *testing.T) {
	analyzedAt := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	ev := AnalysisCompletedEvent{
		IntegrationEvent: NewIntegrationEvent(),
		AnalysisResultID: 42,
		PatientCode:      "P001",
		SignalReference:  "SIG001",
		HeartRate:        72.5,
		HasArrhythmia:    false,
		AnalyzedAt:       analyzedAt,
	}

	body, err := json.Marshal(ev)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(body, &raw))

	// Envelope fields sit next to the payload, no nesting.
	assert.Equal(t, ev.ID().String(), raw["Id"])
	assert.Contains(t, raw, "CreationDate")
	assert.Equal(t, float64(42), raw["AnalysisResultId"])
	assert.Equal(t, "P001", raw["PatientCode"])
	assert.Equal(t, 72.5, raw["HeartRate"])
	assert.Equal(t, false, raw["HasArrhythmia"])
	assert.NotContains(t, raw, "IntegrationEvent")
}

func TestAnalysisCompletedEvent_DecodePreservesEnvelope(t *testing.T) {
	ev := AnalysisCompletedEvent{
		IntegrationEvent: NewIntegrationEvent(),
		AnalysisResultID: 42,
		PatientCode:      "P001",
		SignalReference:  "SIG001",
		HeartRate:        72.5,
		AnalyzedAt:       time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC),
	}
	body, err := json.Marshal(ev)
	require.NoError(t, err)

	var got AnalysisCompletedEvent
	require.NoError(t, json.Unmarshal(body, &got))

	assert.Equal(t, ev.ID(), got.ID())
	assert.True(t, ev.CreationDate().Equal(got.CreationDate()))
	assert.Equal(t, 42, got.AnalysisResultID)
	assert.Equal(t, 72.5, got.HeartRate)
	assert.True(t, ev.AnalyzedAt.Equal(got.AnalyzedAt))
}

func TestDecode_ProducerPayload(t *testing.T) {
	// Shape emitted by the other services' JSON serializer.
	body := []byte(`{
		"JobId": "job-7",
		"JobType": "SignalAnalysis",
		"TotalItems": 10,
		"SuccessfulItems": 9,
		"FailedItems": 1,
		"CompletedAt": "2024-05-02T08:00:00.1234567Z",
		"Id": "7d9f4a52-6f3e-4a0e-9d43-1a2b3c4d5e6f",
		"CreationDate": "2024-05-02T08:00:00.2345678Z"
	}`)

	var ev BatchJobCompletedEvent
	require.NoError(t, json.Unmarshal(body, &ev))

	assert.Equal(t, "7d9f4a52-6f3e-4a0e-9d43-1a2b3c4d5e6f", ev.ID().String())
	assert.Equal(t, "job-7", ev.JobID)
	assert.Equal(t, 9, ev.SuccessfulItems)
	assert.Equal(t, BatchJobCompletedEventName, ev.EventName())
}
