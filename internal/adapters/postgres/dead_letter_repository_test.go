package postgres

import (
	"EkgPlatform/internal/core/domain"
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func newTestDeadLetter(failedAt time.Time) *domain.DeadLetter {
	return &domain.DeadLetter{
		ID:        uuid.New(),
		EventName: domain.AnalysisCompletedEventName,
		Queue:     "AnalysisCompletedEvent_queue",
		MessageID: uuid.NewString(),
		Body:      []byte(`{"AnalysisResultId":42,"PatientCode":"P001","HeartRate":72.5}`),
		Reason:    domain.ReasonHandlerFailed,
		Error:     "handler patient: timeout",
		Attempts:  5,
		FailedAt:  failedAt.UTC().Truncate(time.Microsecond),
	}
}

func TestDeadLetterRepository_Save_GetByID_Roundtrip(t *testing.T) {
	// 1. Setup
	nopLogger := zerolog.Nop()
	repo := NewDeadLetterRepository(testDB, testSecSvc, &nopLogger)
	ctx := context.Background()
	dl := newTestDeadLetter(time.Now())

	// 2. Run Save
	if err := repo.Save(ctx, dl); err != nil {
		t.Fatalf("Failed to save dead letter: %v", err)
	}
	defer cleanupDeadLetter(t, dl.ID)

	// 3. Body is stored encrypted
	var stored []byte
	if err := testDB.pool.QueryRow(ctx, "SELECT body FROM dead_letters WHERE id = $1", dl.ID).Scan(&stored); err != nil {
		t.Fatalf("Failed to read raw body: %v", err)
	}
	if bytes.Contains(stored, []byte("P001")) {
		t.Fatal("Body was stored in plaintext")
	}

	// 4. Run GetByID
	found, err := repo.GetByID(ctx, dl.ID)
	if err != nil {
		t.Fatalf("Failed to get dead letter: %v", err)
	}
	if found == nil {
		t.Fatal("GetByID: dead letter not found, but should exist")
	}

	// 5. Verify
	if !bytes.Equal(found.Body, dl.Body) {
		t.Errorf("Body mismatch: got %s, want %s", found.Body, dl.Body)
	}
	if found.Reason != dl.Reason || found.Attempts != dl.Attempts || found.Queue != dl.Queue {
		t.Errorf("Record mismatch: got %+v, want %+v", found, dl)
	}
	if !found.FailedAt.Equal(dl.FailedAt) {
		t.Errorf("FailedAt mismatch: got %v, want %v", found.FailedAt, dl.FailedAt)
	}
}

func TestDeadLetterRepository_GetByID_NotFound(t *testing.T) {
	nopLogger := zerolog.Nop()
	repo := NewDeadLetterRepository(testDB, testSecSvc, &nopLogger)

	found, err := repo.GetByID(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("Expected no error for a missing record, got %v", err)
	}
	if found != nil {
		t.Fatalf("Expected nil for a missing record, got %+v", found)
	}
}

func TestDeadLetterRepository_List_NewestFirst_Delete(t *testing.T) {
	// 1. Setup
	nopLogger := zerolog.Nop()
	repo := NewDeadLetterRepository(testDB, testSecSvc, &nopLogger)
	ctx := context.Background()

	// Far in the future so no other row sorts above them.
	base := time.Now().Add(24 * time.Hour)
	older := newTestDeadLetter(base)
	newer := newTestDeadLetter(base.Add(time.Minute))
	for _, dl := range []*domain.DeadLetter{older, newer} {
		if err := repo.Save(ctx, dl); err != nil {
			t.Fatalf("Failed to save dead letter: %v", err)
		}
		defer cleanupDeadLetter(t, dl.ID)
	}

	// 2. Run List
	list, err := repo.List(ctx, 2)
	if err != nil {
		t.Fatalf("Failed to list dead letters: %v", err)
	}

	// 3. Verify order
	if len(list) != 2 {
		t.Fatalf("Expected 2 dead letters, got %d", len(list))
	}
	if list[0].ID != newer.ID || list[1].ID != older.ID {
		t.Errorf("Expected newest first, got %s then %s", list[0].ID, list[1].ID)
	}

	// 4. Delete
	if err := repo.Delete(ctx, newer.ID); err != nil {
		t.Fatalf("Failed to delete dead letter: %v", err)
	}
	found, err := repo.GetByID(ctx, newer.ID)
	if err != nil || found != nil {
		t.Errorf("Expected deleted record to be gone, got %+v, %v", found, err)
	}
}
