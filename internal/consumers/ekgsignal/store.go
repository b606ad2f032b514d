package ekgsignal

import (
	"EkgPlatform/internal/consumers"
	"context"
	"sync"
)

// MemoryStore is a process-local SignalStore.
type MemoryStore struct {
	mu        sync.Mutex
	processed map[int]bool
}

var _ consumers.SignalStore = (*MemoryStore)(nil)

// NewMemoryStore knows the given signal ids, none of them processed yet.
func NewMemoryStore(signalIDs ...int) *MemoryStore {
	s := &MemoryStore{processed: make(map[int]bool, len(signalIDs))}
	for _, id := range signalIDs {
		s.processed[id] = false
	}
	return s
}

// Track adds a signal that is waiting for analysis.
func (s *MemoryStore) Track(signalID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.processed[signalID]; !ok {
		s.processed[signalID] = false
	}
}

func (s *MemoryStore) MarkProcessed(ctx context.Context, signalID int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.processed[signalID]; !ok {
		return false, nil
	}
	s.processed[signalID] = true
	return true, nil
}

// IsProcessed reports whether the signal's analysis has completed.
func (s *MemoryStore) IsProcessed(signalID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processed[signalID]
}
