package memory

import (
	"EkgPlatform/internal/core/ports"
	"context"
	"sync"
	"time"
)

// Inbox is a process-local ports.Inbox. Entries expire after ttl; expired
// entries are swept at most once per ttl while new ones are recorded.
type Inbox struct {
	ttl time.Duration
	now func() time.Time

	mu        sync.Mutex
	processed map[string]time.Time
	nextSweep time.Time
}

var _ ports.Inbox = (*Inbox)(nil)

// NewInbox creates an inbox; ttl <= 0 keeps entries forever.
func NewInbox(ttl time.Duration) *Inbox {
	return &Inbox{
		ttl:       ttl,
		now:       time.Now,
		processed: make(map[string]time.Time),
	}
}

func inboxKey(eventID, handlerName string) string {
	return handlerName + "|" + eventID
}

func (i *Inbox) Processed(ctx context.Context, eventID, handlerName string) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	key := inboxKey(eventID, handlerName)
	expiresAt, ok := i.processed[key]
	if !ok {
		return false, nil
	}
	if i.ttl > 0 && i.now().After(expiresAt) {
		delete(i.processed, key)
		return false, nil
	}
	return true, nil
}

func (i *Inbox) MarkProcessed(ctx context.Context, eventID, handlerName string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	now := i.now()
	if i.ttl > 0 && !now.Before(i.nextSweep) {
		i.sweep(now)
		i.nextSweep = now.Add(i.ttl)
	}
	i.processed[inboxKey(eventID, handlerName)] = now.Add(i.ttl)
	return nil
}

// Cleanup drops expired entries.
func (i *Inbox) Cleanup() {
	if i.ttl <= 0 {
		return
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.sweep(i.now())
}

// Len is the number of entries currently held, expired or not.
func (i *Inbox) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.processed)
}

func (i *Inbox) sweep(now time.Time) {
	for key, expiresAt := range i.processed {
		if now.After(expiresAt) {
			delete(i.processed, key)
		}
	}
}
