package rabbitmq

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// attemptTracker counts deliveries of the same message for classic queues,
// which do not report a delivery count. Counts live in this process only.
type attemptTracker struct {
	mu     sync.Mutex
	counts map[string]int
}

func newAttemptTracker() *attemptTracker {
	return &attemptTracker{counts: make(map[string]int)}
}

// next records a delivery of key and returns its 1-based attempt number.
// A first-time delivery resets any stale count.
func (a *attemptTracker) next(key string, redelivered bool) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !redelivered {
		a.counts[key] = 1
		return 1
	}
	a.counts[key]++
	if a.counts[key] == 1 {
		// Redelivered, but first seen by this process.
		a.counts[key] = 2
	}
	return a.counts[key]
}

func (a *attemptTracker) forget(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.counts, key)
}

func (a *attemptTracker) len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.counts)
}

func trackingKey(raw amqp.Delivery) string {
	if raw.MessageId != "" {
		return raw.RoutingKey + "/" + raw.MessageId
	}
	sum := sha256.Sum256(raw.Body)
	return raw.RoutingKey + "/" + hex.EncodeToString(sum[:])
}
