package memory

import (
	"EkgPlatform/internal/core/ports"
	"sync"
)

type entry struct {
	msg      ports.Message
	attempts int
}

type queue struct {
	name   string
	signal chan struct{}

	mu    sync.Mutex
	ready []*entry
	stats QueueStats
}

func newQueue(name string) *queue {
	return &queue{name: name, signal: make(chan struct{}, 1)}
}

// push enqueues e. Requeued entries go to the head, like a broker requeue.
func (q *queue) push(e *entry, requeue bool) {
	q.mu.Lock()
	if requeue {
		q.ready = append([]*entry{e}, q.ready...)
		q.stats.Requeued++
	} else {
		q.ready = append(q.ready, e)
		q.stats.Enqueued++
	}
	q.mu.Unlock()
	q.wake()
}

// pop blocks until an entry is ready or one of the stop channels closes.
func (q *queue) pop(stop1, stop2 <-chan struct{}) *entry {
	for {
		q.mu.Lock()
		if len(q.ready) > 0 {
			e := q.ready[0]
			q.ready = q.ready[1:]
			e.attempts++
			q.stats.Delivered++
			more := len(q.ready) > 0
			q.mu.Unlock()
			if more {
				q.wake()
			}
			return e
		}
		q.mu.Unlock()

		select {
		case <-stop1:
			return nil
		case <-stop2:
			return nil
		case <-q.signal:
		}
	}
}

func (q *queue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *queue) snapshot() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := q.stats
	s.Ready = len(q.ready)
	return s
}

// delivery settles one popped entry.
type delivery struct {
	q *queue
	e *entry

	mu      sync.Mutex
	settled bool
}

var _ ports.Delivery = (*delivery)(nil)

func (d *delivery) Message() ports.Message { return d.e.msg }

func (d *delivery) Attempt() int { return d.e.attempts }

func (d *delivery) Ack() error {
	if !d.settle() {
		return ErrAlreadySettled
	}
	d.q.mu.Lock()
	d.q.stats.Acked++
	d.q.mu.Unlock()
	return nil
}

func (d *delivery) Nack(requeue bool) error {
	if !d.settle() {
		return ErrAlreadySettled
	}
	if requeue {
		d.q.push(d.e, true)
		return nil
	}
	d.q.mu.Lock()
	d.q.stats.Discarded++
	d.q.mu.Unlock()
	return nil
}

func (d *delivery) settle() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.settled {
		return false
	}
	d.settled = true
	return true
}

func (d *delivery) isSettled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.settled
}
