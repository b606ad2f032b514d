package nats

import (
	"EkgPlatform/internal/core/ports"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

var (
	_ ports.Delivery      = (*delivery)(nil)
	_ ports.DelayedNacker = (*delivery)(nil)
)

var errAlreadySettled = errors.New("nats transport: delivery already settled")

type delivery struct {
	m       jetstream.Msg
	msg     ports.Message
	attempt int
	settled atomic.Bool
}

func newDelivery(m jetstream.Msg) *delivery {
	d := &delivery{m: m, attempt: 1}

	headers := make(map[string]string, len(m.Headers()))
	for k := range m.Headers() {
		headers[k] = m.Headers().Get(k)
	}
	d.msg = ports.Message{
		MessageID:  m.Headers().Get(nats.MsgIdHdr),
		RoutingKey: routingKey(m.Subject()),
		Body:       m.Data(),
		Headers:    headers,
	}
	if meta, err := m.Metadata(); err == nil {
		d.attempt = int(meta.NumDelivered)
		d.msg.Timestamp = meta.Timestamp
	}
	return d
}

// routingKey strips the stream prefix from a subject.
func routingKey(subject string) string {
	if i := strings.IndexByte(subject, '.'); i >= 0 {
		return subject[i+1:]
	}
	return subject
}

func (d *delivery) Message() ports.Message { return d.msg }

func (d *delivery) Attempt() int { return d.attempt }

func (d *delivery) Ack() error {
	if !d.settled.CompareAndSwap(false, true) {
		return errAlreadySettled
	}
	return d.m.Ack()
}

// Nack redelivers the message, or terminates it when requeue is false.
func (d *delivery) Nack(requeue bool) error {
	if !d.settled.CompareAndSwap(false, true) {
		return errAlreadySettled
	}
	if requeue {
		return d.m.Nak()
	}
	return d.m.Term()
}

// NackWithDelay asks the server to redeliver after delay. The wait happens on
// the server, so AckWait cannot expire while the consumer sleeps.
func (d *delivery) NackWithDelay(delay time.Duration) error {
	if !d.settled.CompareAndSwap(false, true) {
		return errAlreadySettled
	}
	return d.m.NakWithDelay(delay)
}
