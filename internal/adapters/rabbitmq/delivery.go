package rabbitmq

import (
	"EkgPlatform/internal/core/ports"
	"fmt"
	"sync/atomic"

	amqp "github.com/rabbitmq/amqp091-go"
)

// deliveryCountHeader is set by quorum queues on redelivery.
const deliveryCountHeader = "x-delivery-count"

type delivery struct {
	raw     amqp.Delivery
	msg     ports.Message
	attempt int
	key     string
	tracker *attemptTracker
	settled atomic.Bool
}

func (t *Transport) wrap(raw amqp.Delivery) *delivery {
	d := &delivery{
		raw:     raw,
		msg:     toMessage(raw),
		tracker: t.attempts,
	}
	if count, ok := deliveryCount(raw.Headers); ok {
		d.attempt = count + 1
	} else {
		d.key = trackingKey(raw)
		d.attempt = t.attempts.next(d.key, raw.Redelivered)
	}
	return d
}

func (d *delivery) Message() ports.Message { return d.msg }

func (d *delivery) Attempt() int { return d.attempt }

func (d *delivery) Ack() error {
	if !d.settled.CompareAndSwap(false, true) {
		return fmt.Errorf("delivery %d already settled", d.raw.DeliveryTag)
	}
	d.forget()
	return d.raw.Ack(false)
}

func (d *delivery) Nack(requeue bool) error {
	if !d.settled.CompareAndSwap(false, true) {
		return fmt.Errorf("delivery %d already settled", d.raw.DeliveryTag)
	}
	if !requeue {
		d.forget()
	}
	return d.raw.Nack(false, requeue)
}

func (d *delivery) forget() {
	if d.key != "" {
		d.tracker.forget(d.key)
	}
}

func toMessage(raw amqp.Delivery) ports.Message {
	headers := make(map[string]string, len(raw.Headers))
	for k, v := range raw.Headers {
		if s, ok := v.(string); ok {
			headers[k] = s
		}
	}
	return ports.Message{
		MessageID:  raw.MessageId,
		RoutingKey: raw.RoutingKey,
		Body:       raw.Body,
		Headers:    headers,
		Timestamp:  raw.Timestamp,
	}
}

func deliveryCount(headers amqp.Table) (int, bool) {
	switch v := headers[deliveryCountHeader].(type) {
	case int64:
		return int(v), true
	case int32:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}
