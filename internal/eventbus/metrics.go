package eventbus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Delivery outcomes reported by the dispatch loop.
const (
	resultAck        = "ack"
	resultRequeue    = "requeue"
	resultDeadLetter = "dead_letter"
	resultDropped    = "dropped"
)

// Metrics holds the bus collectors. A nil *Metrics records nothing.
type Metrics struct {
	published       *prometheus.CounterVec
	deliveries      *prometheus.CounterVec
	handlerDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg (if not nil).
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		published: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: "ekg", Subsystem: "eventbus", Name: "published_total", Help: "Events handed to the transport."},
			[]string{"event", "outcome"},
		),
		deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: "ekg", Subsystem: "eventbus", Name: "deliveries_total", Help: "Consumed deliveries by settlement result."},
			[]string{"event", "result"},
		),
		handlerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Namespace: "ekg", Subsystem: "eventbus", Name: "handler_duration_seconds", Help: "Handler invocation latency.", Buckets: prometheus.DefBuckets},
			[]string{"event", "handler", "outcome"},
		),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.published, m.deliveries, m.handlerDuration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observePublish(event string, err error) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(event, outcome(err)).Inc()
}

func (m *Metrics) observeDelivery(event, result string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(event, result).Inc()
}

func (m *Metrics) observeHandler(event, handler string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.handlerDuration.WithLabelValues(event, handler, outcome(err)).Observe(time.Since(started).Seconds())
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
