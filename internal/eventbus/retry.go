package eventbus

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// retryPolicy computes how long a failed delivery waits before it is requeued.
type retryPolicy struct {
	initial time.Duration
	max     time.Duration
	jitter  float64
}

// delay returns the wait after the given (1-based) failed attempt.
func (p retryPolicy) delay(attempt int) time.Duration {
	if p.initial <= 0 || attempt < 1 {
		return 0
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.initial
	b.MaxInterval = p.max
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}
	b.RandomizationFactor = p.jitter
	b.Multiplier = 2
	b.Reset()

	var d time.Duration
	for i := 0; i < attempt; i++ {
		d = b.NextBackOff()
	}
	if d < 0 {
		return b.MaxInterval
	}
	return d
}
