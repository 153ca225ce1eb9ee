package player

import (
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Default retry schedule of the status loop
const (
	DefaultInitialBackoff  = time.Second
	DefaultMaxBackoff      = 30 * time.Second
	DefaultBackoffExponent = 1.1
)

// PowerBackOff is a backoff.BackOff whose delays grow by raising the previous
// delay, in milliseconds, to Exponent: 1000ms, 1995ms, ... up to Max.
type PowerBackOff struct {
	Initial  time.Duration
	Max      time.Duration
	Exponent float64

	current time.Duration
}

var _ backoff.BackOff = (*PowerBackOff)(nil)

// NewPowerBackOff returns the default schedule
func NewPowerBackOff() *PowerBackOff {
	return &PowerBackOff{
		Initial:  DefaultInitialBackoff,
		Max:      DefaultMaxBackoff,
		Exponent: DefaultBackoffExponent,
	}
}

// NextBackOff returns the delay before the next attempt
func (b *PowerBackOff) NextBackOff() time.Duration {
	if b.current == 0 {
		b.current = b.Initial
	} else {
		ms := math.Pow(float64(b.current)/float64(time.Millisecond), b.Exponent)
		next := time.Duration(ms * float64(time.Millisecond))
		if next > b.Max || next <= 0 {
			next = b.Max
		}
		b.current = next
	}
	if b.current > b.Max {
		b.current = b.Max
	}
	return b.current
}

// Reset starts the schedule over after a success
func (b *PowerBackOff) Reset() {
	b.current = 0
}
