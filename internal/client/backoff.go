package client

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff computes reconnect delays. The delay for attempt n is
// R × Base × 2^n with R drawn from [1,2), capped by a value drawn from
// [CapMin, CapMax) on every call so that many clients dropped at once do
// not retry in lockstep.
type Backoff struct {
	Base   time.Duration
	CapMin time.Duration
	CapMax time.Duration

	// Float64 returns a value in [0,1). Nil uses math/rand/v2.
	Float64 func() float64
}

// DefaultBackoff is 300ms doubling per attempt, capped between 5s and 10s.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:   300 * time.Millisecond,
		CapMin: 5 * time.Second,
		CapMax: 10 * time.Second,
	}
}

// Delay returns the wait before reconnect attempt number attempt, where
// attempt counts consecutive failures since the last successful connect.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	random := b.Float64
	if random == nil {
		random = rand.Float64
	}

	grow := (1 + random()) * float64(b.Base) * math.Pow(2, float64(attempt))
	ceiling := float64(b.CapMin) + random()*float64(b.CapMax-b.CapMin)
	return time.Duration(math.Min(grow, ceiling))
}
