package sync

import "time"

// BreakerState is the circuit breaker's position.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
)

func (s BreakerState) String() string {
	if s == BreakerOpen {
		return "open"
	}
	return "closed"
}

// Breaker suppresses sync attempts after repeated pass-level failures.
// It is a plain value with pure transition methods: callers thread the
// returned value through, which keeps breaker behavior testable without
// real timers.
type Breaker struct {
	State     BreakerState
	Failures  int
	OpenedAt  time.Time
	Threshold int
	Cooldown  time.Duration
}

// NewBreaker returns a closed breaker.
func NewBreaker(threshold int, cooldown time.Duration) Breaker {
	return Breaker{Threshold: threshold, Cooldown: cooldown}
}

// Allow reports whether an attempt may proceed at now. An open breaker
// whose cooldown has elapsed resets and permits the attempt.
func (b Breaker) Allow(now time.Time) (Breaker, bool) {
	if b.State == BreakerOpen {
		if now.Sub(b.OpenedAt) < b.Cooldown {
			return b, false
		}
		b.State = BreakerClosed
		b.Failures = 0
	}
	return b, true
}

// Failure records a pass-level failure, opening the breaker once the
// consecutive-failure count reaches the threshold.
func (b Breaker) Failure(now time.Time) Breaker {
	b.Failures++
	if b.Failures >= b.Threshold {
		b.State = BreakerOpen
		b.OpenedAt = now
	}
	return b
}

// Success resets the breaker immediately.
func (b Breaker) Success() Breaker {
	b.State = BreakerClosed
	b.Failures = 0
	return b
}
