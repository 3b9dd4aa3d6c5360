package resilience

import (
	"sync"
	"time"
)

// BreakerState is the circuit breaker's position.
type BreakerState int

const (
	// Closed passes calls through and counts failures.
	Closed BreakerState = iota

	// Open rejects calls outright until the cooldown elapses.
	Open

	// HalfOpen admits exactly one trial call to probe recovery.
	HalfOpen
)

// String returns the state name for logs.
func (s BreakerState) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// BreakerConfig tunes a Breaker. Zero values fall back to the defaults
// applied in NewBreaker.
type BreakerConfig struct {
	// FailureThreshold is how many failures inside FailureWindow trip
	// the breaker Open.
	FailureThreshold int

	// FailureWindow is the sliding window failures are counted over.
	FailureWindow time.Duration

	// Cooldown is the initial Open duration before a HalfOpen trial.
	Cooldown time.Duration

	// MaxCooldown caps the exponential cooldown growth.
	MaxCooldown time.Duration
}

// Breaker is a circuit breaker guarding one dependency.
//
// Safe for concurrent use.
type Breaker struct {
	mu sync.Mutex

	threshold int
	window    time.Duration
	baseCool  time.Duration
	maxCool   time.Duration
	now       func() time.Time

	state    BreakerState
	failures []time.Time
	openedAt time.Time
	cooldown time.Duration

	// trialInFlight guards the single HalfOpen probe.
	trialInFlight bool
}

// NewBreaker creates a Closed breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.FailureWindow <= 0 {
		cfg.FailureWindow = time.Minute
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 10 * time.Second
	}
	if cfg.MaxCooldown < cfg.Cooldown {
		cfg.MaxCooldown = cfg.Cooldown
	}
	return &Breaker{
		threshold: cfg.FailureThreshold,
		window:    cfg.FailureWindow,
		baseCool:  cfg.Cooldown,
		maxCool:   cfg.MaxCooldown,
		cooldown:  cfg.Cooldown,
		now:       time.Now,
	}
}

// SetClock overrides the time source. For tests.
func (b *Breaker) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

// Allow reports whether a call may proceed. While Open it returns
// ErrCircuitOpen without side effects on the guarded dependency; once
// the cooldown elapses it moves to HalfOpen and admits exactly one
// trial, rejecting further calls until the trial is resolved via
// RecordSuccess or RecordFailure.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return nil

	case Open:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return ErrCircuitOpen
		}
		b.state = HalfOpen
		b.trialInFlight = true
		return nil

	default: // HalfOpen
		if b.trialInFlight {
			return ErrCircuitOpen
		}
		b.trialInFlight = true
		return nil
	}
}

// RecordSuccess marks the outcome of an allowed call. A successful
// HalfOpen trial closes the breaker and resets the failure count and
// cooldown.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case HalfOpen:
		b.state = Closed
		b.failures = nil
		b.cooldown = b.baseCool
		b.trialInFlight = false
	case Closed:
		// Healthy traffic ages failures out of the window naturally;
		// nothing to reset.
	}
}

// RecordFailure marks a failed call. Enough failures inside the window
// trip the breaker Open; a failed HalfOpen trial reopens it with the
// cooldown doubled, capped at MaxCooldown.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()

	switch b.state {
	case HalfOpen:
		b.state = Open
		b.openedAt = now
		b.trialInFlight = false
		b.cooldown = min(b.cooldown*2, b.maxCool)

	case Closed:
		b.failures = append(b.failures, now)
		b.pruneLocked(now)
		if len(b.failures) >= b.threshold {
			b.state = Open
			b.openedAt = now
			b.failures = nil
		}

	case Open:
		// Already open; failures here come from queued work racing the
		// trip and carry no new information.
	}
}

// State returns the current state. Only Allow advances Open to
// HalfOpen; State never transitions.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Cooldown returns the current cooldown duration.
func (b *Breaker) Cooldown() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cooldown
}

// pruneLocked drops failures that fell out of the sliding window.
// Callers hold b.mu.
func (b *Breaker) pruneLocked(now time.Time) {
	cutoff := now.Add(-b.window)
	kept := b.failures[:0]
	for _, f := range b.failures {
		if f.After(cutoff) {
			kept = append(kept, f)
		}
	}
	b.failures = kept
}
