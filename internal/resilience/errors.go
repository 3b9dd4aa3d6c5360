package resilience

import "errors"

// Sentinel errors for resilience operations, checked with errors.Is().
var (
	// ErrCircuitOpen indicates the breaker is Open and the call was
	// rejected without any network attempt.
	ErrCircuitOpen = errors.New("resilience: circuit open")

	// ErrQueueOverflow indicates the retry queue was at capacity and the
	// oldest unsent item was evicted to make room.
	ErrQueueOverflow = errors.New("resilience: retry queue overflow")

	// ErrMaxAttempts indicates an item exhausted its retry budget and
	// was dropped from the queue.
	ErrMaxAttempts = errors.New("resilience: max retry attempts exceeded")

	// ErrUnknownKind indicates no executor is registered for an item's
	// kind.
	ErrUnknownKind = errors.New("resilience: unknown item kind")
)
