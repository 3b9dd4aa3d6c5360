package dispatch

import "errors"

// Sentinel errors for dispatch operations, checked with errors.Is().
var (
	// ErrMalformedRequest indicates an inbound payload that failed
	// validation. Malformed requests are never presented.
	ErrMalformedRequest = errors.New("dispatch: malformed request")

	// ErrUnknownRequest indicates an acknowledgement for a request that
	// is not currently delivered (never seen, already acknowledged, or
	// expired).
	ErrUnknownRequest = errors.New("dispatch: unknown request")
)
