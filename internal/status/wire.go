package status

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMalformedPayload indicates a status topic payload that could not be
// decoded. The central ingest drops such messages rather than letting
// one bad retained value poison the aggregate.
var ErrMalformedPayload = errors.New("status: malformed payload")

// DecodePresence parses a presence topic payload: the presence string
// JSON-encoded ("Present", "Absent", "Unknown").
func DecodePresence(payload []byte) (Presence, error) {
	var wire string
	if err := json.Unmarshal(payload, &wire); err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	switch p := Presence(wire); p {
	case PresencePresent, PresenceAbsent, PresenceUnknown:
		return p, nil
	default:
		return "", fmt.Errorf("%w: unrecognised presence %q", ErrMalformedPayload, wire)
	}
}

// DecodeManualStatus parses a manual_status topic payload and returns
// the status with its update time (wire format carries epoch
// milliseconds).
func DecodeManualStatus(payload []byte) (ManualStatus, time.Time, error) {
	var wire manualStatusPayload
	if err := json.Unmarshal(payload, &wire); err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if !wire.Status.Valid() {
		return "", time.Time{}, fmt.Errorf("%w: unrecognised status %q", ErrMalformedPayload, wire.Status)
	}
	if wire.UpdatedAt <= 0 {
		return "", time.Time{}, fmt.Errorf("%w: missing updated_at", ErrMalformedPayload)
	}
	return wire.Status, time.UnixMilli(wire.UpdatedAt).UTC(), nil
}
