package status

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/consultease/consultease-core/internal/infrastructure/mqtt"
)

// ErrInvalidStatus indicates an unrecognised manual status value.
var ErrInvalidStatus = errors.New("status: invalid manual status")

// Outbound is the sink status writes go through. The resilience
// controller satisfies it, so every publish is breaker-guarded and
// queued when the broker is unreachable.
type Outbound interface {
	Publish(topic string, payload []byte, retained bool) error
}

// Publisher emits retained status updates for a single unit.
//
// It owns all per-unit publish state: the last value sent on each axis
// and the time of the last emission, used for debounce. Not safe for
// concurrent use; the unit runner owns it from a single goroutine.
type Publisher struct {
	unitID   string
	topics   mqtt.Topics
	sink     Outbound
	debounce time.Duration
	now      func() time.Time

	lastPresence   Presence
	lastPresenceAt time.Time
	lastManual     ManualStatus
	lastManualAt   time.Time
}

// NewPublisher creates a publisher for unitID. debounce is the minimum
// interval between publishes on the same axis; zero disables it.
func NewPublisher(unitID string, topics mqtt.Topics, sink Outbound, debounce time.Duration) *Publisher {
	return &Publisher{
		unitID:   unitID,
		topics:   topics,
		sink:     sink,
		debounce: debounce,
		now:      time.Now,
	}
}

// SetClock overrides the time source. For tests.
func (p *Publisher) SetClock(now func() time.Time) {
	p.now = now
}

// PublishPresence emits the presence value if it differs from the last
// published one and the debounce window has passed. Returns whether a
// publish was attempted.
//
// The payload is the presence string JSON-encoded, retained, so a late
// subscriber immediately sees the current value.
func (p *Publisher) PublishPresence(presence Presence) (bool, error) {
	if presence == p.lastPresence {
		return false, nil
	}
	now := p.now()
	if !p.lastPresenceAt.IsZero() && now.Sub(p.lastPresenceAt) < p.debounce {
		return false, nil
	}

	payload, err := json.Marshal(string(presence))
	if err != nil {
		return false, fmt.Errorf("encoding presence: %w", err)
	}

	if err := p.sink.Publish(p.topics.UnitPresence(p.unitID), payload, true); err != nil {
		return false, fmt.Errorf("publishing presence: %w", err)
	}

	p.lastPresence = presence
	p.lastPresenceAt = now
	return true, nil
}

// PublishManualStatus emits the manual status if it changed, stamped
// with the current time in epoch milliseconds.
func (p *Publisher) PublishManualStatus(status ManualStatus) (bool, error) {
	if !status.Valid() {
		return false, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if status == p.lastManual {
		return false, nil
	}
	now := p.now()
	if !p.lastManualAt.IsZero() && now.Sub(p.lastManualAt) < p.debounce {
		return false, nil
	}

	payload, err := json.Marshal(manualStatusPayload{
		Status:    status,
		UpdatedAt: now.UnixMilli(),
	})
	if err != nil {
		return false, fmt.Errorf("encoding manual status: %w", err)
	}

	if err := p.sink.Publish(p.topics.UnitManualStatus(p.unitID), payload, true); err != nil {
		return false, fmt.Errorf("publishing manual status: %w", err)
	}

	p.lastManual = status
	p.lastManualAt = now
	return true, nil
}

// LastPresence returns the last successfully published presence value.
func (p *Publisher) LastPresence() Presence {
	return p.lastPresence
}

// LastManualStatus returns the last successfully published manual status.
func (p *Publisher) LastManualStatus() ManualStatus {
	return p.lastManual
}
