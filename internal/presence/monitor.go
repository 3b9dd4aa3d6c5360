package presence

import (
	"strings"
	"time"
)

// MaxTick is the largest value of the millisecond tick counter. The
// counter wraps to zero after MaxTick, roughly every 49.7 days.
const MaxTick = ^uint32(0)

// State is the derived presence of the monitored beacon.
type State int

const (
	// Unknown means no sighting has ever been observed. It is distinct
	// from Absent: Absent is a confident "was here, now gone".
	Unknown State = iota
	Present
	Absent
)

// String returns the wire representation used on the presence topic.
func (s State) String() string {
	switch s {
	case Present:
		return "Present"
	case Absent:
		return "Absent"
	default:
		return "Unknown"
	}
}

// Sighting is a single observation of a beacon address at a tick.
type Sighting struct {
	// Address is the opaque beacon identifier as reported by the scanner.
	Address string

	// Tick is the millisecond tick at which the sighting was made.
	Tick uint32
}

// TickSource returns the current millisecond tick. Implementations may
// wrap around zero.
type TickSource func() uint32

// SystemTicks is the default TickSource: wall-clock milliseconds
// truncated to uint32, which wraps naturally.
func SystemTicks() uint32 {
	return uint32(time.Now().UnixMilli()) // #nosec G115 -- truncation is the wrap behaviour we want
}

// Monitor derives presence state from beacon sightings.
//
// Not safe for concurrent use; the unit runner owns it from a single
// goroutine.
type Monitor struct {
	target  string
	timeout uint32
	ticks   TickSource

	lastSeen uint32
	seen     bool
	state    State
}

// NewMonitor creates a monitor watching for target. Address comparison is
// case-insensitive. timeout is how long after the last sighting the
// beacon is still considered present.
func NewMonitor(target string, timeout time.Duration, ticks TickSource) (*Monitor, error) {
	if strings.TrimSpace(target) == "" {
		return nil, ErrNoTarget
	}
	if ticks == nil {
		ticks = SystemTicks
	}
	return &Monitor{
		target:  strings.ToLower(strings.TrimSpace(target)),
		timeout: uint32(timeout.Milliseconds()), // #nosec G115 -- validated by config
		ticks:   ticks,
		state:   Unknown,
	}, nil
}

// Observe records a sighting. Returns true when the sighting matched the
// monitored target and advanced lastSeen. Non-matching sightings are
// ignored entirely.
func (m *Monitor) Observe(s Sighting) bool {
	if !strings.EqualFold(s.Address, m.target) {
		return false
	}
	m.lastSeen = s.Tick
	m.seen = true
	return true
}

// IsPresent reports whether the last matching sighting is within the
// presence timeout. Before any sighting it is false.
func (m *Monitor) IsPresent() bool {
	if !m.seen {
		return false
	}
	return m.elapsed() < m.timeout
}

// elapsed returns milliseconds since the last sighting, accounting for
// tick counter wraparound: when lastSeen is ahead of now the counter has
// wrapped, and the true gap is the distance to MaxTick plus now.
func (m *Monitor) elapsed() uint32 {
	now := m.ticks()
	if m.lastSeen > now {
		return (MaxTick - m.lastSeen) + now
	}
	return now - m.lastSeen
}

// Evaluate recomputes the state and reports whether it changed.
//
// Unknown persists until the first sighting; after that the state moves
// between Present and Absent. Present drops to Absent only once the full
// timeout elapses with no new sighting, and the transition is reported
// exactly once.
func (m *Monitor) Evaluate() (State, bool) {
	if !m.seen {
		return Unknown, false
	}

	next := Absent
	if m.IsPresent() {
		next = Present
	}

	changed := next != m.state
	m.state = next
	return next, changed
}

// State returns the last evaluated state without recomputing.
func (m *Monitor) State() State {
	return m.state
}
