package aggregate

import (
	"sort"
	"sync"
	"time"

	"github.com/consultease/consultease-core/internal/status"
)

// Logger is the narrow logging interface the aggregator writes to.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ChangeFunc receives every accepted record change: applied updates and
// stale-sweep transitions.
type ChangeFunc func(rec status.Record)

// Aggregator is the authoritative in-memory view of unit status.
//
// Safe for concurrent use.
type Aggregator struct {
	mu       sync.RWMutex
	units    map[string]status.Record
	staleTTL time.Duration
	now      func() time.Time
	onChange ChangeFunc
	logger   Logger
}

// New creates an empty aggregator. staleTTL is how long a record stays
// trusted without a fresh update; zero disables the sweep.
func New(staleTTL time.Duration) *Aggregator {
	return &Aggregator{
		units:    make(map[string]status.Record),
		staleTTL: staleTTL,
		now:      time.Now,
		logger:   noopLogger{},
	}
}

// SetLogger installs a logger. The default discards everything.
func (a *Aggregator) SetLogger(l Logger) {
	if l != nil {
		a.logger = l
	}
}

// SetClock overrides the time source. For tests.
func (a *Aggregator) SetClock(now func() time.Time) {
	a.now = now
}

// SetOnChange installs the change fanout. Called outside the lock with
// a copy of the record; must be set before updates start flowing.
func (a *Aggregator) SetOnChange(fn ChangeFunc) {
	a.onChange = fn
}

// Apply merges a full record. It wins only when its UpdatedAt is not
// older than the stored record's; equal timestamps go to the incoming
// record (last writer wins). Returns whether the record was applied.
func (a *Aggregator) Apply(rec status.Record) bool {
	a.mu.Lock()
	stored, ok := a.units[rec.UnitID]
	if ok && rec.UpdatedAt.Before(stored.UpdatedAt) {
		a.mu.Unlock()
		a.logger.Debug("ignoring stale record",
			"unit_id", rec.UnitID, "updated_at", rec.UpdatedAt)
		return false
	}
	a.units[rec.UnitID] = rec
	a.mu.Unlock()

	a.notify(rec)
	return true
}

// ApplyPresence merges a presence update. Presence payloads carry no
// timestamp on the wire, so the caller stamps them at arrival.
func (a *Aggregator) ApplyPresence(unitID string, presence status.Presence, at time.Time) bool {
	a.mu.Lock()
	rec, ok := a.units[unitID]
	if ok && at.Before(rec.UpdatedAt) {
		a.mu.Unlock()
		return false
	}
	if !ok {
		rec = status.Record{UnitID: unitID}
	}
	rec.Presence = presence
	rec.UpdatedAt = at
	a.units[unitID] = rec
	a.mu.Unlock()

	a.notify(rec)
	return true
}

// ApplyManualStatus merges a manual status update stamped by the unit.
func (a *Aggregator) ApplyManualStatus(unitID string, manual status.ManualStatus, at time.Time) bool {
	a.mu.Lock()
	rec, ok := a.units[unitID]
	if ok && at.Before(rec.UpdatedAt) {
		a.mu.Unlock()
		return false
	}
	if !ok {
		rec = status.Record{UnitID: unitID, Presence: status.PresenceUnknown}
	}
	rec.ManualStatus = manual
	rec.UpdatedAt = at
	a.units[unitID] = rec
	a.mu.Unlock()

	a.notify(rec)
	return true
}

// Get returns the record for unitID.
func (a *Aggregator) Get(unitID string) (status.Record, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	rec, ok := a.units[unitID]
	return rec, ok
}

// Snapshot returns all records sorted by unit ID.
func (a *Aggregator) Snapshot() []status.Record {
	a.mu.RLock()
	recs := make([]status.Record, 0, len(a.units))
	for _, rec := range a.units {
		recs = append(recs, rec)
	}
	a.mu.RUnlock()

	sort.Slice(recs, func(i, j int) bool {
		return recs[i].UnitID < recs[j].UnitID
	})
	return recs
}

// SweepStale marks records older than the stale TTL as presence
// Unknown and returns the units transitioned this sweep. The record's
// UpdatedAt is left untouched so a late real update still wins.
func (a *Aggregator) SweepStale() []status.Record {
	if a.staleTTL <= 0 {
		return nil
	}

	cutoff := a.now().Add(-a.staleTTL)

	a.mu.Lock()
	var swept []status.Record
	for id, rec := range a.units {
		if rec.Presence != status.PresenceUnknown && rec.UpdatedAt.Before(cutoff) {
			rec.Presence = status.PresenceUnknown
			a.units[id] = rec
			swept = append(swept, rec)
		}
	}
	a.mu.Unlock()

	for _, rec := range swept {
		a.logger.Warn("unit went stale", "unit_id", rec.UnitID, "last_update", rec.UpdatedAt)
		a.notify(rec)
	}
	return swept
}

// Len reports the number of tracked units.
func (a *Aggregator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.units)
}

func (a *Aggregator) notify(rec status.Record) {
	if a.onChange != nil {
		a.onChange(rec)
	}
}
