package status

import (
	"time"
)

// Presence is the wire representation of derived presence.
type Presence string

const (
	PresenceUnknown Presence = "Unknown"
	PresencePresent Presence = "Present"
	PresenceAbsent  Presence = "Absent"
)

// ManualStatus is the availability a faculty member selects explicitly.
type ManualStatus string

const (
	StatusAvailable ManualStatus = "available"
	StatusBusy      ManualStatus = "busy"
	StatusAway      ManualStatus = "away"
)

// Valid reports whether s is one of the recognised manual statuses.
func (s ManualStatus) Valid() bool {
	switch s {
	case StatusAvailable, StatusBusy, StatusAway:
		return true
	}
	return false
}

// Record is the aggregate view of one unit's status. UpdatedAt orders
// records: a record only replaces another when its UpdatedAt is not
// older.
type Record struct {
	UnitID       string       `json:"unit_id"`
	Presence     Presence     `json:"presence"`
	ManualStatus ManualStatus `json:"manual_status,omitempty"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// manualStatusPayload is the retained manual_status topic payload.
// updated_at is epoch milliseconds, matching the firmware wire format.
type manualStatusPayload struct {
	Status    ManualStatus `json:"status"`
	UpdatedAt int64        `json:"updated_at"`
}
