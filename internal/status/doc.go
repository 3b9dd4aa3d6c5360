// Package status defines the shared unit-status representation and the
// change-driven publisher used on the unit side.
//
// A unit's status has two independent axes: derived presence (from the
// beacon monitor) and manually selected availability (from the desk
// controls). Each axis publishes on its own retained topic, so the
// central system and late subscribers always converge on the latest
// value per axis without replaying history.
//
// The Publisher owns the last-published state per axis and only emits
// when a value actually changes, with a debounce window to absorb
// flapping. Identical repeated inputs never hit the broker.
package status
