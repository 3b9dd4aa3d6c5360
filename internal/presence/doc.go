// Package presence tracks whether a faculty member's beacon is nearby.
//
// A Monitor consumes beacon sightings stamped with millisecond ticks and
// derives a three-state presence value (Unknown, Present, Absent). Ticks
// are uint32 milliseconds and are allowed to wrap around zero, matching
// the counters on embedded scan hardware; elapsed-time arithmetic handles
// the rollover explicitly so a wrap never produces a false Absent.
//
// Scanning itself is behind the Scanner interface. CommandScanner shells
// out to an external scan utility and parses one address per output line;
// the radio driver is out of scope.
package presence
