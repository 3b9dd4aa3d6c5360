// Package dispatch handles inbound consultation requests on a faculty
// unit.
//
// Requests arrive as JSON on the shared requests topic. The dispatcher
// validates them strictly (malformed payloads are rejected before any
// side effect), hands valid ones to the display Presenter, and tracks
// them until an explicit acknowledgement from the faculty member or a
// time-driven expiry. Acknowledgements publish back to the originator
// through the resilience sink so they survive broker outages.
package dispatch
