// Package unit runs the faculty-unit daemon loop.
//
// All unit-side state lives on one goroutine. Inbound transport
// messages and local commands (manual status selection, request
// acknowledgement button) enter through a single channel; each loop
// iteration drains a bounded number of them, scans for the beacon when
// the interval is due, evaluates presence and publish conditions,
// sweeps expired consultation requests, and replays a bounded slice of
// the retry queue. Nothing here needs a lock; connection maintenance
// lives entirely inside the transport client and never suspends the
// loop.
package unit
