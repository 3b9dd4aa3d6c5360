// Package database provides SQLite persistence for ConsultEase Core.
//
// SQLite backs the two pieces of local durable state:
//
//   - retry_queue: outbound writes buffered while the broker or backend is
//     unreachable. Survives a process restart so no undelivered write is
//     lost across a crash.
//   - unit_status: the central system's last known record per unit, used
//     to seed the aggregator and reconcile after an outage.
//
// Schema lives in the top-level migrations package, embedded into the
// binary and applied on startup via Migrate().
package database
