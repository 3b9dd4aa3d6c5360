// Package aggregate maintains the central system's live view of every
// faculty unit.
//
// The Aggregator merges status updates arriving over the broker into a
// unit_id keyed map. Ordering is by the record's updated_at: an update
// is applied only when it is not older than what is stored, so
// out-of-order delivery (retained messages racing live ones, replays
// after an outage) converges on the newest value. Ties go to the last
// writer.
//
// Units that stop reporting are not left confidently wrong: a sweep
// marks any record older than the stale TTL as presence Unknown, which
// is distinct from Absent.
//
// The SQLite-backed Store persists the view across central restarts;
// on startup it seeds the aggregator and retained broker state merges
// in latest-wins as it arrives.
package aggregate
