// Package central binds broker traffic to the aggregated status view.
//
// The central system subscribes to every unit's presence and
// manual_status topic with wildcards; the ingestor parses each message,
// stamps it, and applies it to the aggregator. Malformed payloads and
// topics outside the unit subtree are dropped with a returned error so
// the transport layer logs them; one bad retained value never poisons
// the aggregate.
package central
