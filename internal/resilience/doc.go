// Package resilience guards outbound writes against broker and backend
// outages.
//
// Three pieces compose:
//
//   - Breaker: a circuit breaker with an explicit Closed, Open and
//     HalfOpen state machine. While Open, calls are rejected without
//     touching the network; after a cooldown a single trial probes the
//     dependency, and repeated failures grow the cooldown exponentially.
//   - Store: a bounded durable queue of failed writes. The SQLite
//     implementation survives restarts; at capacity the oldest item is
//     evicted and reported, never silently overwritten.
//   - Controller: ties them together. Do() executes a write through the
//     breaker and queues it on failure or rejection; Drain() replays
//     queued items oldest-first in bounded slices; OnReconnect() replays
//     the whole queue in original order and then runs the registered
//     reconciler so local and remote state converge.
//
// A queued write is a handled write: Do returns nil when an item is
// accepted into the queue, and terminal outcomes (capacity eviction,
// max-attempts drops) surface through the drop callback.
package resilience
