package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WritePresenceTransition records a presence state change for a unit.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Example:
//
//	client.WritePresenceTransition("unit-cs-101", "Present")
//	client.WritePresenceTransition("unit-cs-101", "Absent")
func (c *Client) WritePresenceTransition(unitID string, state string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"presence_transitions",
		map[string]string{
			"unit_id": unitID,
		},
		map[string]interface{}{
			"state": state,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteManualStatus records a manual status change for a unit.
func (c *Client) WriteManualStatus(unitID string, status string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"manual_status",
		map[string]string{
			"unit_id": unitID,
		},
		map[string]interface{}{
			"status": status,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteRequestEvent records a consultation request lifecycle event.
//
// Events are tagged by unit and event type (delivered, acknowledged,
// expired) so dashboards can chart response latency per office.
func (c *Client) WriteRequestEvent(unitID string, event string, latency time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"request_events",
		map[string]string{
			"unit_id": unitID,
			"event":   event,
		},
		map[string]interface{}{
			"latency_ms": float64(latency.Milliseconds()),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteQueueDepth records the current depth of a unit's retry queue.
//
// Useful for spotting units that are persistently offline or shedding
// writes through capacity eviction.
func (c *Client) WriteQueueDepth(unitID string, depth int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"retry_queue",
		map[string]string{
			"unit_id": unitID,
		},
		map[string]interface{}{
			"depth": depth,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g. replayed data after an
// outage, where the original observation time matters).
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
