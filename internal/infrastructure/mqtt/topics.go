package mqtt

import (
	"fmt"
	"strings"
)

// DefaultNamespace is the topic namespace used when none is configured.
const DefaultNamespace = "consultease"

// Topics builds ConsultEase MQTT topic strings under a configurable
// namespace. Using these helpers keeps topic naming consistent between the
// unit and central sides.
//
//	topics := mqtt.NewTopics("consultease")
//	topics.UnitPresence("prof_smith")
//	// Returns: "consultease/unit/prof_smith/presence"
type Topics struct {
	ns string
}

// NewTopics creates a topic builder for the given namespace.
// An empty namespace falls back to DefaultNamespace.
func NewTopics(namespace string) Topics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return Topics{ns: namespace}
}

// Namespace returns the namespace this builder is bound to.
func (t Topics) Namespace() string {
	return t.ns
}

// UnitPresence returns the retained presence topic for a unit.
//
// Example: consultease/unit/prof_smith/presence
func (t Topics) UnitPresence(unitID string) string {
	return fmt.Sprintf("%s/unit/%s/presence", t.ns, unitID)
}

// UnitManualStatus returns the retained manual-status topic for a unit.
// Manual status is a separate axis from presence and gets its own topic.
//
// Example: consultease/unit/prof_smith/manual_status
func (t Topics) UnitManualStatus(unitID string) string {
	return fmt.Sprintf("%s/unit/%s/manual_status", t.ns, unitID)
}

// RequestsNew returns the topic consultation requests arrive on.
// Not retained: requests are events, not state.
//
// Example: consultease/requests/new
func (t Topics) RequestsNew() string {
	return fmt.Sprintf("%s/requests/new", t.ns)
}

// RequestAcknowledge returns the acknowledgement topic for a request.
//
// Example: consultease/requests/req-abc123/acknowledge
func (t Topics) RequestAcknowledge(requestID string) string {
	return fmt.Sprintf("%s/requests/%s/acknowledge", t.ns, requestID)
}

// SystemStatus returns the retained online/offline status topic for a client.
// Used for the LWT so peers can detect an unexpected disconnect.
//
// Example: consultease/system/unit-prof-smith/status
func (t Topics) SystemStatus(clientID string) string {
	return fmt.Sprintf("%s/system/%s/status", t.ns, clientID)
}

// AllUnitPresence returns a pattern matching every unit's presence topic.
//
// Pattern: consultease/unit/+/presence
func (t Topics) AllUnitPresence() string {
	return fmt.Sprintf("%s/unit/+/presence", t.ns)
}

// AllUnitManualStatus returns a pattern matching every unit's manual-status topic.
//
// Pattern: consultease/unit/+/manual_status
func (t Topics) AllUnitManualStatus() string {
	return fmt.Sprintf("%s/unit/+/manual_status", t.ns)
}

// UnitIDFromTopic extracts the unit ID from a per-unit topic
// (<ns>/unit/{id}/...). The central side uses it when a wildcard
// subscription delivers a message. Returns false for topics outside the
// unit subtree.
func (t Topics) UnitIDFromTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) < 4 || parts[0] != t.ns || parts[1] != "unit" || parts[2] == "" {
		return "", false
	}
	return parts[2], true
}

// AllRequestAcknowledgements returns a pattern matching every request ack.
//
// Pattern: consultease/requests/+/acknowledge
func (t Topics) AllRequestAcknowledgements() string {
	return fmt.Sprintf("%s/requests/+/acknowledge", t.ns)
}
