package mqtt

import (
	"fmt"
)

// Maximum payload size for MQTT messages (256KB).
// Status strings and consultation requests are tiny; anything near this
// limit indicates a malfunctioning producer.
const maxPayloadSize = 256 << 10

// Publish sends a message to the specified MQTT topic.
//
// Retained Messages:
//   - When true, the broker stores the last message for the topic and new
//     subscribers immediately receive it.
//   - Use for state topics (presence, manual status, system status).
//   - Don't use for events (consultation requests).
//
// Publish fails fast with ErrNotConnected while the client is disconnected;
// it never blocks waiting for a reconnect. The resilience controller is
// responsible for queuing the write in that case.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrTimeout, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// PublishString is a convenience method that publishes a string payload.
func (c *Client) PublishString(topic string, payload string, qos byte, retained bool) error {
	return c.Publish(topic, []byte(payload), qos, retained)
}

// PublishRetained publishes a retained message with the configured default QoS.
//
// Use for state updates where new subscribers should receive the current state.
func (c *Client) PublishRetained(topic string, payload []byte) error {
	return c.Publish(topic, payload, byte(c.cfg.QoS), true)
}
