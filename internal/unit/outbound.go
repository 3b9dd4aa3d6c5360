package unit

import (
	"context"
	"encoding/json"
	"fmt"
)

// KindPublish is the retry-queue item kind for broker publishes.
const KindPublish = "publish"

// publishEnvelope is the queued form of one broker publish. Queued
// items must carry everything needed to replay the write later.
type publishEnvelope struct {
	Topic    string `json:"topic"`
	Payload  []byte `json:"payload"`
	QoS      byte   `json:"qos"`
	Retained bool   `json:"retained"`
}

// Transport is the broker surface the runner publishes through.
type Transport interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Sink routes publishes through the resilience controller. It satisfies
// status.Outbound and dispatch.Outbound, so every status update and
// acknowledgement is breaker-guarded and queued on failure.
type Sink struct {
	ctrl Controller
	qos  byte
}

// Controller is the slice of the resilience controller the sink needs.
type Controller interface {
	Do(ctx context.Context, kind string, payload []byte) error
}

// NewSink creates a sink publishing at the given QoS.
func NewSink(ctrl Controller, qos byte) *Sink {
	return &Sink{ctrl: ctrl, qos: qos}
}

// Publish wraps the write in an envelope and hands it to the
// controller. A nil return means delivered or durably queued.
func (s *Sink) Publish(topic string, payload []byte, retained bool) error {
	env, err := json.Marshal(publishEnvelope{
		Topic:    topic,
		Payload:  payload,
		QoS:      s.qos,
		Retained: retained,
	})
	if err != nil {
		return fmt.Errorf("encoding publish envelope: %w", err)
	}
	return s.ctrl.Do(context.Background(), KindPublish, env)
}

// PublishExecutor returns the controller executor that delivers queued
// publish envelopes through the transport. Register it under
// KindPublish.
func PublishExecutor(transport Transport) func(ctx context.Context, payload []byte) error {
	return func(_ context.Context, payload []byte) error {
		var env publishEnvelope
		if err := json.Unmarshal(payload, &env); err != nil {
			return fmt.Errorf("decoding publish envelope: %w", err)
		}
		return transport.Publish(env.Topic, env.Payload, env.QoS, env.Retained)
	}
}
