package dispatch

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/consultease/consultease-core/internal/infrastructure/mqtt"
)

// RequestState is a consultation request's position in its lifecycle.
type RequestState int

const (
	// Pending is a request parsed but not yet handed to the presenter.
	Pending RequestState = iota

	// Delivered is on the display, awaiting acknowledgement or expiry.
	Delivered

	// Acknowledged was confirmed by the faculty member.
	Acknowledged

	// Expired timed out before acknowledgement.
	Expired
)

// String returns the state name for logs.
func (s RequestState) String() string {
	switch s {
	case Delivered:
		return "delivered"
	case Acknowledged:
		return "acknowledged"
	case Expired:
		return "expired"
	default:
		return "pending"
	}
}

// Request is one consultation request.
type Request struct {
	ID         string
	StudentID  string
	Text       string
	State      RequestState
	ReceivedAt time.Time
}

// Presenter receives valid requests for display. Implementations must
// not block; the excluded display surface sits behind it.
type Presenter interface {
	Present(req Request)
}

// Outbound is where acknowledgements are published. The resilience
// controller's publish adapter satisfies it.
type Outbound interface {
	Publish(topic string, payload []byte, retained bool) error
}

// Logger is the narrow logging interface the dispatcher writes to.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// inboundRequest is the wire shape on the requests topic. request_text
// is the legacy field name older firmware used for the request body.
type inboundRequest struct {
	RequestID   string `json:"request_id"`
	StudentID   string `json:"student_id"`
	Text        string `json:"text"`
	RequestText string `json:"request_text"`
}

// ackPayload is published on the per-request acknowledge topic.
type ackPayload struct {
	RequestID      string `json:"request_id"`
	UnitID         string `json:"unit_id"`
	AcknowledgedAt int64  `json:"acknowledged_at"`
}

// Dispatcher validates, presents and tracks consultation requests for
// one unit.
//
// Not safe for concurrent use; the unit runner owns it from a single
// goroutine.
type Dispatcher struct {
	unitID    string
	topics    mqtt.Topics
	presenter Presenter
	sink      Outbound
	expiry    time.Duration
	now       func() time.Time
	logger    Logger

	delivered map[string]*Request
}

// NewDispatcher creates a dispatcher. expiry is how long a delivered
// request waits for acknowledgement before being dropped.
func NewDispatcher(unitID string, topics mqtt.Topics, presenter Presenter, sink Outbound, expiry time.Duration) *Dispatcher {
	return &Dispatcher{
		unitID:    unitID,
		topics:    topics,
		presenter: presenter,
		sink:      sink,
		expiry:    expiry,
		now:       time.Now,
		logger:    noopLogger{},
		delivered: make(map[string]*Request),
	}
}

// SetLogger installs a logger. The default discards everything.
func (d *Dispatcher) SetLogger(l Logger) {
	if l != nil {
		d.logger = l
	}
}

// SetClock overrides the time source. For tests.
func (d *Dispatcher) SetClock(now func() time.Time) {
	d.now = now
}

// HandleInbound parses and validates one payload from the requests
// topic. A valid request is presented exactly once and tracked as
// Delivered; a malformed one returns ErrMalformedRequest with no side
// effects. Redelivery of an already-tracked request ID is idempotent.
func (d *Dispatcher) HandleInbound(payload []byte) (*Request, error) {
	var wire inboundRequest
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %w", ErrMalformedRequest, err)
	}

	studentID := strings.TrimSpace(wire.StudentID)
	if studentID == "" {
		return nil, fmt.Errorf("%w: missing student_id", ErrMalformedRequest)
	}

	text := strings.TrimSpace(wire.Text)
	if text == "" {
		text = strings.TrimSpace(wire.RequestText)
	}
	if text == "" {
		return nil, fmt.Errorf("%w: missing text", ErrMalformedRequest)
	}

	id := strings.TrimSpace(wire.RequestID)
	if id == "" {
		id = uuid.NewString()
	}

	if existing, ok := d.delivered[id]; ok {
		d.logger.Debug("ignoring redelivered request", "request_id", id)
		return existing, nil
	}

	req := &Request{
		ID:         id,
		StudentID:  studentID,
		Text:       text,
		State:      Delivered,
		ReceivedAt: d.now(),
	}
	d.delivered[id] = req
	d.presenter.Present(*req)
	d.logger.Info("consultation request delivered", "request_id", id, "student_id", studentID)

	return req, nil
}

// Acknowledge confirms a delivered request, publishes the ack to the
// originator, and discards the request. Unknown IDs (never delivered,
// already acknowledged, expired) return ErrUnknownRequest.
func (d *Dispatcher) Acknowledge(requestID string) error {
	req, ok := d.delivered[requestID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRequest, requestID)
	}

	payload, err := json.Marshal(ackPayload{
		RequestID:      requestID,
		UnitID:         d.unitID,
		AcknowledgedAt: d.now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("encoding acknowledgement: %w", err)
	}

	if err := d.sink.Publish(d.topics.RequestAcknowledge(requestID), payload, false); err != nil {
		return fmt.Errorf("publishing acknowledgement: %w", err)
	}

	req.State = Acknowledged
	delete(d.delivered, requestID)
	d.logger.Info("consultation request acknowledged", "request_id", requestID)
	return nil
}

// SweepExpired drops delivered requests older than the expiry and
// returns them. Expiry is purely time-driven.
func (d *Dispatcher) SweepExpired() []Request {
	if d.expiry <= 0 {
		return nil
	}

	now := d.now()
	var expired []Request
	for id, req := range d.delivered {
		if now.Sub(req.ReceivedAt) >= d.expiry {
			req.State = Expired
			expired = append(expired, *req)
			delete(d.delivered, id)
			d.logger.Warn("consultation request expired unacknowledged",
				"request_id", id, "student_id", req.StudentID)
		}
	}
	return expired
}

// DeliveredCount reports how many requests await acknowledgement.
func (d *Dispatcher) DeliveredCount() int {
	return len(d.delivered)
}
