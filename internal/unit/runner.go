package unit

import (
	"context"
	"errors"
	"time"

	"github.com/consultease/consultease-core/internal/dispatch"
	"github.com/consultease/consultease-core/internal/presence"
	"github.com/consultease/consultease-core/internal/status"
)

const (
	// eventBufferSize bounds the inbound event channel.
	eventBufferSize = 256

	// maxEventsPerStep bounds how many events one iteration drains, so
	// a burst of requests cannot starve scanning and publishing.
	maxEventsPerStep = 32
)

// eventKind discriminates inbound events.
type eventKind int

const (
	eventRequest eventKind = iota
	eventManualStatus
	eventAcknowledge
)

// event is one inbound message or local command.
type event struct {
	kind    eventKind
	payload []byte
	manual  status.ManualStatus
	reqID   string
}

// Logger is the narrow logging interface the runner writes to.
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

// Drainer is the slice of the resilience controller the loop drains.
type Drainer interface {
	Drain(ctx context.Context, max int) (int, error)
}

// Config tunes the runner loop.
type Config struct {
	ScanInterval time.Duration
	LoopInterval time.Duration
	DrainBatch   int
}

// Runner owns all unit-side state and mutates it from a single
// goroutine.
type Runner struct {
	cfg        Config
	monitor    *presence.Monitor
	scanner    presence.Scanner
	publisher  *status.Publisher
	dispatcher *dispatch.Dispatcher
	drainer    Drainer
	logger     Logger

	events   chan event
	lastScan time.Time
	now      func() time.Time
}

// NewRunner assembles a runner. All collaborators are required except
// the scanner, which may be nil when the unit runs without a radio
// (presence stays Unknown).
func NewRunner(cfg Config, monitor *presence.Monitor, scanner presence.Scanner,
	publisher *status.Publisher, dispatcher *dispatch.Dispatcher, drainer Drainer) *Runner {
	if cfg.DrainBatch <= 0 {
		cfg.DrainBatch = 25
	}
	if cfg.LoopInterval <= 0 {
		cfg.LoopInterval = 250 * time.Millisecond
	}
	return &Runner{
		cfg:        cfg,
		monitor:    monitor,
		scanner:    scanner,
		publisher:  publisher,
		dispatcher: dispatcher,
		drainer:    drainer,
		logger:     noopLogger{},
		events:     make(chan event, eventBufferSize),
		now:        time.Now,
	}
}

// SetLogger installs a logger. The default discards everything.
func (r *Runner) SetLogger(l Logger) {
	if l != nil {
		r.logger = l
	}
}

// SetClock overrides the time source. For tests.
func (r *Runner) SetClock(now func() time.Time) {
	r.now = now
}

// HandleRequestMessage enqueues an inbound consultation request
// payload. Safe to call from transport handler goroutines; drops the
// message when the runner is backlogged rather than blocking the
// transport.
func (r *Runner) HandleRequestMessage(_ string, payload []byte) error {
	r.enqueue(event{kind: eventRequest, payload: payload})
	return nil
}

// SetManualStatus enqueues a manual status selection from the desk
// controls.
func (r *Runner) SetManualStatus(s status.ManualStatus) {
	r.enqueue(event{kind: eventManualStatus, manual: s})
}

// AcknowledgeRequest enqueues an acknowledgement button press.
func (r *Runner) AcknowledgeRequest(requestID string) {
	r.enqueue(event{kind: eventAcknowledge, reqID: requestID})
}

func (r *Runner) enqueue(ev event) {
	select {
	case r.events <- ev:
	default:
		r.logger.Warn("event channel full, dropping event", "kind", ev.kind)
	}
}

// Run executes the loop until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.LoopInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.Step(ctx)
		}
	}
}

// Step performs one loop iteration. Exported so tests can drive the
// loop deterministically.
func (r *Runner) Step(ctx context.Context) {
	r.drainEvents()
	r.scanIfDue(ctx)
	r.publishPresence()
	r.sweepRequests()
	r.drainQueue(ctx)
}

// drainEvents consumes a bounded number of queued events.
func (r *Runner) drainEvents() {
	for i := 0; i < maxEventsPerStep; i++ {
		select {
		case ev := <-r.events:
			r.handleEvent(ev)
		default:
			return
		}
	}
}

func (r *Runner) handleEvent(ev event) {
	switch ev.kind {
	case eventRequest:
		if _, err := r.dispatcher.HandleInbound(ev.payload); err != nil {
			if errors.Is(err, dispatch.ErrMalformedRequest) {
				r.logger.Warn("rejected malformed consultation request", "error", err)
				return
			}
			r.logger.Error("handling consultation request", "error", err)
		}

	case eventManualStatus:
		if _, err := r.publisher.PublishManualStatus(ev.manual); err != nil {
			r.logger.Error("publishing manual status", "status", ev.manual, "error", err)
		}

	case eventAcknowledge:
		if err := r.dispatcher.Acknowledge(ev.reqID); err != nil {
			r.logger.Warn("acknowledging request", "request_id", ev.reqID, "error", err)
		}
	}
}

// scanIfDue runs one beacon sweep when the scan interval has elapsed.
// A failed scan says nothing about presence; it never touches the
// monitor.
func (r *Runner) scanIfDue(ctx context.Context) {
	if r.scanner == nil {
		return
	}
	now := r.now()
	if !r.lastScan.IsZero() && now.Sub(r.lastScan) < r.cfg.ScanInterval {
		return
	}
	r.lastScan = now

	sightings, err := r.scanner.Scan(ctx)
	if err != nil {
		r.logger.Warn("beacon scan unavailable", "error", err)
		return
	}
	for _, s := range sightings {
		r.monitor.Observe(s)
	}
}

// publishPresence evaluates the monitor and pushes any transition out.
// The publisher deduplicates, so calling every iteration is free.
func (r *Runner) publishPresence() {
	state, changed := r.monitor.Evaluate()
	if state == presence.Unknown {
		return
	}
	if changed {
		r.logger.Info("presence transition", "state", state.String())
	}

	wire := status.PresenceAbsent
	if state == presence.Present {
		wire = status.PresencePresent
	}
	if _, err := r.publisher.PublishPresence(wire); err != nil {
		r.logger.Error("publishing presence", "state", state.String(), "error", err)
	}
}

func (r *Runner) sweepRequests() {
	r.dispatcher.SweepExpired()
}

func (r *Runner) drainQueue(ctx context.Context) {
	if r.drainer == nil {
		return
	}
	if _, err := r.drainer.Drain(ctx, r.cfg.DrainBatch); err != nil {
		r.logger.Error("draining retry queue", "error", err)
	}
}
