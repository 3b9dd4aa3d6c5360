package central

import (
	"context"
	"fmt"
	"time"

	"github.com/consultease/consultease-core/internal/aggregate"
	"github.com/consultease/consultease-core/internal/infrastructure/mqtt"
	"github.com/consultease/consultease-core/internal/status"
)

// Logger is the narrow logging interface the ingestor writes to.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Recorder receives accepted status changes for historical storage.
// The InfluxDB client satisfies it; writes are fire-and-forget.
type Recorder interface {
	WritePresenceTransition(unitID string, state string)
	WriteManualStatus(unitID string, status string)
}

// Ingestor applies unit status messages to the aggregator.
//
// Presence messages carry no timestamp on the wire, so they are stamped
// at arrival; manual status messages carry the unit's own updated_at
// and keep it, so a retained value replayed after a central restart
// does not masquerade as fresh.
type Ingestor struct {
	topics   mqtt.Topics
	agg      *aggregate.Aggregator
	logger   Logger
	recorder Recorder
	now      func() time.Time
}

// NewIngestor creates an ingestor feeding agg.
func NewIngestor(topics mqtt.Topics, agg *aggregate.Aggregator) *Ingestor {
	return &Ingestor{
		topics: topics,
		agg:    agg,
		logger: noopLogger{},
		now:    time.Now,
	}
}

// SetLogger installs a logger. The default discards everything.
func (in *Ingestor) SetLogger(l Logger) {
	if l != nil {
		in.logger = l
	}
}

// SetRecorder installs a history recorder. Nil leaves history off.
func (in *Ingestor) SetRecorder(r Recorder) {
	in.recorder = r
}

// SetClock overrides the time source. For tests.
func (in *Ingestor) SetClock(now func() time.Time) {
	in.now = now
}

// HandlePresenceMessage applies one presence topic message. It is an
// mqtt.MessageHandler.
func (in *Ingestor) HandlePresenceMessage(topic string, payload []byte) error {
	unitID, ok := in.topics.UnitIDFromTopic(topic)
	if !ok {
		return fmt.Errorf("presence message on unexpected topic %q", topic)
	}

	presence, err := status.DecodePresence(payload)
	if err != nil {
		return fmt.Errorf("unit %s: %w", unitID, err)
	}

	if in.agg.ApplyPresence(unitID, presence, in.now()) {
		in.logger.Debug("presence ingested", "unit_id", unitID, "presence", presence)
		if in.recorder != nil {
			in.recorder.WritePresenceTransition(unitID, string(presence))
		}
	}
	return nil
}

// HandleManualStatusMessage applies one manual_status topic message. It
// is an mqtt.MessageHandler.
func (in *Ingestor) HandleManualStatusMessage(topic string, payload []byte) error {
	unitID, ok := in.topics.UnitIDFromTopic(topic)
	if !ok {
		return fmt.Errorf("manual status message on unexpected topic %q", topic)
	}

	manual, at, err := status.DecodeManualStatus(payload)
	if err != nil {
		return fmt.Errorf("unit %s: %w", unitID, err)
	}

	if in.agg.ApplyManualStatus(unitID, manual, at) {
		in.logger.Debug("manual status ingested", "unit_id", unitID, "status", manual)
		if in.recorder != nil {
			in.recorder.WriteManualStatus(unitID, string(manual))
		}
	}
	return nil
}

// RunSweeper marks stale units Unknown every interval until ctx is
// cancelled.
func (in *Ingestor) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if swept := in.agg.SweepStale(); len(swept) > 0 {
				in.logger.Debug("stale sweep completed", "swept", len(swept))
			}
		}
	}
}
