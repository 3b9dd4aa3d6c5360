package central

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/consultease/consultease-core/internal/aggregate"
	"github.com/consultease/consultease-core/internal/infrastructure/mqtt"
	"github.com/consultease/consultease-core/internal/status"
)

func newIngestor(t *testing.T) (*Ingestor, *aggregate.Aggregator, time.Time) {
	t.Helper()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	agg := aggregate.New(time.Minute)
	agg.SetClock(func() time.Time { return at })

	in := NewIngestor(mqtt.NewTopics("consultease"), agg)
	in.SetClock(func() time.Time { return at })
	return in, agg, at
}

func TestPresenceStampedAtArrival(t *testing.T) {
	in, agg, at := newIngestor(t)

	err := in.HandlePresenceMessage("consultease/unit/prof_smith/presence", []byte(`"Present"`))
	if err != nil {
		t.Fatalf("HandlePresenceMessage() error = %v", err)
	}

	rec, ok := agg.Get("prof_smith")
	if !ok {
		t.Fatal("unit not in aggregate after presence message")
	}
	if rec.Presence != status.PresencePresent {
		t.Errorf("Presence = %v, want Present", rec.Presence)
	}
	if !rec.UpdatedAt.Equal(at) {
		t.Errorf("UpdatedAt = %v, want arrival time %v", rec.UpdatedAt, at)
	}
}

func TestManualStatusKeepsWireTimestamp(t *testing.T) {
	in, agg, at := newIngestor(t)

	wireAt := at.Add(-30 * time.Second)
	payload, _ := json.Marshal(map[string]any{
		"status":     "busy",
		"updated_at": wireAt.UnixMilli(),
	})

	err := in.HandleManualStatusMessage("consultease/unit/prof_smith/manual_status", payload)
	if err != nil {
		t.Fatalf("HandleManualStatusMessage() error = %v", err)
	}

	rec, ok := agg.Get("prof_smith")
	if !ok {
		t.Fatal("unit not in aggregate after manual status message")
	}
	if rec.ManualStatus != status.StatusBusy {
		t.Errorf("ManualStatus = %v, want busy", rec.ManualStatus)
	}
	if !rec.UpdatedAt.Equal(wireAt) {
		t.Errorf("UpdatedAt = %v, want wire time %v", rec.UpdatedAt, wireAt)
	}
}

func TestMalformedMessagesNeverReachAggregate(t *testing.T) {
	in, agg, _ := newIngestor(t)

	tests := []struct {
		name    string
		handler func(string, []byte) error
		topic   string
		payload string
	}{
		{
			name:    "presence bad payload",
			handler: in.HandlePresenceMessage,
			topic:   "consultease/unit/u1/presence",
			payload: `"Sometimes"`,
		},
		{
			name:    "presence wrong topic",
			handler: in.HandlePresenceMessage,
			topic:   "consultease/requests/new",
			payload: `"Present"`,
		},
		{
			name:    "manual status bad payload",
			handler: in.HandleManualStatusMessage,
			topic:   "consultease/unit/u1/manual_status",
			payload: `{"status":"sleeping","updated_at":1}`,
		},
		{
			name:    "manual status wrong namespace",
			handler: in.HandleManualStatusMessage,
			topic:   "other/unit/u1/manual_status",
			payload: `{"status":"busy","updated_at":1}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.handler(tt.topic, []byte(tt.payload)); err == nil {
				t.Error("handler accepted malformed message")
			}
		})
	}

	if agg.Len() != 0 {
		t.Errorf("aggregate has %d units after malformed messages, want 0", agg.Len())
	}
}

type fakeRecorder struct {
	presences []string
	manuals   []string
}

func (f *fakeRecorder) WritePresenceTransition(unitID, state string) {
	f.presences = append(f.presences, unitID+"="+state)
}

func (f *fakeRecorder) WriteManualStatus(unitID, s string) {
	f.manuals = append(f.manuals, unitID+"="+s)
}

func TestRecorderSeesOnlyAcceptedChanges(t *testing.T) {
	in, _, at := newIngestor(t)
	rec := &fakeRecorder{}
	in.SetRecorder(rec)

	if err := in.HandlePresenceMessage("consultease/unit/u1/presence", []byte(`"Present"`)); err != nil {
		t.Fatal(err)
	}

	// A stale manual status is rejected by the aggregator and must not
	// reach the recorder.
	payload, _ := json.Marshal(map[string]any{
		"status":     "busy",
		"updated_at": at.Add(-time.Hour).UnixMilli(),
	})
	if err := in.HandleManualStatusMessage("consultease/unit/u1/manual_status", payload); err != nil {
		t.Fatal(err)
	}

	if len(rec.presences) != 1 || rec.presences[0] != "u1=Present" {
		t.Errorf("recorded presences = %v", rec.presences)
	}
	if len(rec.manuals) != 0 {
		t.Errorf("recorded manuals = %v, want none for rejected update", rec.manuals)
	}
}

func TestRetainedReplayOlderThanStoredIsRejected(t *testing.T) {
	in, agg, at := newIngestor(t)

	// The aggregate was seeded from the database with a fresh record.
	agg.Apply(status.Record{
		UnitID: "prof_smith", Presence: status.PresencePresent,
		ManualStatus: status.StatusAvailable, UpdatedAt: at,
	})

	// A stale retained manual status arrives after restart.
	payload, _ := json.Marshal(map[string]any{
		"status":     "away",
		"updated_at": at.Add(-time.Hour).UnixMilli(),
	})
	if err := in.HandleManualStatusMessage("consultease/unit/prof_smith/manual_status", payload); err != nil {
		t.Fatalf("HandleManualStatusMessage() error = %v", err)
	}

	rec, _ := agg.Get("prof_smith")
	if rec.ManualStatus != status.StatusAvailable {
		t.Errorf("stale retained value replaced stored record: %v", rec.ManualStatus)
	}
}
