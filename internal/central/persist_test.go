package central

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/consultease/consultease-core/internal/aggregate"
	"github.com/consultease/consultease-core/internal/resilience"
	"github.com/consultease/consultease-core/internal/status"
)

// flakyStore is a controllable Upserter.
type flakyStore struct {
	mu      sync.Mutex
	failing bool
	records []status.Record
}

func (f *flakyStore) Upsert(_ context.Context, rec status.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("database locked")
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *flakyStore) setFailing(failing bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = failing
}

func (f *flakyStore) recorded() []status.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]status.Record(nil), f.records...)
}

func newBackendController(store *flakyStore) (*resilience.Controller, *time.Time) {
	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		FailureThreshold: 3,
		FailureWindow:    time.Minute,
		Cooldown:         10 * time.Second,
		MaxCooldown:      40 * time.Second,
	})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := &now
	tick := func() time.Time { return *clock }
	breaker.SetClock(tick)

	ctrl := resilience.NewController(breaker, resilience.NewMemoryStore(10),
		resilience.ControllerConfig{MaxAttempts: 3})
	ctrl.SetClock(tick)
	ctrl.Register(KindUpsert, UpsertExecutor(store))
	return ctrl, clock
}

func TestPersistDeliversThroughController(t *testing.T) {
	store := &flakyStore{}
	ctrl, _ := newBackendController(store)
	persister := NewPersister(ctrl)

	rec := status.Record{
		UnitID:    "unit-001",
		Presence:  status.PresencePresent,
		UpdatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	persister.Persist(rec)

	got := store.recorded()
	if len(got) != 1 {
		t.Fatalf("store received %d records, want 1", len(got))
	}
	if got[0].UnitID != rec.UnitID || got[0].Presence != rec.Presence {
		t.Errorf("stored record = %+v, want %+v", got[0], rec)
	}
	if !got[0].UpdatedAt.Equal(rec.UpdatedAt) {
		t.Errorf("stored UpdatedAt = %v, want %v", got[0].UpdatedAt, rec.UpdatedAt)
	}
}

func TestPersistQueuesDuringOutageThenReplaysInOrder(t *testing.T) {
	store := &flakyStore{}
	ctrl, clock := newBackendController(store)
	persister := NewPersister(ctrl)
	ctx := context.Background()

	store.setFailing(true)
	persister.Persist(status.Record{UnitID: "unit-001", Presence: status.PresencePresent})
	persister.Persist(status.Record{UnitID: "unit-001", Presence: status.PresenceAbsent})

	if got := store.recorded(); len(got) != 0 {
		t.Fatalf("store received %d records during outage, want 0", len(got))
	}
	if n, _ := ctrl.QueueLen(ctx); n != 2 {
		t.Fatalf("QueueLen() = %d, want 2", n)
	}

	store.setFailing(false)
	*clock = clock.Add(6 * time.Second)
	if _, err := ctrl.Drain(ctx, 10); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}

	got := store.recorded()
	if len(got) != 2 {
		t.Fatalf("store received %d records after drain, want 2", len(got))
	}
	for i, want := range []status.Presence{status.PresencePresent, status.PresenceAbsent} {
		if got[i].Presence != want {
			t.Errorf("records[%d].Presence = %q, want %q (original order)", i, got[i].Presence, want)
		}
	}
}

func TestUpsertExecutorRejectsMalformedPayload(t *testing.T) {
	store := &flakyStore{}
	exec := UpsertExecutor(store)

	if err := exec(context.Background(), []byte("{not json")); err == nil {
		t.Error("executor accepted malformed payload")
	}
	if got := store.recorded(); len(got) != 0 {
		t.Errorf("store received %d records from malformed payload, want 0", len(got))
	}
}

func TestSnapshotReconcilerRewritesFullView(t *testing.T) {
	agg := aggregate.New(time.Minute)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	agg.ApplyPresence("unit-001", status.PresencePresent, at)
	agg.ApplyManualStatus("unit-002", status.StatusBusy, at)

	store := &flakyStore{}
	reconcile := SnapshotReconciler(agg, store)
	if err := reconcile(context.Background()); err != nil {
		t.Fatalf("reconciler error = %v", err)
	}

	got := store.recorded()
	if len(got) != 2 {
		t.Fatalf("reconciler wrote %d records, want 2", len(got))
	}
	byUnit := make(map[string]status.Record, len(got))
	for _, rec := range got {
		byUnit[rec.UnitID] = rec
	}
	if rec, ok := byUnit["unit-001"]; !ok || rec.Presence != status.PresencePresent {
		t.Errorf("unit-001 = %+v, want Present", rec)
	}
	if rec, ok := byUnit["unit-002"]; !ok || rec.ManualStatus != status.StatusBusy {
		t.Errorf("unit-002 = %+v, want busy", rec)
	}
}

func TestSnapshotReconcilerPropagatesStoreError(t *testing.T) {
	agg := aggregate.New(time.Minute)
	agg.ApplyPresence("unit-001", status.PresencePresent, time.Now())

	store := &flakyStore{failing: true}
	if err := SnapshotReconciler(agg, store)(context.Background()); err == nil {
		t.Error("reconciler swallowed store error")
	}
}
