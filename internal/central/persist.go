package central

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/consultease/consultease-core/internal/aggregate"
	"github.com/consultease/consultease-core/internal/status"
)

// KindUpsert is the retry-queue item kind for unit-status upserts.
const KindUpsert = "status_upsert"

// Upserter is the slice of the aggregate store the persister writes
// through.
type Upserter interface {
	Upsert(ctx context.Context, rec status.Record) error
}

// Controller is the slice of the resilience controller the persister
// needs. Backend writes get the same breaker-and-queue treatment as
// broker publishes on the unit side.
type Controller interface {
	Do(ctx context.Context, kind string, payload []byte) error
	QueueLen(ctx context.Context) (int, error)
	OnReconnect(ctx context.Context) error
}

// Persister routes accepted status changes into durable storage through
// a resilience controller, so a database hiccup queues the write
// instead of losing it.
type Persister struct {
	ctrl   Controller
	logger Logger
}

// NewPersister creates a persister over ctrl. Register UpsertExecutor
// under KindUpsert on the same controller.
func NewPersister(ctrl Controller) *Persister {
	return &Persister{ctrl: ctrl, logger: noopLogger{}}
}

// SetLogger installs a logger. The default discards everything.
func (p *Persister) SetLogger(l Logger) {
	if l != nil {
		p.logger = l
	}
}

// Persist hands one record to the controller. Wire it to the
// aggregator's change notifications; a nil-error write is delivered or
// durably queued.
func (p *Persister) Persist(rec status.Record) {
	payload, err := json.Marshal(rec)
	if err != nil {
		p.logger.Warn("encoding unit status", "unit_id", rec.UnitID, "error", err)
		return
	}
	if err := p.ctrl.Do(context.Background(), KindUpsert, payload); err != nil {
		p.logger.Warn("persisting unit status", "unit_id", rec.UnitID, "error", err)
	}
}

// RunDrainer replays any queued backend writes every interval until ctx
// is cancelled. A full replay runs the controller's reconciler, so the
// stored view converges after an outage.
func (p *Persister) RunDrainer(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.ctrl.QueueLen(ctx)
			if err != nil || n == 0 {
				continue
			}
			if err := p.ctrl.OnReconnect(ctx); err != nil {
				p.logger.Warn("backend queue replay failed", "error", err)
			}
		}
	}
}

// UpsertExecutor returns the controller executor that delivers queued
// unit-status records into the store. Register it under KindUpsert.
func UpsertExecutor(store Upserter) func(ctx context.Context, payload []byte) error {
	return func(ctx context.Context, payload []byte) error {
		var rec status.Record
		if err := json.Unmarshal(payload, &rec); err != nil {
			return fmt.Errorf("decoding status record: %w", err)
		}
		return store.Upsert(ctx, rec)
	}
}

// SnapshotReconciler returns the post-replay reconciler: it re-writes
// the aggregator's full snapshot so the stored view converges on the
// in-memory truth after an outage (the store's upsert is a
// latest-wins replace per unit).
func SnapshotReconciler(agg *aggregate.Aggregator, store Upserter) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		for _, rec := range agg.Snapshot() {
			if err := store.Upsert(ctx, rec); err != nil {
				return fmt.Errorf("reconciling %s: %w", rec.UnitID, err)
			}
		}
		return nil
	}
}
