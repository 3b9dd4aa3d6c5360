package aggregate

import (
	"context"
	"fmt"
	"time"

	"github.com/consultease/consultease-core/internal/infrastructure/database"
	"github.com/consultease/consultease-core/internal/status"
)

// timeFormat is how timestamps are stored in SQLite.
const timeFormat = time.RFC3339Nano

// Store persists the aggregated view in the unit_status table so the
// central system restarts with its last known world instead of empty.
type Store struct {
	db *database.DB
}

// NewStore creates a store over db.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Upsert writes one record, replacing any stored row for the unit.
func (s *Store) Upsert(ctx context.Context, rec status.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO unit_status (unit_id, presence, manual_status, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(unit_id) DO UPDATE SET
			presence = excluded.presence,
			manual_status = excluded.manual_status,
			updated_at = excluded.updated_at`,
		rec.UnitID, string(rec.Presence), string(rec.ManualStatus),
		rec.UpdatedAt.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("upserting unit status: %w", err)
	}
	return nil
}

// LoadAll returns every stored record.
func (s *Store) LoadAll(ctx context.Context) ([]status.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT unit_id, presence, manual_status, updated_at FROM unit_status ORDER BY unit_id")
	if err != nil {
		return nil, fmt.Errorf("loading unit status: %w", err)
	}
	defer rows.Close()

	var recs []status.Record
	for rows.Next() {
		var (
			rec              status.Record
			presence, manual string
			updatedAt        string
		)
		if err := rows.Scan(&rec.UnitID, &presence, &manual, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning unit status: %w", err)
		}
		rec.Presence = status.Presence(presence)
		rec.ManualStatus = status.ManualStatus(manual)
		if rec.UpdatedAt, err = time.Parse(timeFormat, updatedAt); err != nil {
			return nil, fmt.Errorf("parsing updated_at for %s: %w", rec.UnitID, err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Seed loads every stored record into the aggregator. Retained broker
// state arriving afterwards merges latest-wins over the seeded view.
func (s *Store) Seed(ctx context.Context, agg *Aggregator) error {
	recs, err := s.LoadAll(ctx)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		agg.Apply(rec)
	}
	return nil
}
