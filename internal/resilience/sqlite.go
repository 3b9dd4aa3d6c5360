package resilience

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/consultease/consultease-core/internal/infrastructure/database"
)

// timeFormat is how timestamps are stored in SQLite.
const timeFormat = time.RFC3339Nano

// SQLiteStore is the durable Store backed by the retry_queue table.
// Items survive process restarts, so writes buffered during an outage
// are still replayed after a crash.
type SQLiteStore struct {
	db       *database.DB
	capacity int
	now      func() time.Time
}

// NewSQLiteStore creates a store over db holding at most capacity items.
func NewSQLiteStore(db *database.DB, capacity int) *SQLiteStore {
	if capacity <= 0 {
		capacity = 1000
	}
	return &SQLiteStore{
		db:       db,
		capacity: capacity,
		now:      time.Now,
	}
}

// SetClock overrides the time source used to stamp NextAttemptAt and
// CreatedAt. For tests; Controller.SetClock forwards here.
func (s *SQLiteStore) SetClock(now func() time.Time) {
	s.now = now
}

func (s *SQLiteStore) Enqueue(ctx context.Context, kind string, payload []byte) (*Item, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck // No-op if committed

	var count int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM retry_queue").Scan(&count); err != nil {
		return nil, fmt.Errorf("counting queue: %w", err)
	}

	var evicted *Item
	if count >= s.capacity {
		evicted, err = evictOldest(ctx, tx)
		if err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO retry_queue (kind, payload, attempts, next_attempt_at, created_at)
		VALUES (?, ?, 0, ?, ?)`,
		kind, payload, now.Format(timeFormat), now.Format(timeFormat)); err != nil {
		return nil, fmt.Errorf("enqueueing item: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing enqueue: %w", err)
	}
	return evicted, nil
}

// evictOldest removes and returns the oldest queued item.
func evictOldest(ctx context.Context, tx *sql.Tx) (*Item, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, kind, payload, attempts, next_attempt_at, created_at
		FROM retry_queue ORDER BY id LIMIT 1`)

	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("selecting oldest item: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM retry_queue WHERE id = ?", item.ID); err != nil {
		return nil, fmt.Errorf("evicting oldest item: %w", err)
	}
	return item, nil
}

func (s *SQLiteStore) Oldest(ctx context.Context, limit int) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, payload, attempts, next_attempt_at, created_at
		FROM retry_queue
		ORDER BY id
		LIMIT ?`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("querying oldest items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func (s *SQLiteStore) MarkAttempt(ctx context.Context, id int64, next time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE retry_queue
		SET attempts = attempts + 1, next_attempt_at = ?
		WHERE id = ?`,
		next.UTC().Format(timeFormat), id)
	if err != nil {
		return fmt.Errorf("marking attempt: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Remove(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM retry_queue WHERE id = ?", id); err != nil {
		return fmt.Errorf("removing item: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Len(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM retry_queue").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting queue: %w", err)
	}
	return count, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (*Item, error) {
	var (
		item          Item
		nextStr, cStr string
	)
	if err := row.Scan(&item.ID, &item.Kind, &item.Payload, &item.Attempts, &nextStr, &cStr); err != nil {
		return nil, err
	}

	var err error
	if item.NextAttemptAt, err = time.Parse(timeFormat, nextStr); err != nil {
		return nil, fmt.Errorf("parsing next_attempt_at: %w", err)
	}
	if item.CreatedAt, err = time.Parse(timeFormat, cStr); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &item, nil
}
